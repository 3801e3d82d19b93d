package alerting

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"sensorwatch/internal/ledger"
	"sensorwatch/internal/sensor"
)

// ErrUnknownSensorType is returned when a reading has no threshold profile.
var ErrUnknownSensorType = errors.New("unknown sensor type")

// AverageHistory exposes the previous rolling averages of a sensor.
type AverageHistory interface {
	Previous(sensorName string, seq uint64) (ledger.Entry, bool)
}

// Evaluator assigns exactly one classification to a reading.
type Evaluator struct {
	catalog *sensor.Catalog
	history AverageHistory
	logger  zerolog.Logger
}

// NewEvaluator builds an evaluator over the catalog and average history.
// history may be nil, in which case the average-over-average rule never fires.
func NewEvaluator(catalog *sensor.Catalog, history AverageHistory, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		catalog: catalog,
		history: history,
		logger:  logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate applies the rules in order; the first one that matches wins:
//
//  1. recent average >= average ceiling             -> TooHighAverage
//  2. raw reading >= single reading ceiling          -> TooHighSingle
//  3. raw - recent average >= single increase change -> RapidIncrease
//  4. previous average - recent average >= average increase change,
//     using the sensor's newest ledger entry preceding this reading -> RapidIncrease
//
// All comparisons are inclusive and unrounded.
func (e *Evaluator) Evaluate(r sensor.Reading) (Classification, error) {
	profile, ok := e.catalog.Profile(r.SensorType)
	if !ok {
		return NoAlert, fmt.Errorf("evaluate %s: %w: %s", r.SensorName, ErrUnknownSensorType, r.SensorType)
	}

	c := e.classify(r, profile)
	e.logger.Debug().Str("sensor", r.SensorName).
		Float64("reading", r.SensorReading).
		Float64("average", r.RecentAverage).
		Stringer("classification", c).
		Msg("reading evaluated")
	return c, nil
}

func (e *Evaluator) classify(r sensor.Reading, p sensor.ThresholdProfile) Classification {
	switch {
	case r.RecentAverage >= p.Average:
		return TooHighAverage
	case r.SensorReading >= p.SingleReading:
		return TooHighSingle
	case r.SensorReading-r.RecentAverage >= p.SingleIncreaseChange:
		return RapidIncrease
	}

	if e.history != nil {
		if prev, ok := e.history.Previous(r.SensorName, r.LedgerSeq); ok {
			if prev.Average-r.RecentAverage >= p.AverageIncreaseChange {
				return RapidIncrease
			}
		}
	}
	return NoAlert
}
