package average

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sensorwatch/internal/ledger"
	"sensorwatch/internal/storage"
)

// ErrStoreUnavailable indicates the recent-reading store could not be read.
var ErrStoreUnavailable = errors.New("recent-reading store unavailable")

// RecentStore returns the readings for a sensor that are still inside the
// retention window.
type RecentStore interface {
	Recent(ctx context.Context, sensorName string) ([]storage.ReadingRecord, error)
}

// Result is the outcome of one rolling-average computation.
type Result struct {
	Average float64
	Samples int
	Entry   ledger.Entry
}

// Engine computes rolling averages over the retention window and records
// each one in the ledger.
type Engine struct {
	store   RecentStore
	ledger  *ledger.Ledger
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEngine wires an engine. A zero timeout leaves the bound to ctx.
func NewEngine(store RecentStore, l *ledger.Ledger, timeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		ledger:  l,
		timeout: timeout,
		logger:  logger.With().Str("component", "average").Logger(),
	}
}

// Compute averages the in-window readings for sensorName together with raw.
// The fetch is attempted twice before ErrStoreUnavailable is returned; the
// ledger is only written on success.
func (e *Engine) Compute(ctx context.Context, sensorName string, raw float64) (Result, error) {
	recent, err := e.fetch(ctx, sensorName)
	if err != nil {
		e.logger.Warn().Err(err).Str("sensor", sensorName).Msg("recent fetch failed, retrying once")
		recent, err = e.fetch(ctx, sensorName)
		if err != nil {
			return Result{}, fmt.Errorf("fetch recent readings for %s: %w: %w", sensorName, ErrStoreUnavailable, err)
		}
	}

	values := make([]float64, 0, len(recent)+1)
	for _, rec := range recent {
		if rec.SensorName != sensorName {
			continue
		}
		values = append(values, rec.SensorReading)
	}
	values = append(values, raw)

	avg := Mean(values)
	entry := e.ledger.Record(sensorName, avg)

	e.logger.Debug().Str("sensor", sensorName).
		Int("samples", len(values)).
		Float64("average", avg).
		Uint64("seq", entry.Seq).
		Msg("rolling average computed")

	return Result{Average: avg, Samples: len(values), Entry: entry}, nil
}

func (e *Engine) fetch(ctx context.Context, sensorName string) ([]storage.ReadingRecord, error) {
	if e.store == nil {
		return nil, nil
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.store.Recent(ctx, sensorName)
}

// Mean returns the arithmetic mean of values, or zero for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
