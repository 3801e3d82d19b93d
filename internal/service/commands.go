package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sensorwatch/internal/sensor"
	"sensorwatch/internal/storage"
)

const helpReply = "Commands: 'arm' toggles alerts, 'last temp' shows the latest temperature, 'status' shows the alert state."

// HandleCommand interprets a free-text control command and returns the reply
// text. Matching is case-insensitive and ignores surrounding whitespace.
func (s *Service) HandleCommand(ctx context.Context, text string) string {
	cmd := strings.ToLower(strings.TrimSpace(text))
	s.logger.Info().Str("command", cmd).Msg("control command received")

	switch cmd {
	case "arm":
		armed := s.gate.Toggle()
		s.metrics.SetArmed(armed)
		s.logger.Info().Bool("armed", armed).Msg("arming gate toggled")
		if armed {
			return "Alerts armed."
		}
		return "Alerts disarmed."
	case "last temp":
		return s.lastTemperature(ctx)
	case "status":
		state := "disarmed"
		if s.gate.Armed() {
			state = "armed"
		}
		return fmt.Sprintf("Alerts %s. Tracking %d recent averages.", state, s.ledger.Len())
	default:
		return helpReply
	}
}

func (s *Service) lastTemperature(ctx context.Context) string {
	if s.readings == nil {
		return "Reading history is not available."
	}

	dbCtx, cancel := s.withDBTimeout(ctx)
	defer cancel()

	rec, err := s.readings.LatestReadingByType(dbCtx, sensor.Temperature.String())
	if errors.Is(err, storage.ErrNotFound) {
		return "No temperature readings recorded yet."
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load last temperature")
		return "Could not load the last temperature right now."
	}

	precision := int32(1)
	if p, ok := s.catalog.Profile(sensor.Temperature); ok {
		precision = p.Precision
	}
	value := decimal.NewFromFloat(rec.SensorReading).StringFixed(precision)
	return fmt.Sprintf("Last temperature from %s: %s at %s UTC.", rec.SensorName, value, rec.Timestamp.UTC().Format(time.RFC3339))
}
