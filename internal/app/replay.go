package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sensorwatch/internal/service"
)

// Replay re-evaluates stored readings in [From, To) against the configured
// thresholds and prints what would have alerted. Nothing is dispatched or
// written.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("replay range is empty; check --from/--to")
	}

	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot replay")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListReadingsBetween(ctx, opts.Sensor, opts.From.UTC(), opts.To.UTC())
	if err != nil {
		return err
	}

	result := service.Replay(catalog, records, a.Logger)
	for _, line := range result.Lines {
		fmt.Fprintln(os.Stdout, line)
	}

	a.Logger.Info().
		Int("readings", len(records)).
		Int("evaluated", result.Evaluated).
		Int("skipped", result.Skipped).
		Int("alerts", len(result.Alerts)).
		Msg("replay completed")
	return nil
}
