package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"sensorwatch/internal/alerting"
	"sensorwatch/internal/cache"
	"sensorwatch/internal/ledger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/sensor"
	"sensorwatch/internal/service"
)

// Simulate pushes a synthetic event through an in-process pipeline. Nothing
// is persisted; alerts reach the configured channels only when the gate is
// armed, either by configuration or ForceDispatch.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	ev, err := simulatedEvent(opts, time.Now().UTC())
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if opts.ForceDispatch && notifier == nil {
		return errors.New("--force-dispatch requires an enabled alert channel")
	}

	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	svc, err := service.New(service.Options{
		Catalog:   catalog,
		Ledger:    ledger.New(a.Config.Ledger.MaxEntriesPerSensor),
		Gate:      alerting.NewGate(a.Config.Alerting.Armed || opts.ForceDispatch),
		Recent:    cache.NewMemory(a.Config.Cache.Retention),
		Notifier:  notifier,
		Metrics:   metrics.New(),
		Retention: a.Config.Cache.Retention,
	}, a.Logger)
	if err != nil {
		return err
	}

	repeat := opts.Repeat
	if repeat <= 0 {
		repeat = 1
	}
	for i := 0; i < repeat; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batchEvent := ev
		batchEvent.EventID = fmt.Sprintf("%s-%d", ev.EventID, i+1)
		printBatch(os.Stdout, svc.ProcessEvent(ctx, batchEvent))
	}
	return nil
}

func simulatedEvent(opts SimulateOptions, now time.Time) (sensor.Event, error) {
	if opts.EventPath != "" {
		raw, err := os.ReadFile(opts.EventPath)
		if err != nil {
			return sensor.Event{}, fmt.Errorf("read event file: %w", err)
		}
		var ev sensor.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return sensor.Event{}, fmt.Errorf("decode event file: %w", err)
		}
		if err := ev.Validate(); err != nil {
			return sensor.Event{}, err
		}
		return ev, nil
	}

	if opts.Sensor == "" {
		return sensor.Event{}, errors.New("either --event or --sensor must be provided")
	}
	if !opts.Type.Known() {
		return sensor.Event{}, fmt.Errorf("unknown sensor type %s", opts.Type)
	}
	return sensor.Event{
		Timestamp: now.Unix(),
		EventID:   "simulated",
		Readings: []sensor.Capture{{
			SensorName:    opts.Sensor,
			SensorReading: opts.Value,
			SensorType:    opts.Type,
		}},
	}, nil
}

func printBatch(out io.Writer, res service.BatchResult) {
	for _, r := range res.Readings {
		if r.Err != nil {
			fmt.Fprintf(out, "%s %s: error: %v\n", res.EventID, r.SensorName, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s %s (%s) average=%g %s\n", res.EventID, r.SensorName, r.SensorType, r.Average, r.Classification)
	}
	if res.Message != "" {
		fmt.Fprint(out, res.Message)
	}
	fmt.Fprintf(out, "%s dispatch: %s\n", res.EventID, res.Outcome)
}
