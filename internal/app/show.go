package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"sensorwatch/internal/storage"
)

// Show prints recent readings, or recent alert audit records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return writeAlertTable(os.Stdout, alerts)
	}

	readings, err := store.ListRecentReadings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return a.writeReadingTable(os.Stdout, readings)
}

func (a *App) writeReadingTable(out io.Writer, readings []storage.ReadingRecord) error {
	if len(readings) == 0 {
		fmt.Fprintln(out, "no readings found")
		return nil
	}

	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tEvent\tSensor\tType\tReading\tAverage")

	for _, rec := range readings {
		precision := int32(2)
		if reading, err := rec.Reading(); err == nil {
			if p, ok := catalog.Profile(reading.SensorType); ok {
				precision = p.Precision
			}
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Timestamp.UTC().Format(time.RFC3339),
			sanitizeInline(rec.EventID),
			sanitizeInline(rec.SensorName),
			rec.SensorType,
			formatFloat(rec.SensorReading, precision),
			formatFloat(rec.RecentAverage, precision),
		)
	}

	return writer.Flush()
}

func writeAlertTable(out io.Writer, alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tBatch\tSensor\tType\tClassification\tReading\tAverage\tDispatched")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.BatchID.String()[:8],
			sanitizeInline(alert.SensorName),
			alert.SensorType,
			alert.Classification,
			alert.SensorReading.String(),
			alert.RecentAverage.String(),
			alert.Dispatched,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
