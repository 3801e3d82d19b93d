package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"sensorwatch/internal/storage"
)

// Export renders one sensor's readings and rolling averages as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Sensor == "" {
		return errors.New("--sensor must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	from, to, err := a.exportWindow(opts.From, opts.To)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	readings, err := store.ListReadingsBetween(ctx, opts.Sensor, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Str("sensor", opts.Sensor).Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(readings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(readings)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, opts.Sensor, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) exportWindow(fromOpt, toOpt *time.Time) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if toOpt != nil {
		to = toOpt.UTC()
	}

	from := to.Add(-a.Config.Export.DefaultWindow)
	if fromOpt != nil {
		from = fromOpt.UTC()
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func downsampleReadings(readings []storage.ReadingRecord, max int) []storage.ReadingRecord {
	if max <= 0 || len(readings) <= max {
		return readings
	}
	if max == 1 {
		return readings[len(readings)-1:]
	}

	result := make([]storage.ReadingRecord, 0, max)
	step := float64(len(readings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		result = append(result, readings[idx])
	}
	return result
}

func writeReadingsCSV(path string, readings []storage.ReadingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"timestamp", "event_id", "sensor_name", "sensor_type", "sensor_reading", "recent_average", "lat", "long"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range readings {
		record := []string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.EventID,
			rec.SensorName,
			rec.SensorType,
			strconv.FormatFloat(rec.SensorReading, 'f', -1, 64),
			strconv.FormatFloat(rec.RecentAverage, 'f', -1, 64),
			strconv.FormatFloat(rec.Lat, 'f', -1, 64),
			strconv.FormatFloat(rec.Long, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeReadingsPNG(path, sensorName string, readings []storage.ReadingRecord) error {
	if len(readings) < 2 {
		return errors.New("at least two readings are required to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(readings))
	raw := make([]float64, len(readings))
	avg := make([]float64, len(readings))

	for i, rec := range readings {
		x[i] = rec.Timestamp
		raw[i] = rec.SensorReading
		avg[i] = rec.RecentAverage
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Title:  sensorName + " (" + readings[0].SensorType + ")",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Value",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Reading",
				XValues: x,
				YValues: raw,
			},
			chart.TimeSeries{
				Name:    "Recent average",
				XValues: x,
				YValues: avg,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
