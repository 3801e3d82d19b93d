package service

import (
	"github.com/rs/zerolog"

	"sensorwatch/internal/alerting"
	"sensorwatch/internal/ledger"
	"sensorwatch/internal/sensor"
	"sensorwatch/internal/storage"
)

// ReplayResult is the would-have-alerted view of a set of stored readings.
type ReplayResult struct {
	Evaluated int
	Skipped   int
	Alerts    []alerting.QueuedAlert
	Lines     []string
}

// Replay re-evaluates stored readings, oldest first, against the catalog.
// Stored averages are reused as-is and fed to a private ledger, so the
// live ledger is never touched and nothing is dispatched.
func Replay(catalog *sensor.Catalog, records []storage.ReadingRecord, logger zerolog.Logger) ReplayResult {
	l := ledger.New(len(records) + 1)
	evaluator := alerting.NewEvaluator(catalog, l, logger)
	batch := alerting.NewBatch(evaluator, catalog)

	var result ReplayResult
	for _, rec := range records {
		reading, err := rec.Reading()
		if err != nil {
			result.Skipped++
			continue
		}
		entry := l.Record(reading.SensorName, reading.RecentAverage)
		reading.LedgerSeq = entry.Seq

		if _, err := batch.Evaluate(reading); err != nil {
			result.Skipped++
			continue
		}
		result.Evaluated++
	}

	result.Alerts = batch.Queued()
	for _, q := range result.Alerts {
		precision := int32(2)
		if p, ok := catalog.Profile(q.Reading.SensorType); ok {
			precision = p.Precision
		}
		result.Lines = append(result.Lines, q.Reading.Timestamp.UTC().Format("2006-01-02T15:04:05Z")+" "+alerting.FormatLine(q, precision))
	}
	return result
}
