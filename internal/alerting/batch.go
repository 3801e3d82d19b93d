package alerting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"sensorwatch/internal/sensor"
)

// QueuedAlert pairs a reading with the classification that queued it.
type QueuedAlert struct {
	Reading        sensor.Reading
	Classification Classification
}

// Batch is the notification queue for one inbound event. It is not safe for
// concurrent use; each event gets its own batch.
type Batch struct {
	evaluator *Evaluator
	catalog   *sensor.Catalog
	queued    []QueuedAlert
}

// NewBatch starts an empty queue.
func NewBatch(evaluator *Evaluator, catalog *sensor.Catalog) *Batch {
	return &Batch{evaluator: evaluator, catalog: catalog}
}

// Evaluate classifies r and queues it unless the result is NoAlert.
func (b *Batch) Evaluate(r sensor.Reading) (Classification, error) {
	c, err := b.evaluator.Evaluate(r)
	if err != nil {
		return NoAlert, err
	}
	if c.Alerting() {
		b.queued = append(b.queued, QueuedAlert{Reading: r, Classification: c})
	}
	return c, nil
}

// Queued returns the alerts in arrival order.
func (b *Batch) Queued() []QueuedAlert {
	out := make([]QueuedAlert, len(b.queued))
	copy(out, b.queued)
	return out
}

// Empty reports whether nothing was queued.
func (b *Batch) Empty() bool {
	return len(b.queued) == 0
}

// Message renders one line per queued alert. It returns an empty string when
// the queue is empty.
func (b *Batch) Message() string {
	if b.Empty() {
		return ""
	}
	builder := strings.Builder{}
	for _, q := range b.queued {
		builder.WriteString(FormatLine(q, b.precision(q.Reading.SensorType)))
		builder.WriteString("\n")
	}
	return builder.String()
}

func (b *Batch) precision(t sensor.Type) int32 {
	if p, ok := b.catalog.Profile(t); ok {
		return p.Precision
	}
	return 2
}

// FormatLine renders a single queued alert. Rounding here is presentation only.
func FormatLine(q QueuedAlert, precision int32) string {
	avg := decimal.NewFromFloat(q.Reading.RecentAverage).StringFixed(precision)
	return fmt.Sprintf("%s (%s), Average: %s, %s", q.Reading.SensorName, q.Reading.SensorType, avg, q.Classification)
}
