package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sensorwatch/internal/alerting"
	"sensorwatch/internal/average"
	"sensorwatch/internal/cache"
	"sensorwatch/internal/ledger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/sensor"
	"sensorwatch/internal/storage"
)

// Options carries the collaborators of the ingestion pipeline. Readings and
// Alerts may be nil, in which case durable persistence or auditing is skipped.
type Options struct {
	Catalog   *sensor.Catalog
	Ledger    *ledger.Ledger
	Gate      *alerting.Gate
	Recent    cache.Store
	Readings  storage.ReadingStore
	Alerts    storage.AlertStore
	Notifier  alerting.Notifier
	Metrics   *metrics.Metrics
	Retention time.Duration
	// CacheTimeout bounds each recent-window fetch.
	CacheTimeout time.Duration
	// DBTimeout bounds each durable store call.
	DBTimeout       time.Duration
	AuditRetention  time.Duration
	AdvisoryLockKey int64
}

// Service runs inbound events through averaging, persistence, evaluation
// and dispatch.
type Service struct {
	catalog    *sensor.Catalog
	ledger     *ledger.Ledger
	gate       *alerting.Gate
	engine     *average.Engine
	evaluator  *alerting.Evaluator
	dispatcher *alerting.Dispatcher
	recent     cache.Store
	readings   storage.ReadingStore
	alerts     storage.AlertStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	retention      time.Duration
	dbTimeout      time.Duration
	auditRetention time.Duration
	locker         storage.AdvisoryLocker
	lockKey        int64
	newBatchID     func() uuid.UUID
}

// New constructs the ingestion service.
func New(opts Options, logger zerolog.Logger) (*Service, error) {
	if opts.Catalog == nil {
		return nil, errors.New("service: threshold catalog is required")
	}
	if opts.Recent == nil {
		return nil, errors.New("service: recent-reading store is required")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(ledger.DefaultMaxPerSensor)
	}
	if opts.Gate == nil {
		opts.Gate = alerting.NewGate(false)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Retention <= 0 {
		opts.Retention = cache.DefaultWindow
	}

	var locker storage.AdvisoryLocker
	if l, ok := opts.Alerts.(storage.AdvisoryLocker); ok {
		locker = l
	}

	evaluator := alerting.NewEvaluator(opts.Catalog, opts.Ledger, logger)
	opts.Metrics.SetArmed(opts.Gate.Armed())

	return &Service{
		catalog:        opts.Catalog,
		ledger:         opts.Ledger,
		gate:           opts.Gate,
		engine:         average.NewEngine(opts.Recent, opts.Ledger, opts.CacheTimeout, logger),
		evaluator:      evaluator,
		dispatcher:     alerting.NewDispatcher(opts.Gate, opts.Notifier, logger),
		recent:         opts.Recent,
		readings:       opts.Readings,
		alerts:         opts.Alerts,
		metrics:        opts.Metrics,
		logger:         logger.With().Str("component", "service").Logger(),
		retention:      opts.Retention,
		dbTimeout:      opts.DBTimeout,
		auditRetention: opts.AuditRetention,
		locker:         locker,
		lockKey:        opts.AdvisoryLockKey,
		newBatchID:     uuid.New,
	}, nil
}

// Gate exposes the arming switch.
func (s *Service) Gate() *alerting.Gate {
	return s.gate
}

// ReadingResult reports what happened to one capture of an event.
type ReadingResult struct {
	SensorName     string
	SensorType     sensor.Type
	Average        float64
	Classification alerting.Classification
	// Err is set when the reading could not be evaluated.
	Err error
	// PersistErr is set when the durable or cache write failed; the reading
	// was still evaluated.
	PersistErr error
}

// BatchResult summarises one processed event.
type BatchResult struct {
	BatchID     uuid.UUID
	EventID     string
	Readings    []ReadingResult
	Queued      int
	Message     string
	Outcome     alerting.Outcome
	DispatchErr error
}

// Failed returns the readings that could not be evaluated.
func (b BatchResult) Failed() []ReadingResult {
	var out []ReadingResult
	for _, r := range b.Readings {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// ProcessEvent evaluates every capture of ev in order, then flushes the
// batch once. A failing capture never stops its siblings.
func (s *Service) ProcessEvent(ctx context.Context, ev sensor.Event) BatchResult {
	result := BatchResult{
		BatchID:  s.newBatchID(),
		EventID:  ev.EventID,
		Readings: make([]ReadingResult, 0, len(ev.Readings)),
	}
	logger := s.logger.With().Str("event_id", ev.EventID).Str("batch_id", result.BatchID.String()).Logger()
	s.metrics.EventsReceived.Inc()

	batch := alerting.NewBatch(s.evaluator, s.catalog)
	for _, capture := range ev.Readings {
		rr := s.processReading(ctx, batch, ev, capture, logger)
		result.Readings = append(result.Readings, rr)
	}

	queued := batch.Queued()
	result.Queued = len(queued)
	result.Message = batch.Message()

	outcome, err := s.dispatcher.Flush(ctx, batch)
	result.Outcome = outcome
	s.metrics.Dispatches.WithLabelValues(outcome.String()).Inc()
	if err != nil {
		result.DispatchErr = err
		logger.Error().Err(err).Int("alerts", len(queued)).Msg("failed to dispatch alerts")
	}

	s.audit(ctx, result, queued, logger)
	s.metrics.LedgerEntries.Set(float64(s.ledger.Len()))

	logger.Info().Int("readings", len(ev.Readings)).
		Int("failed", len(result.Failed())).
		Int("queued", result.Queued).
		Stringer("outcome", outcome).
		Msg("event processed")
	return result
}

func (s *Service) processReading(ctx context.Context, batch *alerting.Batch, ev sensor.Event, c sensor.Capture, logger zerolog.Logger) ReadingResult {
	rr := ReadingResult{SensorName: c.SensorName, SensorType: c.SensorType}

	if _, ok := s.catalog.Profile(c.SensorType); !ok {
		rr.Err = fmt.Errorf("reading %s: %w: %s", c.SensorName, alerting.ErrUnknownSensorType, c.SensorType)
		s.fail(logger, rr, "unknown_sensor_type")
		return rr
	}

	avg, err := s.engine.Compute(ctx, c.SensorName, c.SensorReading)
	if err != nil {
		rr.Err = err
		s.fail(logger, rr, "store_unavailable")
		return rr
	}
	rr.Average = avg.Average

	reading := sensor.NewReading(ev, c, avg.Average, avg.Entry.Seq)
	rr.PersistErr = s.persist(ctx, reading, logger)

	classification, err := batch.Evaluate(reading)
	if err != nil {
		rr.Err = err
		s.fail(logger, rr, "evaluation")
		return rr
	}
	rr.Classification = classification

	s.metrics.ReadingsTotal.WithLabelValues(c.SensorType.String()).Inc()
	s.metrics.Classifications.WithLabelValues(classification.String()).Inc()
	return rr
}

// persist writes the durable record and then the cache record. Both are
// attempted; their errors are joined.
func (s *Service) persist(ctx context.Context, r sensor.Reading, logger zerolog.Logger) error {
	rec := storage.RecordFromReading(r)
	var errs []error

	if s.readings != nil {
		dbCtx, cancel := s.withDBTimeout(ctx)
		_, err := s.readings.InsertReading(dbCtx, rec)
		cancel()
		if err != nil {
			s.metrics.ReadingFailures.WithLabelValues("durable_write").Inc()
			logger.Error().Err(err).Str("sensor", r.SensorName).Msg("failed to persist reading")
			errs = append(errs, fmt.Errorf("durable write: %w", err))
		}
	}

	if err := s.recent.Put(ctx, rec, s.retention); err != nil {
		s.metrics.ReadingFailures.WithLabelValues("cache_write").Inc()
		logger.Error().Err(err).Str("sensor", r.SensorName).Msg("failed to cache reading")
		errs = append(errs, fmt.Errorf("cache write: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) audit(ctx context.Context, result BatchResult, queued []alerting.QueuedAlert, logger zerolog.Logger) {
	if s.alerts == nil || len(queued) == 0 {
		return
	}

	records := make([]storage.AlertRecord, 0, len(queued))
	for _, q := range queued {
		records = append(records, storage.AlertRecord{
			BatchID:        result.BatchID,
			EventID:        q.Reading.EventID,
			SensorName:     q.Reading.SensorName,
			SensorType:     q.Reading.SensorType.String(),
			Classification: q.Classification.String(),
			SensorReading:  decimal.NewFromFloat(q.Reading.SensorReading),
			RecentAverage:  decimal.NewFromFloat(q.Reading.RecentAverage),
			Dispatched:     result.Outcome == alerting.OutcomeSent,
		})
	}

	dbCtx, cancel := s.withDBTimeout(ctx)
	defer cancel()
	if err := s.alerts.InsertAlerts(dbCtx, records); err != nil {
		logger.Error().Err(err).Int("alerts", len(records)).Msg("failed to persist alert records")
	}
}

func (s *Service) fail(logger zerolog.Logger, rr ReadingResult, reason string) {
	s.metrics.ReadingFailures.WithLabelValues(reason).Inc()
	logger.Warn().Err(rr.Err).Str("sensor", rr.SensorName).Str("reason", reason).Msg("reading rejected")
}

func (s *Service) withDBTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.dbTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.dbTimeout)
}
