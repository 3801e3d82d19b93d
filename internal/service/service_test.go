package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/alerting"
	"sensorwatch/internal/average"
	"sensorwatch/internal/cache"
	"sensorwatch/internal/ledger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/sensor"
	"sensorwatch/internal/storage"
)

type fakeReadings struct {
	mu       sync.Mutex
	inserted []storage.ReadingRecord
	err      error
	latest   map[string]storage.ReadingRecord
}

func (f *fakeReadings) InsertReading(_ context.Context, rec storage.ReadingRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, rec)
	return int64(len(f.inserted)), nil
}

func (f *fakeReadings) LatestReadingByType(_ context.Context, sensorType string) (storage.ReadingRecord, error) {
	if rec, ok := f.latest[sensorType]; ok {
		return rec, nil
	}
	return storage.ReadingRecord{}, storage.ErrNotFound
}

func (f *fakeReadings) ListRecentReadings(context.Context, int) ([]storage.ReadingRecord, error) {
	return nil, nil
}

func (f *fakeReadings) ListReadingsBetween(context.Context, string, time.Time, time.Time) ([]storage.ReadingRecord, error) {
	return nil, nil
}

type fakeAlerts struct {
	mu       sync.Mutex
	inserted []storage.AlertRecord
	cutoff   time.Time
	locked   bool
}

func (f *fakeAlerts) InsertAlerts(_ context.Context, alerts []storage.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, alerts...)
	return nil
}

func (f *fakeAlerts) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (f *fakeAlerts) DeleteAlertsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	f.cutoff = olderThan
	return 3, nil
}

func (f *fakeAlerts) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if f.locked {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type brokenCache struct{ cache.Store }

func (brokenCache) Recent(context.Context, string) ([]storage.ReadingRecord, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type recordingNotifier struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	return r.err
}

type harness struct {
	svc      *Service
	readings *fakeReadings
	alerts   *fakeAlerts
	sink     *recordingNotifier
	recent   *cache.Memory
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, armed bool) *harness {
	t.Helper()
	catalog, err := sensor.NewCatalog(sensor.DefaultProfiles())
	require.NoError(t, err)

	h := &harness{
		readings: &fakeReadings{latest: map[string]storage.ReadingRecord{}},
		alerts:   &fakeAlerts{},
		sink:     &recordingNotifier{},
		recent:   cache.NewMemory(time.Minute),
		metrics:  metrics.New(),
	}
	h.svc, err = New(Options{
		Catalog:         catalog,
		Ledger:          ledger.New(8),
		Gate:            alerting.NewGate(armed),
		Recent:          h.recent,
		Readings:        h.readings,
		Alerts:          h.alerts,
		Notifier:        h.sink,
		Metrics:         h.metrics,
		Retention:       time.Minute,
		AuditRetention:  24 * time.Hour,
		AdvisoryLockKey: 1,
	}, zerolog.Nop())
	require.NoError(t, err)
	return h
}

func event(id string, captures ...sensor.Capture) sensor.Event {
	return sensor.Event{Timestamp: 1665021239, EventID: id, Lat: 45.57, Long: -122.66, Readings: captures}
}

func temp(name string, v float64) sensor.Capture {
	return sensor.Capture{SensorName: name, SensorReading: v, SensorType: sensor.Temperature}
}

func TestProcessEventRollingAverageAcrossEvents(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.svc.ProcessEvent(ctx, event("e1", temp("s1", 10)))
	h.svc.ProcessEvent(ctx, event("e2", temp("s1", 20)))
	res := h.svc.ProcessEvent(ctx, event("e3", temp("s1", 30)))

	require.Len(t, res.Readings, 1)
	assert.Equal(t, 20.0, res.Readings[0].Average)
	require.Len(t, h.readings.inserted, 3)
	assert.Equal(t, 20.0, h.readings.inserted[2].RecentAverage)
	assert.Equal(t, "temperature", h.readings.inserted[2].SensorType)
}

func TestProcessEventSingleDispatchPerBatch(t *testing.T) {
	h := newHarness(t, true)

	res := h.svc.ProcessEvent(context.Background(), event("e1",
		temp("a", 90),
		temp("b", 20),
		sensor.Capture{SensorName: "h", SensorReading: 25, SensorType: sensor.Humidity},
	))

	assert.Equal(t, alerting.OutcomeSent, res.Outcome)
	assert.Equal(t, 2, res.Queued)
	require.Len(t, h.sink.bodies, 1)
	assert.Equal(t,
		"a (temperature), Average: 90.0, TOO_HIGH_AVERAGE\nh (humidity), Average: 25.0, TOO_HIGH_SINGLE\n",
		h.sink.bodies[0])

	require.Len(t, h.alerts.inserted, 2)
	for _, a := range h.alerts.inserted {
		assert.True(t, a.Dispatched)
		assert.Equal(t, res.BatchID, a.BatchID)
		assert.NotEqual(t, uuid.Nil, a.BatchID)
	}
}

func TestProcessEventNoAlertsNeverDispatches(t *testing.T) {
	h := newHarness(t, true)

	res := h.svc.ProcessEvent(context.Background(), event("e1", temp("a", 20), temp("b", 21)))

	assert.Equal(t, alerting.OutcomeEmpty, res.Outcome)
	assert.Empty(t, h.sink.bodies)
	assert.Empty(t, h.alerts.inserted)
	assert.Empty(t, res.Message)
}

func TestProcessEventDisarmedStillDetectsAndAudits(t *testing.T) {
	h := newHarness(t, false)

	res := h.svc.ProcessEvent(context.Background(), event("e1", temp("a", 95)))

	assert.Equal(t, alerting.OutcomeSuppressed, res.Outcome)
	assert.Equal(t, 1, res.Queued)
	assert.Empty(t, h.sink.bodies)
	require.Len(t, h.alerts.inserted, 1)
	assert.False(t, h.alerts.inserted[0].Dispatched)
	assert.Equal(t, "TOO_HIGH_AVERAGE", h.alerts.inserted[0].Classification)
}

func TestProcessEventUnknownTypeIsolated(t *testing.T) {
	h := newHarness(t, true)

	res := h.svc.ProcessEvent(context.Background(), event("e1",
		sensor.Capture{SensorName: "x", SensorReading: 1000, SensorType: sensor.Type(9)},
		temp("a", 95),
	))

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, alerting.ErrUnknownSensorType)
	assert.NoError(t, res.Readings[1].Err)
	assert.Len(t, h.readings.inserted, 1, "the rejected reading is not persisted")
	assert.Len(t, h.sink.bodies, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReadingFailures.WithLabelValues("unknown_sensor_type")))
}

func TestProcessEventStoreUnavailableIsolated(t *testing.T) {
	h := newHarness(t, true)
	catalog, err := sensor.NewCatalog(sensor.DefaultProfiles())
	require.NoError(t, err)
	svc, err := New(Options{
		Catalog:  catalog,
		Recent:   brokenCache{Store: h.recent},
		Readings: h.readings,
		Notifier: h.sink,
		Gate:     alerting.NewGate(true),
	}, zerolog.Nop())
	require.NoError(t, err)

	res := svc.ProcessEvent(context.Background(), event("e1", temp("a", 95), temp("b", 96)))

	require.Len(t, res.Failed(), 2)
	for _, r := range res.Failed() {
		assert.ErrorIs(t, r.Err, average.ErrStoreUnavailable)
	}
	assert.Equal(t, alerting.OutcomeEmpty, res.Outcome)
	assert.Empty(t, h.readings.inserted)
}

func TestProcessEventDurableFailureStillEvaluates(t *testing.T) {
	h := newHarness(t, true)
	h.readings.err = errors.New("pg down")

	res := h.svc.ProcessEvent(context.Background(), event("e1", temp("a", 95)))

	require.Len(t, res.Readings, 1)
	assert.NoError(t, res.Readings[0].Err)
	assert.Error(t, res.Readings[0].PersistErr)
	assert.Equal(t, alerting.TooHighAverage, res.Readings[0].Classification)
	assert.Len(t, h.sink.bodies, 1)

	recent, err := h.recent.Recent(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, recent, 1, "the cache write is still attempted")
}

func TestProcessEventDispatchFailureKeepsPersistence(t *testing.T) {
	h := newHarness(t, true)
	h.sink.err = errors.New("twilio 500")

	res := h.svc.ProcessEvent(context.Background(), event("e1", temp("a", 95)))

	assert.Equal(t, alerting.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.DispatchErr, alerting.ErrDispatchFailure)
	assert.Len(t, h.readings.inserted, 1)
	require.Len(t, h.alerts.inserted, 1)
	assert.False(t, h.alerts.inserted[0].Dispatched)
}

func TestProcessEventSameSensorTwiceInOneBatch(t *testing.T) {
	h := newHarness(t, false)

	res := h.svc.ProcessEvent(context.Background(), event("e1", temp("s1", 10), temp("s1", 30)))

	require.Len(t, res.Readings, 2)
	assert.Equal(t, 10.0, res.Readings[0].Average)
	assert.Equal(t, 20.0, res.Readings[1].Average)
}

func TestProcessEventAverageDropRule(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	// Averages: 75, then (75+75)/2 = 75, then (75+75+30)/3 = 60 -> drop of 15.
	h.svc.ProcessEvent(ctx, event("e1", temp("s1", 75)))
	h.svc.ProcessEvent(ctx, event("e2", temp("s1", 75)))
	res := h.svc.ProcessEvent(ctx, event("e3", temp("s1", 30)))

	require.Len(t, res.Readings, 1)
	assert.Equal(t, 60.0, res.Readings[0].Average)
	assert.Equal(t, alerting.RapidIncrease, res.Readings[0].Classification)
}

func TestProcessEventConcurrentBatches(t *testing.T) {
	h := newHarness(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.svc.ProcessEvent(context.Background(), event("e", temp("a", 20), temp("b", 95)))
		}()
	}
	wg.Wait()

	assert.Len(t, h.readings.inserted, 20)
	assert.Len(t, h.sink.bodies, 10)
}
