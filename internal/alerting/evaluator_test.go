package alerting

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/ledger"
	"sensorwatch/internal/sensor"
)

func testCatalog(t *testing.T) *sensor.Catalog {
	t.Helper()
	catalog, err := sensor.NewCatalog(sensor.DefaultProfiles())
	require.NoError(t, err)
	return catalog
}

func tempReading(raw, avg float64) sensor.Reading {
	return sensor.Reading{SensorName: "arduino1", SensorType: sensor.Temperature, SensorReading: raw, RecentAverage: avg}
}

func TestEvaluatePrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  float64
		avg  float64
		want Classification
	}{
		{"single too high before rapid increase", 85, 70, TooHighSingle},
		{"average too high first", 70, 82, TooHighAverage},
		{"rapid increase", 75, 60, RapidIncrease},
		{"average wins even when everything fires", 200, 80, TooHighAverage},
		{"inclusive average ceiling", 0, 80, TooHighAverage},
		{"inclusive single ceiling", 80, 79.99, TooHighSingle},
		{"inclusive increase", 70, 60, RapidIncrease},
		{"just under increase", 69.999, 60, NoAlert},
		{"quiet", 20, 20, NoAlert},
		{"very large reading", 2e18, -5.6e9, TooHighSingle},
		{"decimals", 1500.52323, -342.4, TooHighSingle},
		{"huge average", -54, 2e14, TooHighAverage},
	}

	ev := NewEvaluator(testCatalog(t), nil, zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(tempReading(tc.raw, tc.avg))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateAverageDropUsesPrecedingLedgerEntry(t *testing.T) {
	l := ledger.New(0)
	l.Record("arduino1", 75)
	own := l.Record("arduino1", 64)

	ev := NewEvaluator(testCatalog(t), l, zerolog.Nop())
	r := tempReading(64, 64)
	r.LedgerSeq = own.Seq

	got, err := ev.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, RapidIncrease, got, "75 - 64 >= 10")

	again, err := ev.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, got, again, "evaluation is idempotent for an unchanged ledger")
}

func TestEvaluateLedgerRuleIgnoresOtherSensors(t *testing.T) {
	l := ledger.New(0)
	l.Record("other", 500)
	own := l.Record("arduino1", 40)

	ev := NewEvaluator(testCatalog(t), l, zerolog.Nop())
	r := tempReading(40, 40)
	r.LedgerSeq = own.Seq

	got, err := ev.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, NoAlert, got)
}

func TestEvaluateLedgerRuleBelowThreshold(t *testing.T) {
	l := ledger.New(0)
	l.Record("arduino1", 50)
	own := l.Record("arduino1", 45)

	ev := NewEvaluator(testCatalog(t), l, zerolog.Nop())
	r := tempReading(45, 45)
	r.LedgerSeq = own.Seq

	got, err := ev.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, NoAlert, got)
}

func TestEvaluateUsesProfileOfReadingType(t *testing.T) {
	ev := NewEvaluator(testCatalog(t), nil, zerolog.Nop())

	// 25 is below every temperature ceiling but above the humidity single ceiling of 20.
	r := sensor.Reading{SensorName: "h1", SensorType: sensor.Humidity, SensorReading: 25, RecentAverage: 22}
	got, err := ev.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, TooHighSingle, got)

	r.SensorType = sensor.Temperature
	got, err = ev.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, NoAlert, got)
}

func TestEvaluateUnknownSensorType(t *testing.T) {
	ev := NewEvaluator(testCatalog(t), nil, zerolog.Nop())

	_, err := ev.Evaluate(sensor.Reading{SensorName: "x", SensorType: sensor.Type(9), SensorReading: 1})
	assert.ErrorIs(t, err, ErrUnknownSensorType)
}

func TestLowSideClassificationsAreNeverProduced(t *testing.T) {
	ev := NewEvaluator(testCatalog(t), nil, zerolog.Nop())

	got, err := ev.Evaluate(tempReading(-100, -100))
	require.NoError(t, err)
	assert.Equal(t, NoAlert, got)
}
