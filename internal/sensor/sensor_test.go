package sensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventUnmarshalNotecardFields(t *testing.T) {
	payload := `{
		"datetime": 1665021239,
		"event": "f3ec6e7b-382b-472b-ad13-c52d7327cf76",
		"best_lat": 45.5728875,
		"best_long": -122.666109375,
		"readings": [
			{"sensor_name": "arduino_1", "sensor_reading": 95, "sensor_type": 1},
			{"sensor_name": "arduino_2", "sensor_reading": 41.5, "sensor_type": "humidity"}
		]
	}`

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	require.NoError(t, ev.Validate())

	assert.Equal(t, int64(1665021239), ev.Timestamp)
	assert.Equal(t, "f3ec6e7b-382b-472b-ad13-c52d7327cf76", ev.EventID)
	assert.InDelta(t, 45.5728875, ev.Lat, 1e-9)
	assert.InDelta(t, -122.666109375, ev.Long, 1e-9)
	require.Len(t, ev.Readings, 2)
	assert.Equal(t, Temperature, ev.Readings[0].SensorType)
	assert.Equal(t, Humidity, ev.Readings[1].SensorType)
}

func TestEventUnmarshalCanonicalFields(t *testing.T) {
	payload := `{"timestamp": 10, "event_id": "e1", "lat": 1, "long": 2, "readings": [{"sensor_name": "s1", "sensor_reading": 3, "sensor_type": "air_quality"}]}`

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	assert.Equal(t, "e1", ev.EventID)
	assert.Equal(t, AirQuality, ev.Readings[0].SensorType)
}

func TestUnknownSensorTypeDecodesWithoutError(t *testing.T) {
	var ev Event
	payload := `{"timestamp": 10, "event_id": "e1", "readings": [
		{"sensor_name": "a", "sensor_reading": 1, "sensor_type": 9},
		{"sensor_name": "b", "sensor_reading": 1, "sensor_type": "pressure"}
	]}`
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))

	assert.False(t, ev.Readings[0].SensorType.Known())
	assert.Equal(t, Type(9), ev.Readings[0].SensorType)
	assert.Equal(t, Unknown, ev.Readings[1].SensorType)
}

func TestEventValidate(t *testing.T) {
	assert.Error(t, Event{Timestamp: 1}.Validate())
	assert.Error(t, Event{EventID: "e"}.Validate())
	assert.Error(t, Event{EventID: "e", Timestamp: 1, Readings: []Capture{{SensorName: " "}}}.Validate())
	assert.NoError(t, Event{EventID: "e", Timestamp: 1}.Validate())
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"temperature": Temperature,
		"Humidity":    Humidity,
		"airquality":  AirQuality,
		"air_quality": AirQuality,
		"3":           AirQuality,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseType("pressure")
	assert.Error(t, err)
}

func TestNewCatalogRequiresEveryType(t *testing.T) {
	profiles := DefaultProfiles()
	delete(profiles, Humidity)

	_, err := NewCatalog(profiles)
	assert.Error(t, err)
}

func TestCatalogProfilesAreIndependent(t *testing.T) {
	profiles := DefaultProfiles()
	hum := profiles[Humidity]
	hum.Average = 55
	profiles[Humidity] = hum

	catalog, err := NewCatalog(profiles)
	require.NoError(t, err)

	temp, ok := catalog.Profile(Temperature)
	require.True(t, ok)
	assert.Equal(t, 80.0, temp.Average)

	got, ok := catalog.Profile(Humidity)
	require.True(t, ok)
	assert.Equal(t, 55.0, got.Average)

	_, ok = catalog.Profile(Type(42))
	assert.False(t, ok)
}

func TestNewReadingCarriesEventContext(t *testing.T) {
	ev := Event{Timestamp: 1665021239, EventID: "e1", Lat: 1.5, Long: -2.5}
	r := NewReading(ev, Capture{SensorName: "s1", SensorReading: 30, SensorType: Temperature}, 20, 7)

	assert.Equal(t, ev.Time(), r.Timestamp)
	assert.Equal(t, "e1", r.EventID)
	assert.Equal(t, "s1", r.SensorName)
	assert.Equal(t, 30.0, r.SensorReading)
	assert.Equal(t, 20.0, r.RecentAverage)
	assert.Equal(t, uint64(7), r.LedgerSeq)
}
