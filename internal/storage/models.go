package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sensorwatch/internal/sensor"
)

// ReadingRecord is the persisted shape of a reading, shared by the durable
// store and the recent-reading cache.
type ReadingRecord struct {
	ID            int64     `json:"-"`
	Timestamp     time.Time `json:"timestamp"`
	EventID       string    `json:"event_id"`
	Lat           float64   `json:"lat"`
	Long          float64   `json:"long"`
	SensorName    string    `json:"sensor_name"`
	SensorReading float64   `json:"sensor_reading"`
	RecentAverage float64   `json:"recent_average"`
	SensorType    string    `json:"sensor_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecordFromReading flattens a reading for persistence.
func RecordFromReading(r sensor.Reading) ReadingRecord {
	return ReadingRecord{
		Timestamp:     r.Timestamp,
		EventID:       r.EventID,
		Lat:           r.Lat,
		Long:          r.Long,
		SensorName:    r.SensorName,
		SensorReading: r.SensorReading,
		RecentAverage: r.RecentAverage,
		SensorType:    r.SensorType.String(),
		CreatedAt:     time.Now().UTC(),
	}
}

// Reading rebuilds a sensor reading from a stored record. LedgerSeq is not
// persisted and is always zero.
func (r ReadingRecord) Reading() (sensor.Reading, error) {
	t, err := sensor.ParseType(r.SensorType)
	if err != nil {
		return sensor.Reading{}, err
	}
	return sensor.Reading{
		Timestamp:     r.Timestamp,
		EventID:       r.EventID,
		Lat:           r.Lat,
		Long:          r.Long,
		SensorName:    r.SensorName,
		SensorType:    t,
		SensorReading: r.SensorReading,
		RecentAverage: r.RecentAverage,
	}, nil
}

// AlertRecord captures one queued classification for auditing, whether or
// not the batch message was dispatched.
type AlertRecord struct {
	ID             int64
	BatchID        uuid.UUID
	EventID        string
	SensorName     string
	SensorType     string
	Classification string
	SensorReading  decimal.Decimal
	RecentAverage  decimal.Decimal
	Dispatched     bool
	CreatedAt      time.Time
}
