package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Capture is a single sensor value inside an inbound event.
type Capture struct {
	SensorName    string  `json:"sensor_name"`
	SensorReading float64 `json:"sensor_reading"`
	SensorType    Type    `json:"sensor_type"`
}

// Event is one webhook delivery carrying captures from several sensors.
type Event struct {
	Timestamp int64     `json:"timestamp"`
	EventID   string    `json:"event_id"`
	Lat       float64   `json:"lat"`
	Long      float64   `json:"long"`
	Readings  []Capture `json:"readings"`
}

// UnmarshalJSON accepts both the canonical field names and the ones the
// Notecard routing template emits (datetime, event, best_lat, best_long).
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp *int64    `json:"timestamp"`
		Datetime  *int64    `json:"datetime"`
		EventID   string    `json:"event_id"`
		Event     string    `json:"event"`
		Lat       *float64  `json:"lat"`
		BestLat   *float64  `json:"best_lat"`
		Long      *float64  `json:"long"`
		BestLong  *float64  `json:"best_long"`
		Readings  []Capture `json:"readings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Event{
		Timestamp: firstInt(raw.Timestamp, raw.Datetime),
		EventID:   raw.EventID,
		Lat:       firstFloat(raw.Lat, raw.BestLat),
		Long:      firstFloat(raw.Long, raw.BestLong),
		Readings:  raw.Readings,
	}
	if e.EventID == "" {
		e.EventID = raw.Event
	}
	return nil
}

// Validate checks the event-level fields. Per-capture problems such as an
// unknown sensor type are reported per reading, not here.
func (e Event) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("event_id is required")
	}
	if e.Timestamp <= 0 {
		return errors.New("timestamp must be a positive unix time")
	}
	for i, c := range e.Readings {
		if strings.TrimSpace(c.SensorName) == "" {
			return fmt.Errorf("readings[%d].sensor_name is required", i)
		}
	}
	return nil
}

// Time returns the event timestamp in UTC.
func (e Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// Reading is an individual capture enriched with its event context and the
// rolling average computed at ingestion. It is never mutated once built.
type Reading struct {
	Timestamp     time.Time
	EventID       string
	Lat           float64
	Long          float64
	SensorName    string
	SensorType    Type
	SensorReading float64
	RecentAverage float64
	// LedgerSeq is the sequence number of this reading's own entry in the
	// average ledger; zero when no entry was recorded.
	LedgerSeq uint64
}

// NewReading builds a reading from an event capture and its computed average.
func NewReading(e Event, c Capture, average float64, seq uint64) Reading {
	return Reading{
		Timestamp:     e.Time(),
		EventID:       e.EventID,
		Lat:           e.Lat,
		Long:          e.Long,
		SensorName:    c.SensorName,
		SensorType:    c.SensorType,
		SensorReading: c.SensorReading,
		RecentAverage: average,
		LedgerSeq:     seq,
	}
}

func firstInt(values ...*int64) int64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstFloat(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
