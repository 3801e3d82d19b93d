package sensor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Type identifies the kind of quantity a sensor measures.
type Type int

const (
	// Unknown is the zero value; no threshold profile exists for it.
	Unknown Type = iota
	Temperature
	Humidity
	AirQuality
)

// Types lists every supported sensor type.
var Types = []Type{Temperature, Humidity, AirQuality}

var typeNames = map[Type]string{
	Temperature: "temperature",
	Humidity:    "humidity",
	AirQuality:  "air_quality",
}

// String returns the config/storage tag of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is one of the supported sensor types.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType resolves a type from its tag or numeric code.
func ParseType(v string) (Type, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if code, err := strconv.Atoi(v); err == nil {
		return Type(code), nil
	}
	for t, name := range typeNames {
		if v == name || v == strings.ReplaceAll(name, "_", "") {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown sensor type %q", v)
}

// MarshalJSON encodes the numeric code, matching what devices send.
func (t Type) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(t))), nil
}

// UnmarshalJSON accepts a numeric code or a type tag. Unrecognised values
// decode without error so a single bad reading does not reject the event.
func (t *Type) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*t = Type(code)
		return nil
	}

	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("sensor_type must be a number or string: %w", err)
	}
	parsed, err := ParseType(tag)
	if err != nil {
		*t = Unknown
		return nil
	}
	*t = parsed
	return nil
}
