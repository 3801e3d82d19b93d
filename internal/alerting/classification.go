package alerting

// Classification is the single alert outcome assigned to a reading.
type Classification int

const (
	NoAlert Classification = iota
	TooHighSingle
	TooLowSingle
	RapidIncrease
	RapidDecrease
	TooHighAverage
	TooLowAverage
)

var classificationNames = map[Classification]string{
	NoAlert:        "NO_ALERT",
	TooHighSingle:  "TOO_HIGH_SINGLE",
	TooLowSingle:   "TOO_LOW_SINGLE",
	RapidIncrease:  "RAPID_INCREASE",
	RapidDecrease:  "RAPID_DECREASE",
	TooHighAverage: "TOO_HIGH_AVERAGE",
	TooLowAverage:  "TOO_LOW_AVERAGE",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Alerting reports whether the classification should be queued.
func (c Classification) Alerting() bool {
	return c != NoAlert
}
