package exchange

import "time"

// Entry records one exchange for audit/debug.
type Entry struct {
	ID             string        `json:"id"`
	Endpoint       string        `json:"endpoint"`
	Query          string        `json:"query"`
	DisplayText    string        `json:"displayText,omitempty"`
	HasDisplayText bool          `json:"hasDisplayText"`
	Error          string        `json:"error,omitempty"`
	Code           string        `json:"code,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
}

// Failed reports whether the exchange ended with an error.
func (e Entry) Failed() bool {
	return e.Error != ""
}
