package types

import "time"

// Severity of a log trail entry
type Severity string

// Severity constants
const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// LogEntry is one line of a run's append-only trail.
type LogEntry struct {
	Seq      int       `json:"seq"`
	Time     time.Time `json:"time"`
	Stage    Stage     `json:"stage"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}
