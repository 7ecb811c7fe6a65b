package checker

import (
	"fmt"
	"net/http"
)

const (
	MessageLive            = "Site is Live"
	MessageNotFound        = "404 Not Found"
	MessageServerError     = "Server Error"
	MessageCouldNotConnect = "Could not connect"
)

type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Record is the outcome of checking a single URL.
// StatusCode is 0 when no response was received.
type Record struct {
	Domain     string
	StatusCode int
	Message    string
}

func (r Record) HasStatus() bool {
	return r.StatusCode != 0
}

func (r Record) Severity() Severity {
	switch {
	case r.StatusCode == http.StatusOK:
		return SeverityOK
	case r.StatusCode == 0 || r.StatusCode == http.StatusNotFound:
		return SeverityError
	default:
		return SeverityWarn
	}
}

// Classify maps a received HTTP status code to its report message.
func Classify(code int) string {
	switch {
	case code == http.StatusOK:
		return MessageLive
	case code == http.StatusNotFound:
		return MessageNotFound
	case code >= 500 && code < 600:
		return MessageServerError
	default:
		return fmt.Sprintf("HTTP %d", code)
	}
}
