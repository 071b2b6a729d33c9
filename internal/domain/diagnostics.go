package domain

import "time"

// DiagnosticStatus is the outcome of one startup check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem reports one startup check: what was checked, whether it
// passed, and a hint on how to fix it when it did not.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport is the result of a full check run.
type DiagnosticReport struct {
	CheckedAt time.Time        `json:"checkedAt"`
	Failing   bool             `json:"failing"`
	Items     []DiagnosticItem `json:"items"`
}
