package domain

import (
	"time"

	"github.com/samber/lo"
)

// DiagnosticStatus is the outcome of one environment check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	// DiagnosticStatusWarn marks a check that does not block harvesting.
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one check result. Hint tells the user how to fix it.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport is served by /healthz and the desktop settings view.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Problems returns the items that did not pass, in report order.
func (r DiagnosticReport) Problems() []DiagnosticItem {
	return lo.Filter(r.Items, func(item DiagnosticItem, _ int) bool {
		return item.Status != DiagnosticStatusPass
	})
}

// Item looks up a check by its id.
func (r DiagnosticReport) Item(id string) (DiagnosticItem, bool) {
	return lo.Find(r.Items, func(item DiagnosticItem) bool {
		return item.ID == id
	})
}
