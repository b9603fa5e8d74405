// Package call places outbound patient voice calls through a Retell-style
// calling API and reports their terminal outcome.
package call

import (
	"context"
	"time"
)

// Terminal call statuses reported by the provider.
const (
	StatusEnded        = "ended"
	StatusError        = "error"
	StatusNotConnected = "not_connected"
)

// Record is the terminal outcome of a call.
type Record struct {
	CallID              string         `json:"call_id"`
	CallStatus          string         `json:"call_status"`
	Transcript          string         `json:"transcript"`
	CollectedVariables  map[string]any `json:"collected_dynamic_variables,omitempty"`
	DisconnectionReason string         `json:"disconnection_reason,omitempty"`
}

// IsTerminal reports whether a provider call status is terminal.
func IsTerminal(status string) bool {
	switch status {
	case StatusEnded, StatusError, StatusNotConnected:
		return true
	}
	return false
}

// Provider initiates patient calls and waits for their completion.
type Provider interface {
	// Initiate places a call carrying the patient's extracted data and
	// returns the provider's call handle.
	Initiate(ctx context.Context, patientData map[string]any) (string, error)
	// AwaitCompletion polls the provider until the call reaches a terminal
	// status. Returns (nil, nil) if the timeout budget is exhausted first.
	AwaitCompletion(ctx context.Context, callID string, timeout time.Duration) (*Record, error)
}
