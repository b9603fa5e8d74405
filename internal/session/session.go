// Package session defines the session record and its lifecycle.
package session

import "time"

// Statuses a session moves through. A session starts as StatusNew, is claimed
// by the coordinator as StatusCalling, and ends in exactly one of the two
// terminal statuses.
const (
	StatusNew           = "new"
	StatusCalling       = "calling"
	StatusCallCompleted = "initial_call_completed"
	StatusCallFailed    = "call_failed"
)

// ValidTransitions maps each status to its valid next statuses. Terminal
// statuses have no successors; a session never reverts to "new".
var ValidTransitions = map[string][]string{
	StatusNew:     {StatusCalling},
	StatusCalling: {StatusCallCompleted, StatusCallFailed},
}

// CanTransition reports whether a status change from one status to another is
// allowed by the lifecycle.
func CanTransition(from, to string) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no further coordinator-driven
// transitions.
func IsTerminal(status string) bool {
	return status == StatusCallCompleted || status == StatusCallFailed
}

// Session is the unit of work tracking one uploaded document through
// extraction and the resulting patient call. It is keyed by SessionID in the
// store; the extraction payload in Data is free-form because its shape depends
// on the document and the model.
type Session struct {
	SessionID   string         `json:"session_id"`
	FilePath    string         `json:"file_path"`
	Data        map[string]any `json:"data"`
	Status      string         `json:"status"`
	Reminders   []Reminder     `json:"reminders"`
	CallResults *CallResults   `json:"call_results,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Reminder is a medication reminder collected from the patient during a call.
// Reminders are empty at creation and populated by downstream processing.
type Reminder struct {
	Medication string   `json:"medication"`
	Dosage     string   `json:"dosage,omitempty"`
	Times      []string `json:"times,omitempty"`
	Enabled    bool     `json:"enabled"`
}

// CallResults records the terminal outcome of the initial patient call. It is
// present on a session if and only if the session reached
// StatusCallCompleted.
type CallResults struct {
	CallID              string         `json:"call_id"`
	Transcript          string         `json:"transcript"`
	CollectedVariables  map[string]any `json:"collected_variables,omitempty"`
	CallStatus          string         `json:"call_status"`
	DisconnectionReason string         `json:"disconnection_reason,omitempty"`
}
