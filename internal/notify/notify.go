// Package notify delivers best-effort call-outcome notifications to the care
// team. Delivery failures are logged, never propagated: a broken notification
// channel must not affect session processing.
package notify

import (
	"fmt"

	"carevoice-backend/internal/session"
)

// Notifier receives session call outcomes.
type Notifier interface {
	CallCompleted(sess session.Session)
	CallFailed(sess session.Session, reason string)
}

// Nop is a Notifier that does nothing.
type Nop struct{}

func (Nop) CallCompleted(session.Session)      {}
func (Nop) CallFailed(session.Session, string) {}

// Multi fans an outcome out to several notifiers.
type Multi []Notifier

func (m Multi) CallCompleted(sess session.Session) {
	for _, n := range m {
		n.CallCompleted(sess)
	}
}

func (m Multi) CallFailed(sess session.Session, reason string) {
	for _, n := range m {
		n.CallFailed(sess, reason)
	}
}

// completedText formats the message posted when a call reaches a terminal
// outcome.
func completedText(sess session.Session) string {
	status := ""
	disconnect := ""
	if sess.CallResults != nil {
		status = sess.CallResults.CallStatus
		disconnect = sess.CallResults.DisconnectionReason
	}
	msg := fmt.Sprintf("Initial call completed for session %s (call status: %s)", sess.SessionID, status)
	if disconnect != "" {
		msg += fmt.Sprintf(", disconnection: %s", disconnect)
	}
	return msg
}

// failedText formats the message posted when a call fails or times out.
func failedText(sess session.Session, reason string) string {
	return fmt.Sprintf("Initial call FAILED for session %s: %s", sess.SessionID, reason)
}
