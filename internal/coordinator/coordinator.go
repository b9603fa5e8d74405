// Package coordinator drives sessions through their call lifecycle. A
// periodic tick scans the store for new sessions, claims each one, places the
// patient call, blocks for its completion, and records the terminal outcome.
package coordinator

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"carevoice-backend/internal/call"
	"carevoice-backend/internal/notify"
	"carevoice-backend/internal/session"
)

const (
	defaultTickInterval = 5 * time.Second
	defaultCallTimeout  = time.Hour
)

// SessionStore is the slice of the session store the coordinator needs.
type SessionStore interface {
	GetByStatus(status string) (map[string]session.Session, error)
	Update(id string, patch map[string]any) (*session.Session, error)
}

// Coordinator owns the session state machine. All status transitions after
// creation are written here, and only here.
type Coordinator struct {
	store        SessionStore
	provider     call.Provider
	notifier     notify.Notifier
	tickInterval time.Duration
	callTimeout  time.Duration
	out          io.Writer
}

// Opts holds parameters for creating a Coordinator.
type Opts struct {
	Store        SessionStore
	Provider     call.Provider
	Notifier     notify.Notifier // default: notify.Nop
	TickInterval time.Duration   // default: 5s
	CallTimeout  time.Duration   // default: 1h
	Out          io.Writer       // progress output; default: io.Discard
}

// New creates a Coordinator with its collaborators injected.
func New(opts Opts) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("coordinator: store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("coordinator: call provider is required")
	}
	c := &Coordinator{
		store:        opts.Store,
		provider:     opts.Provider,
		notifier:     opts.Notifier,
		tickInterval: opts.TickInterval,
		callTimeout:  opts.CallTimeout,
		out:          opts.Out,
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.tickInterval <= 0 {
		c.tickInterval = defaultTickInterval
	}
	if c.callTimeout <= 0 {
		c.callTimeout = defaultCallTimeout
	}
	if c.out == nil {
		c.out = io.Discard
	}
	return c, nil
}

// Run schedules Tick on a fixed interval and blocks until ctx is cancelled,
// then waits for an in-flight tick to finish. Overlapping ticks are skipped:
// a tick that is still waiting on a call keeps its claim, the next interval
// fires once it returns.
func (c *Coordinator) Run(ctx context.Context) error {
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := sched.AddFunc(fmt.Sprintf("@every %s", c.tickInterval), func() {
		if err := c.Tick(ctx); err != nil {
			log.Printf("coordinator: tick: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("coordinator: schedule tick: %w", err)
	}

	fmt.Fprintf(c.out, "Coordinator started (tick every %s)\n", c.tickInterval)
	sched.Start()

	<-ctx.Done()
	<-sched.Stop().Done()
	fmt.Fprintf(c.out, "Coordinator stopped.\n")
	return nil
}

// Tick runs one scan-and-process cycle. The set of sessions to process is
// snapshotted up front, so sessions created mid-tick wait for the next tick
// and a tick never observes its own writes as new work. Sessions are
// processed sequentially; one session's failure never aborts the others.
func (c *Coordinator) Tick(ctx context.Context) error {
	snapshot, err := c.store.GetByStatus(session.StatusNew)
	if err != nil {
		return fmt.Errorf("coordinator: scan new sessions: %w", err)
	}

	for id, sess := range snapshot {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.processSession(ctx, id, sess)
	}
	return nil
}

// processSession drives one session from "new" to a terminal status.
func (c *Coordinator) processSession(ctx context.Context, id string, sess session.Session) {
	fmt.Fprintf(c.out, "New session %s, starting initial call\n", id)

	// Claim the session before placing the call so a later scan cannot
	// double-call it. If the process dies between the call placement and the
	// terminal write, the session stays in "calling" and is never retried.
	if _, err := c.store.Update(id, map[string]any{"status": session.StatusCalling}); err != nil {
		log.Printf("coordinator: claim session %s: %v", id, err)
		return
	}

	callID, err := c.provider.Initiate(ctx, sess.Data)
	if err != nil {
		c.markFailed(id, sess, fmt.Sprintf("initiate call: %v", err))
		return
	}
	fmt.Fprintf(c.out, "Call %s placed for session %s, waiting for completion\n", callID, id)

	rec, err := c.provider.AwaitCompletion(ctx, callID, c.callTimeout)
	if err != nil {
		c.markFailed(id, sess, fmt.Sprintf("await call %s: %v", callID, err))
		return
	}
	if rec == nil {
		c.markFailed(id, sess, fmt.Sprintf("call %s reached no terminal status within %s", callID, c.callTimeout))
		return
	}

	results := session.CallResults{
		CallID:              rec.CallID,
		Transcript:          rec.Transcript,
		CollectedVariables:  rec.CollectedVariables,
		CallStatus:          rec.CallStatus,
		DisconnectionReason: rec.DisconnectionReason,
	}
	updated, err := c.store.Update(id, map[string]any{
		"status":       session.StatusCallCompleted,
		"call_results": results,
	})
	if err != nil {
		log.Printf("coordinator: record call results for %s: %v", id, err)
		return
	}
	fmt.Fprintf(c.out, "Initial call completed for session %s (status %s)\n", id, rec.CallStatus)
	c.notifier.CallCompleted(*updated)
}

// markFailed records a terminal failure for the session. The failure itself
// was already absorbed; only the status write can still error, and that is
// logged, not propagated, so the tick moves on to the next session.
func (c *Coordinator) markFailed(id string, sess session.Session, reason string) {
	log.Printf("coordinator: session %s failed: %s", id, reason)
	if _, err := c.store.Update(id, map[string]any{"status": session.StatusCallFailed}); err != nil {
		log.Printf("coordinator: mark session %s failed: %v", id, err)
	}
	sess.Status = session.StatusCallFailed
	c.notifier.CallFailed(sess, reason)
}
