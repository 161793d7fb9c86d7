package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// ErrSessionClosed is returned by Handle after Close.
var ErrSessionClosed = errors.New("session closed")

// Reconciler sends a control action to the server of record and returns its
// view of the job clock.
type Reconciler interface {
	Send(ctx context.Context, jobID uuid.UUID, action models.Action, req models.ActionRequest) (*models.ServerState, error)
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the wall clock used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTickInterval overrides the display refresh period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickInterval = d }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is the client side of one job view: it owns the elapsed clock,
// the lifecycle state and the display ticker, applies transitions
// optimistically, and merges server responses as they arrive.
//
// All mutation happens under mu. Renderer methods are called with mu held
// and must not call back into the session.
type Session struct {
	jobID      uuid.UUID
	target     int64
	reconciler Reconciler
	renderer   Renderer
	now        func() time.Time
	logger     *slog.Logger

	tickInterval time.Duration
	display      *DisplayLoop

	mu     sync.Mutex
	clock  *ElapsedClock
	state  State
	status string
	seq    uint64
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewSession builds a session from a persisted seed. A seed whose status
// maps to Running resumes the clock from the seed's start time (or now when
// none was recorded) and starts ticking immediately.
func NewSession(jobID uuid.UUID, seed Seed, reconciler Reconciler, renderer Renderer, opts ...Option) *Session {
	s := &Session{
		jobID:        jobID,
		target:       seed.TargetSeconds,
		reconciler:   reconciler,
		renderer:     renderer,
		now:          time.Now,
		logger:       slog.Default(),
		tickInterval: DefaultTickInterval,
		clock:        NewElapsedClock(seed.InitialElapsed),
		status:       seed.Status,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.display = NewDisplayLoop(s.tickInterval, s.tick)

	state, ok := StateFromStatus(seed.Status)
	if !ok {
		s.logger.Debug("unrecognised job status, starting idle", "job_id", jobID, "status", seed.Status)
	}
	s.state = state

	if state == StateRunning {
		start := s.now()
		if seed.JobStartTime != nil {
			start = *seed.JobStartTime
		}
		s.clock.StartRunning(start)
		s.display.Start()
	}
	return s
}

// Handle applies a user action. On success the new state is rendered and a
// reconciliation request is sent in the background; Handle never waits for
// the network. Rejected actions return an error wrapping
// ErrInvalidTransition or ErrMissingReason and change nothing.
func (s *Session) Handle(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	at := ev.At
	if at.IsZero() {
		at = s.now()
	}

	next, effects, err := Handle(s.state, ev)
	if err != nil {
		s.logger.Debug("action rejected", "job_id", s.jobID, "action", ev.Kind, "state", s.state, "error", err)
		return err
	}

	s.logger.Info("job timer transition", "job_id", s.jobID, "action", ev.Kind, "from", s.state, "to", next)
	s.state = next

	reconcile := false
	for _, effect := range effects {
		switch effect {
		case EffectClockStart:
			s.clock.StartRunning(at)
		case EffectClockStop:
			s.clock.StopRunning(at)
		case EffectTickStart:
			s.display.Start()
		case EffectTickStop:
			s.display.Stop()
		case EffectReconcile:
			reconcile = true
		}
	}

	s.renderLocked(at)

	if reconcile {
		s.sendLocked(ev.Kind, models.ActionRequest{
			Elapsed: s.clock.CurrentTotal(at),
			Reason:  ev.Reason,
		})
	}
	return nil
}

// Snapshot returns the current frame without rendering it.
func (s *Session) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked(s.now())
}

// Refresh renders the current frame immediately.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.renderLocked(s.now())
}

// Ticking reports whether the display ticker is active.
func (s *Session) Ticking() bool {
	return s.display.Active()
}

// Wait blocks until every reconciliation request sent so far has completed.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close stops the ticker, aborts in-flight requests and waits for all
// session goroutines to exit. Responses arriving after Close are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.display.Stop()
	s.cancel()
	s.mu.Unlock()

	s.display.Wait()
	s.inflight.Wait()
}

func (s *Session) sendLocked(action models.Action, req models.ActionRequest) {
	s.seq++
	seq := s.seq

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		state, err := s.reconciler.Send(s.ctx, s.jobID, action, req)
		s.complete(seq, action, state, err)
	}()
}

// complete merges a reconciliation response. Only the response to the most
// recently issued request is applied; older ones are stale by definition.
func (s *Session) complete(seq uint64, action models.Action, state *models.ServerState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if err != nil {
		s.logger.Warn("reconciliation failed", "job_id", s.jobID, "action", action, "seq", seq, "error", err)
		s.renderer.Notice(err)
		return
	}

	if seq != s.seq {
		s.logger.Debug("discarding stale server state", "job_id", s.jobID, "action", action, "seq", seq, "latest", s.seq)
		return
	}
	if state == nil {
		return
	}

	now := s.now()
	before := s.clock.CurrentTotal(now)
	s.mergeLocked(*state, now)
	after := s.clock.CurrentTotal(now)
	if drift := before - after; drift != 0 {
		s.logger.Info("clock corrected by server", "job_id", s.jobID, "action", action, "drift_seconds", drift)
	}
	s.renderLocked(now)
}

func (s *Session) mergeLocked(st models.ServerState, now time.Time) {
	if st.Status != nil {
		s.status = *st.Status
		mapped, ok := StateFromStatus(*st.Status)
		if ok && mapped != StateIdle && s.state != StateStopped && mapped != s.state {
			s.logger.Info("adopting server state", "job_id", s.jobID, "from", s.state, "to", mapped)
			s.state = mapped
		}
	}

	if st.TotalElapsed != nil {
		s.clock.SetAccumulated(*st.TotalElapsed)
	}

	if st.StartTime.Set {
		switch {
		case st.StartTime.Time == nil && st.TotalElapsed == nil:
			// No server total to replace the open interval, so keep it.
			s.clock.StopRunning(now)
		case st.StartTime.Time == nil:
			s.clock.SetRunningSince(nil)
		case s.state == StateRunning:
			s.clock.SetRunningSince(st.StartTime.Time)
		}
	}

	// runningSince is set iff the state is Running.
	if s.state == StateRunning {
		s.clock.StartRunning(now)
		s.display.Start()
	} else {
		s.clock.StopRunning(now)
		s.display.Stop()
	}
}

func (s *Session) tick(time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateRunning {
		return
	}
	s.renderLocked(s.now())
}

func (s *Session) renderLocked(now time.Time) {
	s.renderer.Render(s.frameLocked(now))
}

func (s *Session) frameLocked(now time.Time) Frame {
	total := s.clock.CurrentTotal(now)
	percent, overrun := Progress(total, s.target)
	return Frame{
		Elapsed:   total,
		Formatted: Format(total),
		Percent:   percent,
		Overrun:   overrun,
		State:     s.state,
		Status:    s.status,
		Controls:  ControlsFor(s.state),
		At:        now,
	}
}
