package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"arenakiosk/internal/identity"
	"arenakiosk/internal/models"
	"arenakiosk/internal/repository"
	"arenakiosk/internal/store"
)

// StateFunc observes changes of session activity. session is nil when there is none.
type StateFunc func(active bool, session *models.Session)

// Identity is the part of the login context the orchestrator drives.
type Identity interface {
	UserID() string
	Logout(ctx context.Context) error
	SetFlags(ctx context.Context, flags identity.SessionFlags) error
}

// LockRequester accepts kiosk lock requests.
type LockRequester interface {
	Request(reason string, force bool)
}

// Config tunes the orchestrator timers.
type Config struct {
	DeviceID     string
	TickInterval time.Duration
	PollInterval time.Duration
	LogoutGrace  time.Duration
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.LogoutGrace < 0 {
		c.LogoutGrace = 0
	}
}

// Snapshot is the last reconciled state, safe to read from any goroutine.
type Snapshot struct {
	Active    bool            `json:"active"`
	Phase     Phase           `json:"phase"`
	Session   *models.Session `json:"session,omitempty"`
	Remaining time.Duration   `json:"remaining"`
}

type extendReply struct {
	session *models.Session
	err     error
}

// Orchestrator owns the device's session. Ticker, poll, realtime pushes, adoption and
// commands are all serialized on the Run goroutine and reconciled by one Reconciler.
type Orchestrator struct {
	cfg        Config
	reconciler *Reconciler
	sessions   SessionStore
	subscriber store.Subscriber
	ident      Identity
	lock       LockRequester
	onState    StateFunc
	logger     *zap.Logger
	now        func() time.Time

	adopt   chan *models.Session
	events  chan store.Event
	refresh chan struct{}
	extend  chan chan extendReply

	// loop state
	current   *models.Session
	active    bool
	activeID  string
	grace     *time.Timer
	graceC    <-chan time.Time
	reported  bool

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewOrchestrator builds an orchestrator. subscriber, lock and onState may be nil.
func NewOrchestrator(
	cfg Config,
	reconciler *Reconciler,
	sessions SessionStore,
	subscriber store.Subscriber,
	ident Identity,
	lock LockRequester,
	onState StateFunc,
	logger *zap.Logger,
) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		cfg:        cfg,
		reconciler: reconciler,
		sessions:   sessions,
		subscriber: subscriber,
		ident:      ident,
		lock:       lock,
		onState:    onState,
		logger:     logger,
		now:        time.Now,
		adopt:      make(chan *models.Session, 1),
		events:     make(chan store.Event, 32),
		refresh:    make(chan struct{}, 1),
		extend:     make(chan chan extendReply),
		snapshot:   Snapshot{Phase: PhaseNone},
	}
}

// Adopt hands over a session resolved elsewhere; it is used without re-querying the store.
func (o *Orchestrator) Adopt(ctx context.Context, s *models.Session) error {
	select {
	case o.adopt <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh asks the loop to rediscover the open session, e.g. after a login.
func (o *Orchestrator) Refresh() {
	select {
	case o.refresh <- struct{}{}:
	default:
	}
}

// Extend extends the current session by one step.
func (o *Orchestrator) Extend(ctx context.Context) (*models.Session, error) {
	reply := make(chan extendReply, 1)
	select {
	case o.extend <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the last reconciled state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Run drives the session until ctx is cancelled. Subscriptions and timers are released on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.subscriber != nil {
		unsubscribe := o.subscriber.Subscribe(repository.CollectionSessions, o.push)
		defer unsubscribe()
	}
	tick := time.NewTicker(o.cfg.TickInterval)
	defer tick.Stop()
	poll := time.NewTicker(o.cfg.PollInterval)
	defer poll.Stop()
	defer o.stopGrace()

	select {
	case s := <-o.adopt:
		o.apply(ctx, s)
	default:
		o.discover(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-o.adopt:
			o.apply(ctx, s)
		case ev := <-o.events:
			o.handleEvent(ctx, ev)
		case <-tick.C:
			if o.current != nil {
				o.apply(ctx, o.current)
			}
		case <-poll.C:
			o.discover(ctx)
		case <-o.refresh:
			// Report again: a lock forced since the last change must be lifted for an open session.
			o.reported = false
			o.discover(ctx)
		case reply := <-o.extend:
			reply <- o.doExtend(ctx)
		case <-o.graceC:
			o.logout(ctx)
		}
	}
}

// push runs on the realtime read goroutine and only forwards.
func (o *Orchestrator) push(ev store.Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("session event queue full, dropping event", zap.String("topic", ev.Topic))
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev store.Event) {
	var s models.Session
	if err := json.Unmarshal(ev.Record, &s); err != nil {
		o.logger.Warn("undecodable session event", zap.String("topic", ev.Topic), zap.Error(err))
		return
	}
	if s.DeviceID != o.cfg.DeviceID {
		return
	}
	if ev.Action == "delete" {
		if o.current != nil && o.current.ID == s.ID {
			o.current = nil
			o.publish(Outcome{Phase: PhaseNone})
		}
		return
	}
	if o.current == nil && !s.IsOpen() {
		return
	}
	if o.current != nil && o.current.ID != s.ID && !s.IsOpen() {
		return
	}
	o.apply(ctx, &s)
}

func (o *Orchestrator) discover(ctx context.Context) {
	s, err := o.sessions.FindOpen(ctx, o.cfg.DeviceID)
	if err != nil {
		o.logger.Warn("open session lookup failed", zap.String("device_id", o.cfg.DeviceID), zap.Error(err))
		return
	}
	if s != nil {
		o.apply(ctx, s)
		return
	}
	if o.current != nil {
		fresh, err := o.sessions.Get(ctx, o.current.ID)
		if err != nil {
			o.logger.Warn("session re-read failed", zap.String("session_id", o.current.ID), zap.Error(err))
			return
		}
		o.apply(ctx, fresh)
		return
	}

	userID := o.ident.UserID()
	if userID == "" || o.graceC != nil {
		if o.reported {
			return
		}
		o.publish(Outcome{Phase: PhaseNone})
		return
	}
	created, err := o.reconciler.Create(ctx, o.cfg.DeviceID, userID, o.now())
	if err != nil {
		o.logger.Warn("failed to create session", zap.String("device_id", o.cfg.DeviceID), zap.Error(err))
		return
	}
	o.apply(ctx, created)
}

func (o *Orchestrator) apply(ctx context.Context, s *models.Session) {
	out := o.reconciler.Reconcile(ctx, s, o.now())

	wasActiveHere := s != nil && o.activeID == s.ID && o.active
	switch {
	case out.Phase == PhaseNone:
		o.current = nil
	case out.Phase == PhaseClosed || out.Closed:
		o.current = nil
		if wasActiveHere {
			o.scheduleLogout()
		}
	default:
		o.current = out.Session
	}

	if out.Phase == PhaseOpenValid {
		o.stopGrace()
		if err := o.ident.SetFlags(ctx, identity.SessionFlags{SessionID: out.Session.ID, Active: true}); err != nil {
			o.logger.Warn("failed to persist session flags", zap.Error(err))
		}
	}
	if out.Ended {
		o.scheduleLogout()
	}
	o.publish(out)
}

func (o *Orchestrator) doExtend(ctx context.Context) extendReply {
	if o.current == nil {
		return extendReply{err: ErrNoSession}
	}
	updated, err := o.reconciler.Extend(ctx, o.current, o.now())
	if err != nil {
		return extendReply{err: err}
	}
	o.apply(ctx, updated)
	return extendReply{session: updated}
}

func (o *Orchestrator) scheduleLogout() {
	if o.graceC != nil {
		return
	}
	o.grace = time.NewTimer(o.cfg.LogoutGrace)
	o.graceC = o.grace.C
}

func (o *Orchestrator) stopGrace() {
	if o.grace != nil {
		o.grace.Stop()
	}
	o.grace = nil
	o.graceC = nil
}

func (o *Orchestrator) logout(ctx context.Context) {
	o.stopGrace()
	if err := o.ident.Logout(ctx); err != nil {
		o.logger.Warn("local logout failed", zap.Error(err))
	}
	if o.lock != nil {
		o.lock.Request("session ended", true)
	}
	o.current = nil
	o.publish(Outcome{Phase: PhaseNone})
}

// publish records the outcome and reports activity changes upward.
func (o *Orchestrator) publish(out Outcome) {
	active := out.Phase == PhaseOpenValid
	var id string
	if out.Session != nil {
		id = out.Session.ID
	}

	o.mu.Lock()
	o.snapshot = Snapshot{Active: active, Phase: out.Phase, Session: out.Session, Remaining: out.Remaining}
	o.mu.Unlock()

	if o.reported && active == o.active && id == o.activeID {
		return
	}
	if !active && !o.active && o.reported {
		o.activeID = id
		return
	}
	o.reported = true
	o.active = active
	o.activeID = id
	if o.onState != nil {
		o.onState(active, out.Session)
	}
}
