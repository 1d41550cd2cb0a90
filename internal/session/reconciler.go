// Package session drives the lifecycle of the terminal's usage session: discovery, creation,
// extension, expiry and closure against the record store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"arenakiosk/internal/identity"
	"arenakiosk/internal/models"
	"arenakiosk/internal/pricing"
)

// Phase is the reconciled state of the device's session.
type Phase string

const (
	PhaseNone                   Phase = "none"
	PhaseOpenValid              Phase = "open_valid"
	PhaseOpenExpiredSameDay     Phase = "open_expired_same_day"
	PhaseOpenExpiredCarriedOver Phase = "open_expired_carried_over"
	PhaseClosed                 Phase = "closed"
)

// Expired reports whether the phase is one of the expired open phases.
func (p Phase) Expired() bool {
	return p == PhaseOpenExpiredSameDay || p == PhaseOpenExpiredCarriedOver
}

const (
	// DefaultDuration is the length of a newly created session.
	DefaultDuration = time.Hour
	// ExtensionStep is added to out_time by one extension.
	ExtensionStep = time.Hour
	// EndingSoonThreshold is the remaining time that triggers the ending-soon notice.
	EndingSoonThreshold = 5 * time.Minute
)

// Notification texts.
const (
	MessageEndingSoon = "Your session ends in less than 5 minutes."
	MessageEnded      = "Your session has ended."
)

var (
	// ErrNoSession is returned when an operation needs an open session and there is none.
	ErrNoSession = errors.New("session: no open session")
	// ErrClosed is returned when a closed session would be mutated.
	ErrClosed = errors.New("session: session is closed")
)

// SessionStore is the session collection as used here.
type SessionStore interface {
	FindOpen(ctx context.Context, deviceID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, s *models.Session) (*models.Session, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
}

// DeviceStore is the device collection as used here.
type DeviceStore interface {
	Get(ctx context.Context, id string) (*models.Device, error)
	Release(ctx context.Context, id string) error
	MarkInUse(ctx context.Context, id string) error
}

// LogStore appends session log entries.
type LogStore interface {
	Append(ctx context.Context, entry models.SessionLogEntry) error
}

// Pricer prices a duration on a rate group.
type Pricer interface {
	Resolve(ctx context.Context, groupID string, hours float64, now time.Time) pricing.Result
}

// Notifier shows a transient message to the customer.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, text string) { f(ctx, text) }

// LoginSource reports how the current user logged in.
type LoginSource interface {
	Source() identity.Source
}

// Deps are the collaborators of a Reconciler. Notifier and Login are optional.
type Deps struct {
	Sessions SessionStore
	Devices  DeviceStore
	Logs     LogStore
	Pricing  Pricer
	Notifier Notifier
	Login    LoginSource
	Location *time.Location
	Logger   *zap.Logger
}

// Outcome is the result of one reconciliation.
type Outcome struct {
	Phase     Phase
	Session   *models.Session
	Remaining time.Duration
	// EndingSoon is set on the call that crossed the ending-soon threshold.
	EndingSoon bool
	// Ended is set on the first call that observed the session expired.
	Ended bool
	// Closed is set when this call wrote the Closed status.
	Closed bool
}

type marks struct {
	endingSoon bool
	ended      bool
}

// Reconciler maps a session record and the current time to a Phase and issues the
// corrective writes of that phase.
type Reconciler struct {
	sessions SessionStore
	devices  DeviceStore
	logs     LogStore
	pricing  Pricer
	notifier Notifier
	login    LoginSource
	location *time.Location
	logger   *zap.Logger

	mu      sync.Mutex
	marks   map[string]*marks
	closed  map[string]bool
	// fromApp holds sessions observed while a client-app login was present.
	fromApp map[string]bool
}

// NewReconciler builds a reconciler from deps.
func NewReconciler(d Deps) *Reconciler {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Notifier == nil {
		d.Notifier = NotifierFunc(func(context.Context, string) {})
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Reconciler{
		sessions: d.Sessions,
		devices:  d.Devices,
		logs:     d.Logs,
		pricing:  d.Pricing,
		notifier: d.Notifier,
		login:    d.Login,
		location: d.Location,
		logger:   d.Logger,
		marks:    make(map[string]*marks),
		closed:   make(map[string]bool),
		fromApp:  make(map[string]bool),
	}
}

// Reconcile evaluates s at now. Store failures are logged and leave the record as it was.
func (r *Reconciler) Reconcile(ctx context.Context, s *models.Session, now time.Time) Outcome {
	if s == nil {
		return Outcome{Phase: PhaseNone}
	}
	current := *s
	if current.IsClosed() || r.wasClosed(current.ID) {
		current.Status = models.SessionStatusClosed
		r.forget(current.ID)
		return Outcome{Phase: PhaseClosed, Session: &current}
	}

	out := Outcome{Session: &current, Remaining: current.OutTime.Sub(now)}
	m := r.marksFor(current.ID)
	fromApp := r.noteSource(current.ID)

	if out.Remaining > 0 {
		out.Phase = PhaseOpenValid
		r.promote(ctx, &current)

		if out.Remaining > EndingSoonThreshold {
			m.endingSoon = false
		} else if !m.endingSoon {
			m.endingSoon = true
			out.EndingSoon = true
			r.notifier.Notify(ctx, MessageEndingSoon)
		}
		m.ended = false
		return out
	}

	out.Phase = PhaseOpenExpiredCarriedOver
	if sameDay(current.OutTime, now, r.location) {
		out.Phase = PhaseOpenExpiredSameDay
	}
	if !m.ended {
		m.ended = true
		out.Ended = true
		r.logger.Info("session expired",
			zap.String("session_id", current.ID),
			zap.String("phase", string(out.Phase)),
			zap.Time("out_time", current.OutTime),
		)
		r.notifier.Notify(ctx, MessageEnded)
	}

	if out.Phase == PhaseOpenExpiredCarriedOver {
		if fromApp {
			r.logger.Info("session started from client app, leaving closure to the front desk",
				zap.String("session_id", current.ID),
			)
			return out
		}
		out.Closed = r.close(ctx, &current)
	}
	return out
}

func (r *Reconciler) promote(ctx context.Context, s *models.Session) {
	if s.Status != models.SessionStatusBooked && s.Status != models.SessionStatusOccupied {
		return
	}
	if err := r.sessions.Update(ctx, s.ID, map[string]interface{}{
		"status": models.SessionStatusActive,
	}); err != nil {
		r.logger.Warn("failed to promote session", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	r.logger.Info("session promoted", zap.String("session_id", s.ID), zap.String("from", s.Status))
	s.Status = models.SessionStatusActive
}

// close writes the Closed status after re-reading the record. It reports whether it wrote it.
func (r *Reconciler) close(ctx context.Context, s *models.Session) bool {
	fresh, err := r.sessions.Get(ctx, s.ID)
	if err != nil {
		r.logger.Warn("failed to re-read session before closing", zap.String("session_id", s.ID), zap.Error(err))
		return false
	}
	if fresh.IsClosed() {
		r.markClosed(s.ID)
		s.Status = models.SessionStatusClosed
		return false
	}

	cost := r.price(ctx, fresh.DeviceID, fresh.DurationHours(), fresh.InTime)
	if err := r.sessions.Update(ctx, s.ID, map[string]interface{}{
		"status":          models.SessionStatusClosed,
		"amount_paid":     cost.FinalCost,
		"discount_amount": cost.DiscountAmount,
		"discount_rate":   cost.DiscountRate,
		"session_total":   cost.BaseCost,
		"total_amount":    cost.FinalCost,
	}); err != nil {
		r.logger.Warn("failed to close session", zap.String("session_id", s.ID), zap.Error(err))
		return false
	}
	r.markClosed(s.ID)
	s.Status = models.SessionStatusClosed
	s.SessionTotal = cost.BaseCost
	s.TotalAmount = cost.FinalCost
	s.AmountPaid = cost.FinalCost
	s.DiscountAmount = cost.DiscountAmount
	s.DiscountRate = cost.DiscountRate

	r.appendLog(ctx, s, models.SessionLogClosed, cost.FinalCost)
	if s.DeviceID != "" {
		if err := r.devices.Release(ctx, s.DeviceID); err != nil {
			r.logger.Warn("failed to release device", zap.String("device_id", s.DeviceID), zap.Error(err))
		}
	}
	r.logger.Info("session closed",
		zap.String("session_id", s.ID),
		zap.Float64("total_amount", cost.FinalCost),
	)
	return true
}

// Create opens a DefaultDuration session for userID on deviceID. When the device cannot be
// loaded the session is created without device link and with zero cost.
func (r *Reconciler) Create(ctx context.Context, deviceID, userID string, now time.Time) (*models.Session, error) {
	s := &models.Session{
		UserID:   userID,
		InTime:   now.UTC(),
		OutTime:  now.Add(DefaultDuration).UTC(),
		Duration: int(DefaultDuration / time.Minute),
		Status:   models.SessionStatusActive,
	}

	device, err := r.devices.Get(ctx, deviceID)
	if err != nil {
		r.logger.Warn("device lookup failed, creating session without device", zap.String("device_id", deviceID), zap.Error(err))
	} else {
		s.DeviceID = device.ID
		if s.DeviceID == "" {
			s.DeviceID = deviceID
		}
		var cost pricing.Result
		if device.GroupID != "" {
			cost = r.pricing.Resolve(ctx, device.GroupID, DefaultDuration.Hours(), now)
		}
		s.SessionTotal = cost.BaseCost
		s.TotalAmount = cost.FinalCost
		s.DiscountAmount = cost.DiscountAmount
		s.DiscountRate = cost.DiscountRate
	}

	created, err := r.sessions.Create(ctx, s)
	if err != nil {
		return nil, err
	}
	r.appendLog(ctx, created, models.SessionLogCreate, created.TotalAmount)
	if created.DeviceID != "" {
		if err := r.devices.MarkInUse(ctx, created.DeviceID); err != nil {
			r.logger.Warn("failed to mark device in use", zap.String("device_id", created.DeviceID), zap.Error(err))
		}
	}
	r.logger.Info("session created",
		zap.String("session_id", created.ID),
		zap.String("device_id", created.DeviceID),
		zap.String("user_id", userID),
	)
	return created, nil
}

// Extend adds ExtensionStep to out_time and reprices the whole span from in_time.
func (r *Reconciler) Extend(ctx context.Context, s *models.Session, now time.Time) (*models.Session, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if s.IsClosed() || r.wasClosed(s.ID) {
		return nil, ErrClosed
	}

	updated := *s
	updated.OutTime = s.OutTime.Add(ExtensionStep)
	updated.Duration = updated.SpanMinutes()
	updated.Status = models.SessionStatusExtended
	cost := r.price(ctx, s.DeviceID, float64(updated.Duration)/60, now)
	updated.SessionTotal = cost.BaseCost
	updated.TotalAmount = cost.FinalCost
	updated.DiscountAmount = cost.DiscountAmount
	updated.DiscountRate = cost.DiscountRate

	if err := r.sessions.Update(ctx, s.ID, map[string]interface{}{
		"out_time":        updated.OutTime,
		"duration":        updated.Duration,
		"status":          updated.Status,
		"session_total":   updated.SessionTotal,
		"total_amount":    updated.TotalAmount,
		"discount_amount": updated.DiscountAmount,
		"discount_rate":   updated.DiscountRate,
	}); err != nil {
		return nil, err
	}
	r.appendLog(ctx, &updated, models.SessionLogExtended, 0)

	r.mu.Lock()
	delete(r.marks, s.ID)
	r.mu.Unlock()

	r.logger.Info("session extended",
		zap.String("session_id", s.ID),
		zap.Time("out_time", updated.OutTime),
		zap.Float64("total_amount", updated.TotalAmount),
	)
	return &updated, nil
}

func (r *Reconciler) price(ctx context.Context, deviceID string, hours float64, at time.Time) pricing.Result {
	if deviceID == "" {
		return pricing.Result{}
	}
	device, err := r.devices.Get(ctx, deviceID)
	if err != nil {
		r.logger.Warn("device lookup failed, cost is zero", zap.String("device_id", deviceID), zap.Error(err))
		return pricing.Result{}
	}
	if device.GroupID == "" {
		return pricing.Result{}
	}
	return r.pricing.Resolve(ctx, device.GroupID, hours, at)
}

func (r *Reconciler) appendLog(ctx context.Context, s *models.Session, kind string, amount float64) {
	if err := r.logs.Append(ctx, models.SessionLogEntry{
		SessionID: s.ID,
		DeviceID:  s.DeviceID,
		Type:      kind,
		Amount:    amount,
	}); err != nil {
		r.logger.Warn("failed to append session log", zap.String("session_id", s.ID), zap.String("type", kind), zap.Error(err))
	}
}

func (r *Reconciler) marksFor(id string) *marks {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.marks[id]
	if !ok {
		m = &marks{}
		r.marks[id] = m
	}
	return m
}

func (r *Reconciler) markClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[id] = true
	delete(r.marks, id)
	delete(r.fromApp, id)
}

// noteSource remembers a client-app login for session id and reports whether one was ever
// seen for it. The mark outlives the local logout so the session stays with the front desk.
func (r *Reconciler) noteSource(id string) bool {
	appLogin := r.login != nil && r.login.Source() == identity.SourceClientApp
	r.mu.Lock()
	defer r.mu.Unlock()
	if appLogin {
		r.fromApp[id] = true
	}
	return r.fromApp[id]
}

func (r *Reconciler) wasClosed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[id]
}

func (r *Reconciler) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.marks, id)
	delete(r.fromApp, id)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
