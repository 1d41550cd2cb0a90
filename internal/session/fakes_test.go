package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"arenakiosk/internal/identity"
	"arenakiosk/internal/models"
	"arenakiosk/internal/pricing"
	"arenakiosk/internal/store"
)

type update struct {
	id     string
	fields map[string]interface{}
}

type fakeSessions struct {
	mu      sync.Mutex
	records map[string]models.Session
	updates []update
	created int
	getErr  error
	findErr error
	idSeq   int
}

func newFakeSessions(sessions ...models.Session) *fakeSessions {
	f := &fakeSessions{records: make(map[string]models.Session)}
	for _, s := range sessions {
		f.records[s.ID] = s
	}
	return f
}

func (f *fakeSessions) FindOpen(_ context.Context, deviceID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, s := range f.records {
		if s.DeviceID == deviceID && s.IsOpen() {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessions) Create(_ context.Context, s *models.Session) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idSeq++
	created := *s
	created.ID = fmt.Sprintf("new-%d", f.idSeq)
	f.records[created.ID] = created
	f.created++
	return &created, nil
}

func (f *fakeSessions) Update(_ context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	f.updates = append(f.updates, update{id: id, fields: fields})

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	merged := map[string]interface{}{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err = json.Marshal(merged)
	if err != nil {
		return err
	}
	var next models.Session
	if err := json.Unmarshal(data, &next); err != nil {
		return err
	}
	f.records[id] = next
	return nil
}

// closedWrites counts updates that set status Closed.
func (f *fakeSessions) closedWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.updates {
		if u.fields["status"] == models.SessionStatusClosed {
			n++
		}
	}
	return n
}

func (f *fakeSessions) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeSessions) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type fakeDevices struct {
	mu       sync.Mutex
	devices  map[string]models.Device
	released []string
	inUse    []string
	getErr   error
}

func newFakeDevices(devices ...models.Device) *fakeDevices {
	f := &fakeDevices{devices: make(map[string]models.Device)}
	for _, d := range devices {
		f.devices[d.ID] = d
	}
	return f
}

func (f *fakeDevices) Get(_ context.Context, id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.devices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDevices) Release(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	d := f.devices[id]
	d.Status = models.DeviceStatusAvailable
	d.Token = ""
	d.ClientRecord = ""
	f.devices[id] = d
	return nil
}

func (f *fakeDevices) MarkInUse(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inUse = append(f.inUse, id)
	return nil
}

func (f *fakeDevices) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[id].Status
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []models.SessionLogEntry
}

func (f *fakeLogs) Append(_ context.Context, e models.SessionLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLogs) ofType(kind string) []models.SessionLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SessionLogEntry
	for _, e := range f.entries {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakePricer charges 100 per hour and records each call.
type fakePricer struct {
	mu    sync.Mutex
	calls []pricerCall
}

type pricerCall struct {
	groupID string
	hours   float64
	at      time.Time
}

func (f *fakePricer) Resolve(_ context.Context, groupID string, hours float64, now time.Time) pricing.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pricerCall{groupID: groupID, hours: hours, at: now})
	return pricing.Result{BaseCost: 100 * hours, FinalCost: 100 * hours}
}

func (f *fakePricer) last() pricerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return pricerCall{}
	}
	return f.calls[len(f.calls)-1]
}

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Notify(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recorder) count(text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m == text {
			n++
		}
	}
	return n
}

type fixedSource identity.Source

func (s fixedSource) Source() identity.Source { return identity.Source(s) }

type fakeIdentity struct {
	mu      sync.Mutex
	userID  string
	logouts int
	flags   identity.SessionFlags
}

func (f *fakeIdentity) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeIdentity) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = ""
	f.flags = identity.SessionFlags{}
	f.logouts++
	return nil
}

func (f *fakeIdentity) SetFlags(_ context.Context, flags identity.SessionFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = flags
	return nil
}

func (f *fakeIdentity) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

type fakeLock struct {
	mu       sync.Mutex
	requests []bool
}

func (f *fakeLock) Request(_ string, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, force)
}

func (f *fakeLock) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]store.Handler
}

func (f *fakeSubscriber) Subscribe(topic string, h store.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]store.Handler)
	}
	f.handlers[topic] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, topic)
	}
}

func (f *fakeSubscriber) emit(topic, action string, record interface{}) bool {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	data, _ := json.Marshal(record)
	h(store.Event{Topic: topic, Action: action, Record: data})
	return true
}

func (f *fakeSubscriber) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}

var errBoom = errors.New("boom")
