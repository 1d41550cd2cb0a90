package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	realtimePath     = "/api/realtime"
	pongWait         = 60 * time.Second
	pingInterval     = 30 * time.Second
	writeTimeout     = 10 * time.Second
	minBackoff       = time.Second
	maxBackoff       = 30 * time.Second
	sendBufferFrames = 16
)

// Event is one realtime change notification.
type Event struct {
	Topic  string          `json:"topic"`
	Action string          `json:"action"`
	Record json.RawMessage `json:"record"`
}

// Handler receives events on the realtime read goroutine and must not block.
type Handler func(Event)

// Subscriber is the realtime half of the store.
type Subscriber interface {
	Subscribe(topic string, handler Handler) (unsubscribe func())
}

type frame struct {
	Action   string `json:"action"`
	Topic    string `json:"topic"`
	ClientID string `json:"clientId,omitempty"`
}

// Realtime keeps one websocket to the store and multiplexes topic subscriptions over it.
// It reconnects with exponential backoff and re-subscribes every live topic after reconnect.
type Realtime struct {
	url      string
	token    TokenSource
	dialer   *websocket.Dialer
	logger   *zap.Logger
	clientID string

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	send   chan []byte
}

// NewRealtime builds a subscriber for the store rooted at baseURL (http or https).
func NewRealtime(baseURL string, token TokenSource, logger *zap.Logger) *Realtime {
	return &Realtime{
		url:      realtimeURL(baseURL),
		token:    token,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		clientID: uuid.NewString(),
		subs:     make(map[string]map[int]Handler),
	}
}

func realtimeURL(baseURL string) string {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return baseURL + realtimePath
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + realtimePath
	return u.String()
}

// Subscribe registers handler for topic ("sessions" or "devices/<id>"). Collection-level
// subscribers also receive record-level topics of the same collection.
func (r *Realtime) Subscribe(topic string, handler Handler) func() {
	r.mu.Lock()
	handlers, ok := r.subs[topic]
	if !ok {
		handlers = make(map[int]Handler)
		r.subs[topic] = handlers
	}
	r.nextID++
	id := r.nextID
	handlers[id] = handler
	first := !ok
	r.mu.Unlock()

	if first {
		r.enqueue(frame{Action: "subscribe", Topic: topic, ClientID: r.clientID})
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(topic, id) })
	}
}

func (r *Realtime) unsubscribe(topic string, id int) {
	r.mu.Lock()
	handlers := r.subs[topic]
	delete(handlers, id)
	last := len(handlers) == 0
	if last {
		delete(r.subs, topic)
	}
	r.mu.Unlock()

	if last {
		r.enqueue(frame{Action: "unsubscribe", Topic: topic, ClientID: r.clientID})
	}
}

func (r *Realtime) enqueue(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	r.mu.Lock()
	send := r.send
	r.mu.Unlock()
	if send == nil {
		// not connected; topics are replayed on connect
		return
	}
	select {
	case send <- data:
	default:
		r.logger.Warn("dropping realtime frame, buffer full", zap.String("topic", f.Topic))
	}
}

// Run keeps the connection alive until ctx is cancelled.
func (r *Realtime) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		started := time.Now()
		err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		r.logger.Warn("realtime connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *Realtime) session(ctx context.Context) error {
	header := http.Header{}
	if r.token != nil {
		if token := r.token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, _, err := r.dialer.DialContext(ctx, r.url, header)
	if err != nil {
		return err
	}
	r.logger.Info("realtime connected", zap.String("url", r.url), zap.String("client_id", r.clientID))

	send := make(chan []byte, sendBufferFrames)
	r.mu.Lock()
	r.send = send
	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, topic)
	}
	r.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		r.mu.Lock()
		r.send = nil
		r.mu.Unlock()
		_ = conn.Close()
	}()

	go r.writePump(connCtx, conn, send)

	for _, topic := range topics {
		data, _ := json.Marshal(frame{Action: "subscribe", Topic: topic, ClientID: r.clientID})
		select {
		case send <- data:
		case <-connCtx.Done():
			return connCtx.Err()
		}
	}

	return r.readPump(connCtx, conn)
}

func (r *Realtime) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			r.logger.Warn("failed to decode realtime event", zap.Error(err))
			continue
		}
		if event.Topic == "" || len(event.Record) == 0 {
			continue
		}
		r.dispatch(event)
	}
}

func (r *Realtime) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (r *Realtime) dispatch(event Event) {
	collection := event.Topic
	if i := strings.IndexByte(collection, '/'); i >= 0 {
		collection = collection[:i]
	}

	r.mu.Lock()
	var targets []Handler
	for _, h := range r.subs[event.Topic] {
		targets = append(targets, h)
	}
	if collection != event.Topic {
		for _, h := range r.subs[collection] {
			targets = append(targets, h)
		}
	}
	r.mu.Unlock()

	for _, h := range targets {
		h(event)
	}
}
