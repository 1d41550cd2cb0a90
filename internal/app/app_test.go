package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arenakiosk/internal/config"
)

type storeStub struct {
	mu    sync.Mutex
	paths []string
}

func (s *storeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/records") {
		_, _ = w.Write([]byte(`{"page":1,"items":[]}`))
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"message":"not found"}`))
}

func (s *storeStub) seen(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.paths {
		if p == call {
			return true
		}
	}
	return false
}

func testConfig(storeURL string) *config.Config {
	cfg := config.Default()
	cfg.Device.ID = "dev-1"
	cfg.Store.URL = storeURL
	cfg.Store.Realtime = false
	cfg.State.Backend = config.StateMemory
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Session.TickInterval = 20 * time.Millisecond
	cfg.Session.PollInterval = 50 * time.Millisecond
	cfg.Device.PollInterval = 50 * time.Millisecond
	return cfg
}

func TestRunDiscoversAndStopsOnCancel(t *testing.T) {
	stub := &storeStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	application, err := New(context.Background(), testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		return stub.seen("GET /api/collections/sessions/records") &&
			stub.seen("GET /api/collections/devices/records/dev-1")
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, application.controller.Locked())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestNewRequiresDeviceID(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Device.ID = ""

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
