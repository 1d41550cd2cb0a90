package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestAPIKey(t *testing.T) {
	h := APIKey("s3cret")(http.HandlerFunc(ok))

	cases := []struct {
		path   string
		header string
		want   int
	}{
		{"/status", "", http.StatusUnauthorized},
		{"/status", "Bearer nope", http.StatusUnauthorized},
		{"/status", "Basic s3cret", http.StatusUnauthorized},
		{"/status", "Bearer s3cret", http.StatusNoContent},
		{"/health", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %q", tc.path, tc.header)
	}

	rec := httptest.NewRecorder()
	APIKey("")(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryAndLogging(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Recovery(zap.NewNop())(Logging(zap.NewNop())(panicky))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
