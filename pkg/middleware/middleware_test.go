package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	cases := map[string]struct {
		token  string
		header string
		want   int
	}{
		"Success":        {"t0k", "Bearer t0k", http.StatusOK},
		"Wrong Token":    {"t0k", "Bearer nope", http.StatusUnauthorized},
		"Wrong Scheme":   {"t0k", "Basic t0k", http.StatusUnauthorized},
		"Missing":        {"t0k", "", http.StatusUnauthorized},
		"Not Configured": {"", "Bearer ", http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			BearerAuth(tc.token)(okHandler()).ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestStructuredLogger(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		h := NewStructuredLogger(zap.New(core))(okHandler())

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		entries := logs.FilterMessage("request completed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "/health", fields["request"].(map[string]interface{})["path"])
		assert.EqualValues(t, http.StatusOK, fields["response"].(map[string]interface{})["status"])
	})

	t.Run("Server Error", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		h := NewStructuredLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, 1, logs.FilterMessage("server error").Len())
	})
}
