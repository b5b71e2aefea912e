package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type stubVerifier struct {
	valid map[string]policy.Actor
}

func (s stubVerifier) Verify(token string) (policy.Actor, error) {
	if a, ok := s.valid[token]; ok {
		return a, nil
	}
	return policy.Anonymous(), errors.New("bad token")
}

func echoActor(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetActor(r.Context()).String()))
}

func TestAuthAndOptionalAuth(t *testing.T) {
	id := uuid.New()
	v := stubVerifier{valid: map[string]policy.Actor{"good": policy.As(id)}}

	tests := []struct {
		name     string
		mw       func(http.Handler) http.Handler
		header   string
		status   int
		wantBody string
	}{
		{"required with token", Auth(v), "Bearer good", http.StatusOK, id.String()},
		{"required without token", Auth(v), "", http.StatusUnauthorized, ""},
		{"required bad token", Auth(v), "Bearer nope", http.StatusUnauthorized, ""},
		{"optional without token", OptionalAuth(v), "", http.StatusOK, "anon"},
		{"optional with token", OptionalAuth(v), "bearer good", http.StatusOK, id.String()},
		{"optional bad token", OptionalAuth(v), "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			tt.mw(http.HandlerFunc(echoActor)).ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, hit("1.1.1.1"))
	assert.Equal(t, http.StatusOK, hit("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("1.1.1.1"))
	assert.Equal(t, http.StatusOK, hit("2.2.2.2"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"internal","message":"internal error"}}`, rr.Body.String())
}
