package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/foundernet/engine/pkg/logger"
)

// Logging logs basic request information with request ID and actor.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		// Auth runs further down the chain; it records the actor here.
		slot := &actorSlot{}
		next.ServeHTTP(rw, r.WithContext(withActorSlot(r.Context(), slot)))
		logger.L().Info("request",
			zap.String("id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("actor", slot.actor),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
