package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type requestFields struct {
	r *http.Request
}

func (f requestFields) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("method", f.r.Method)
	enc.AddString("path", f.r.URL.Path)
	enc.AddString("remote_addr", f.r.RemoteAddr)
	if id := middleware.GetReqID(f.r.Context()); id != "" {
		enc.AddString("request_id", id)
	}
	return nil
}

type responseFields struct {
	status  int
	bytes   int
	latency time.Duration
}

func (f responseFields) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("status", f.status)
	enc.AddInt("bytes", f.bytes)
	enc.AddDuration("latency", f.latency)
	return nil
}

// NewStructuredLogger is a custom middleware that provides structured logging for requests.
func NewStructuredLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.Object("request", requestFields{r: r}),
					zap.Object("response", responseFields{status: status, bytes: ww.BytesWritten(), latency: time.Since(start)}),
				}

				if status >= 500 {
					logger.Error("server error", fields...)
				} else {
					logger.Info("request completed", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
