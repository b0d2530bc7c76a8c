package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ResponseRecorder is a wrapper for http.ResponseWriter to capture status codes.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	rr.StatusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

// LoggerOptions defines configuration for the logger middleware.
type LoggerOptions struct {
	Logger *zap.Logger
	// Level of successful responses. Responses with status >= 500 are logged
	// at error level.
	Level zapcore.Level
}

// Logger logs one entry per response.
func Logger(options LoggerOptions) Middleware {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := NewResponseRecorder(w)
			next.ServeHTTP(rec, r)

			level := options.Level
			if rec.StatusCode >= http.StatusInternalServerError {
				level = zapcore.ErrorLevel
			}
			if ce := logger.Check(level, "response"); ce != nil {
				ce.Write(
					zap.String("req_id", GetRequestID(r.Context())),
					zap.Int("status", rec.StatusCode),
					zap.String("method", r.Method),
					zap.String("url", r.URL.String()),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Duration("latency", time.Since(start)),
				)
			}
		})
	}
}
