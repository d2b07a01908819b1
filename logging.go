package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type ctxKey struct{}

var loggerKey = ctxKey{}

func WithLogger(r *http.Request, l *slog.Logger) *http.Request {
	ctx := context.WithValue(r.Context(), loggerKey, l)
	return r.WithContext(ctx)
}

func LoggerFrom(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// openLogFile opens <dir>/app_log_<date>.log for appending.
func openLogFile(dir string) (*os.File, error) {
	date := time.Now().Format("2006-01-02")
	filename := filepath.Join(dir, fmt.Sprintf("app_log_%s.log", date))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// newLogger writes JSON to the day's log file, or to stdout when the file
// cannot be opened. The returned closer is never nil.
func newLogger(dir string, level slog.Level) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	f, err := openLogFile(dir)
	if err == nil {
		out, closer = f, f
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	if err != nil {
		logger.Warn("could not open log file, falling back to stdout", "error", err)
	}
	return logger, closer
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = WithLogger(r, log)
		next.ServeHTTP(rec, r)
		log.Debug("http request",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
