package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

type responseMeta struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseMeta) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseMeta) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Logger emits one structured line per request. Server errors log at warn so
// failed queue passes stand out in the stream.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meta := &responseMeta{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(meta, r)

		level := slog.LevelInfo
		if meta.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", meta.status,
			"bytes", meta.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
