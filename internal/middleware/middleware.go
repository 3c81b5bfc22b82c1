// Package middleware provides the HTTP middleware chain shared by the API
// and the operational endpoints: request IDs, metrics and access logging,
// CORS, panic recovery, body size caps and per-client rate limiting.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanyexieai/sevino/internal/accesslog"
	"github.com/sanyexieai/sevino/internal/config"
	"github.com/sanyexieai/sevino/internal/metrics"
	"github.com/sanyexieai/sevino/internal/ratelimit"
)

var requestIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)

// RequestID stamps an X-Request-Id header on every response. A
// client-provided ID is reused after stripping anything that could smuggle
// extra headers into the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id != "" {
			id = requestIDSanitizer.ReplaceAllString(id, "")
			if len(id) > 128 {
				id = id[:128]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the status code and body size for metrics and the
// access log. Flush is forwarded so event streaming keeps working behind it.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Observe records Prometheus metrics and an access log line for every
// request. The access logger may be nil when access logging is disabled.
func Observe(access *accesslog.AccessLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		bytesIn := r.ContentLength
		if bytesIn < 0 {
			bytesIn = 0
		}
		metrics.RecordRequest(r.Method, sw.status, elapsed.Seconds(), bytesIn, sw.bytes)

		bucket, key := bucketKeyFromPath(r.URL.Path)
		access.Log(accesslog.AccessEntry{
			Time:       start,
			Method:     r.Method,
			Path:       r.URL.Path,
			Bucket:     bucket,
			Key:        key,
			Status:     sw.status,
			Bytes:      sw.bytes,
			DurationMS: float64(elapsed.Microseconds()) / 1000.0,
			ClientIP:   ClientIP(r),
			RequestID:  w.Header().Get("X-Request-Id"),
		})
	})
}

// Subresource segments that trail an object key in the URL.
var objectSuffixes = []string{"/metadata", "/versions", "/multipart"}

// bucketKeyFromPath pulls the bucket and key out of /api/buckets paths so
// access log lines can be filtered without reparsing URLs.
func bucketKeyFromPath(path string) (bucket, key string) {
	rest, ok := strings.CutPrefix(path, "/api/buckets/")
	if !ok {
		return "", ""
	}
	bucket, rest, _ = strings.Cut(rest, "/")
	key, ok = strings.CutPrefix(rest, "objects/")
	if !ok {
		return bucket, ""
	}
	for _, s := range objectSuffixes {
		key = strings.TrimSuffix(key, s)
	}
	return bucket, key
}

// ClientIP returns the originating address, preferring the first
// X-Forwarded-For hop when a proxy injected one.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CORS applies the configured cross-origin policy and short-circuits
// preflight requests from allowed origins. A disabled config passes
// everything straight through.
func CORS(cfg config.CORSConfig, next http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]bool, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			allowAny = true
			continue
		}
		allowed[o] = true
	}
	methods := strings.Join(cfg.Methods, ", ")
	headers := strings.Join(cfg.Headers, ", ")
	maxAge := strconv.Itoa(cfg.MaxAgeSecs)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAny || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// PanicRecovery converts handler panics into 500 responses instead of
// dropped connections. The stack is logged with the request ID.
func PanicRecovery(log *zap.SugaredLogger, next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorw("panic recovered",
					"request_id", w.Header().Get("X-Request-Id"),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// MaxBody caps the request body size. Reads past the cap fail inside the
// handler with *http.MaxBytesError, which the API maps to 413.
func MaxBody(limit int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects clients that exceed the configured request rate. A nil
// limiter disables the check.
func RateLimit(l *ratelimit.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l != nil && !l.Allow(ClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"success":false,"data":null,"error":"Rate limit exceeded"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}
