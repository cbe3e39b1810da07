package middleware

import (
	"net/http"
	"time"

	"ipsguard/engine"
	"ipsguard/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// Scorer is the part of the engine the request path needs.
type Scorer interface {
	Assess(id string, ev engine.Event) engine.Assessment
}

type ObserveOptions struct {
	// TrustForwarded keys requests by X-Forwarded-For instead of the peer address.
	TrustForwarded bool
	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
	// OnAssess, when set, sees every scored request.
	OnAssess func(id string, a engine.Assessment, ev engine.Event)
}

// statusRecorder captures the status the downstream handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Observe serves the request, then records it with the scorer under the
// client's IP. The response is never delayed by a ban decision; enforcement
// happens on the next request through Enforce.
func Observe(s Scorer, opts ObserveOptions, next http.Handler) http.Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(RequestLatency.WithLabelValues(methodLabel(r.Method)))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		ev := engine.NewEvent(now(), r.Method, r.URL.Path, r.URL.RawQuery,
			engine.HeadersFrom(r.Header), r.ContentLength, rec.status)
		id := ClientIP(r, opts.TrustForwarded)
		a := s.Assess(id, ev)

		if opts.OnAssess != nil {
			opts.OnAssess(id, a, ev)
		}
		if a.Score > 0 {
			logger.Debug("Request scored", "identifier", id, "path", ev.Path, "status", ev.StatusCode, "score", a.Score, "rules", a.Rules)
		}
	})
}

// methodLabel keeps the latency series bounded; any other method is "other".
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
		http.MethodConnect, http.MethodTrace:
		return m
	}
	return "other"
}
