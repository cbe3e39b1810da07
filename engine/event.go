package engine

import (
	"net/http"
	"strings"
	"time"
)

// Event is one observed request. It is immutable once built with NewEvent:
// the header map is a private copy with lower-cased keys.
type Event struct {
	Timestamp     time.Time
	Method        string
	Path          string
	Query         string
	Headers       map[string]string
	ContentLength int64
	StatusCode    int
}

// NewEvent builds an Event. A nil headers map yields an empty one, a zero
// status becomes 200 and a negative content length is clamped to 0.
func NewEvent(ts time.Time, method, path, query string, headers map[string]string, contentLength int64, status int) Event {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[strings.ToLower(k)] = v
	}
	if status == 0 {
		status = http.StatusOK
	}
	if contentLength < 0 {
		contentLength = 0
	}
	return Event{
		Timestamp:     ts,
		Method:        method,
		Path:          path,
		Query:         query,
		Headers:       h,
		ContentLength: contentLength,
		StatusCode:    status,
	}
}

// HeadersFrom flattens net/http headers into the map form NewEvent expects.
func HeadersFrom(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		out[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	return out
}

// Header returns the value of a header by case-insensitive name.
func (e Event) Header(name string) string {
	return e.Headers[strings.ToLower(name)]
}

// IsError reports whether the response status is a 4xx or 5xx.
func (e Event) IsError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 600
}
