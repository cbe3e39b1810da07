package engine

import (
	"math"
	"strings"
)

// Feature names a value in a Snapshot.
type Feature string

const (
	RequestCount         Feature = "request_count"
	RequestRate          Feature = "request_rate"
	UniquePathsCount     Feature = "unique_paths_count"
	UniquePathsRatio     Feature = "unique_paths_ratio"
	HeaderChanges        Feature = "header_changes"
	PayloadStddev        Feature = "payload_stddev"
	ErrorRate            Feature = "error_rate"
	LoginAttempts        Feature = "login_attempts"
	FailedLoginAttempts  Feature = "failed_login_attempts"
	AdminPathAttempts    Feature = "admin_path_attempts"
	InvalidTokenAttempts Feature = "invalid_token_attempts"
	PathEntropy          Feature = "path_entropy"

	RequestRateDeviation      Feature = "request_rate_deviation"
	UniquePathsCountDeviation Feature = "unique_paths_count_deviation"
	ErrorRateDeviation        Feature = "error_rate_deviation"
	PayloadStddevDeviation    Feature = "payload_stddev_deviation"
	PathEntropyDeviation      Feature = "path_entropy_deviation"
)

// Snapshot is the full feature set derived from one identifier's window.
// It is recomputed from scratch on every event.
type Snapshot struct {
	RequestCount         float64 `json:"request_count"`
	RequestRate          float64 `json:"request_rate"`
	UniquePathsCount     float64 `json:"unique_paths_count"`
	UniquePathsRatio     float64 `json:"unique_paths_ratio"`
	HeaderChanges        float64 `json:"header_changes"`
	PayloadStddev        float64 `json:"payload_stddev"`
	ErrorRate            float64 `json:"error_rate"`
	LoginAttempts        float64 `json:"login_attempts"`
	FailedLoginAttempts  float64 `json:"failed_login_attempts"`
	AdminPathAttempts    float64 `json:"admin_path_attempts"`
	InvalidTokenAttempts float64 `json:"invalid_token_attempts"`
	PathEntropy          float64 `json:"path_entropy"`

	RequestRateDeviation      float64 `json:"request_rate_deviation"`
	UniquePathsCountDeviation float64 `json:"unique_paths_count_deviation"`
	ErrorRateDeviation        float64 `json:"error_rate_deviation"`
	PayloadStddevDeviation    float64 `json:"payload_stddev_deviation"`
	PathEntropyDeviation      float64 `json:"path_entropy_deviation"`
}

func (s *Snapshot) field(f Feature) *float64 {
	switch f {
	case RequestCount:
		return &s.RequestCount
	case RequestRate:
		return &s.RequestRate
	case UniquePathsCount:
		return &s.UniquePathsCount
	case UniquePathsRatio:
		return &s.UniquePathsRatio
	case HeaderChanges:
		return &s.HeaderChanges
	case PayloadStddev:
		return &s.PayloadStddev
	case ErrorRate:
		return &s.ErrorRate
	case LoginAttempts:
		return &s.LoginAttempts
	case FailedLoginAttempts:
		return &s.FailedLoginAttempts
	case AdminPathAttempts:
		return &s.AdminPathAttempts
	case InvalidTokenAttempts:
		return &s.InvalidTokenAttempts
	case PathEntropy:
		return &s.PathEntropy
	case RequestRateDeviation:
		return &s.RequestRateDeviation
	case UniquePathsCountDeviation:
		return &s.UniquePathsCountDeviation
	case ErrorRateDeviation:
		return &s.ErrorRateDeviation
	case PayloadStddevDeviation:
		return &s.PayloadStddevDeviation
	case PathEntropyDeviation:
		return &s.PathEntropyDeviation
	}
	return nil
}

// Value returns the named feature, or false for an unknown name.
func (s Snapshot) Value(f Feature) (float64, bool) {
	p := s.field(f)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Map renders the snapshot keyed by feature name.
func (s Snapshot) Map() map[string]float64 {
	out := make(map[string]float64, len(AllFeatures))
	for _, f := range AllFeatures {
		out[string(f)] = *s.field(f)
	}
	return out
}

// AllFeatures lists every snapshot feature in a stable order.
var AllFeatures = []Feature{
	RequestCount, RequestRate, UniquePathsCount, UniquePathsRatio,
	HeaderChanges, PayloadStddev, ErrorRate, LoginAttempts,
	FailedLoginAttempts, AdminPathAttempts, InvalidTokenAttempts, PathEntropy,
	RequestRateDeviation, UniquePathsCountDeviation, ErrorRateDeviation,
	PayloadStddevDeviation, PathEntropyDeviation,
}

const (
	minTokenLength = 10
	bearerPrefix   = "bearer "
)

// Extractor derives a Snapshot from a window of events. It holds only
// configuration and is safe for concurrent use.
type Extractor struct {
	AdminPaths []string
	LoginPaths []string
}

// Extract computes the windowed features. Deviation fields are left at zero;
// the Baseline fills them in.
func (x Extractor) Extract(window []Event) Snapshot {
	n := len(window)
	if n == 0 {
		return Snapshot{}
	}

	duration := 1.0
	first, last := window[0].Timestamp, window[n-1].Timestamp
	if last.After(first) {
		duration = last.Sub(first).Seconds()
	}

	var (
		pathCounts   = make(map[string]int)
		headerValues = make(map[string]map[string]struct{})
		payloads     = make([]float64, 0, n)
		errCount     int
		logins       int
		failedLogins int
		admin        int
		badTokens    int
	)

	for _, ev := range window {
		pathCounts[ev.Path]++
		payloads = append(payloads, float64(ev.ContentLength))

		if ev.IsError() {
			errCount++
		}
		if containsAny(ev.Path, x.LoginPaths) {
			logins++
			if ev.StatusCode == 401 || ev.StatusCode == 403 {
				failedLogins++
			}
		}
		if containsAny(ev.Path, x.AdminPaths) {
			admin++
		}

		for k, v := range ev.Headers {
			k = strings.ToLower(k)
			vals, ok := headerValues[k]
			if !ok {
				vals = make(map[string]struct{})
				headerValues[k] = vals
			}
			vals[v] = struct{}{}
		}

		if invalidToken(ev.Header("authorization")) {
			badTokens++
		}
	}

	changes := 0
	for _, vals := range headerValues {
		if len(vals) > 1 {
			changes++
		}
	}

	unique := len(pathCounts)
	return Snapshot{
		RequestCount:         float64(n),
		RequestRate:          float64(n) / duration,
		UniquePathsCount:     float64(unique),
		UniquePathsRatio:     float64(unique) / float64(n),
		HeaderChanges:        float64(changes),
		PayloadStddev:        sampleStddev(payloads),
		ErrorRate:            float64(errCount) / float64(n),
		LoginAttempts:        float64(logins),
		FailedLoginAttempts:  float64(failedLogins),
		AdminPathAttempts:    float64(admin),
		InvalidTokenAttempts: float64(badTokens),
		PathEntropy:          normalizedEntropy(pathCounts, n),
	}
}

func containsAny(path string, subs []string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// invalidToken reports an authorization value that is present but is not a
// plausible bearer token. An absent header is never counted.
func invalidToken(auth string) bool {
	if auth == "" {
		return false
	}
	auth = strings.ToLower(auth)
	return !strings.HasPrefix(auth, bearerPrefix) || len(auth) < minTokenLength
}

// normalizedEntropy is the base-2 Shannon entropy of the path distribution
// divided by its maximum, log2(distinct paths). It lies in [0, 1].
func normalizedEntropy(counts map[string]int, total int) float64 {
	if len(counts) <= 1 || total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	h /= math.Log2(float64(len(counts)))
	return math.Max(0, math.Min(1, h))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStddev uses the n-1 denominator; fewer than two values give 0.
func sampleStddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
