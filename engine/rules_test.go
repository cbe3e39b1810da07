package engine

import (
	"reflect"
	"testing"
)

func TestRulesEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		snap  Snapshot
		score float64
		rules []string
	}{
		{
			name:  "quiet",
			snap:  Snapshot{RequestCount: 3, RequestRate: 1, UniquePathsCount: 2, UniquePathsRatio: 0.6, PathEntropy: 0.5, PayloadStddev: 40},
			score: 0,
		},
		{
			name:  "flood on one path",
			snap:  Snapshot{RequestCount: 40, RequestRate: 60, UniquePathsCount: 1, PathEntropy: 0, PayloadStddev: 50},
			score: 7.5,
			rules: []string{"rate_high", "rate_flood", "rate_concentrated"},
		},
		{
			name:  "entropy deviation shadows high entropy",
			snap:  Snapshot{PathEntropy: 0.9, PathEntropyDeviation: 2.5},
			score: 2.0,
			rules: []string{"entropy_deviation"},
		},
		{
			name:  "high entropy without deviation",
			snap:  Snapshot{PathEntropy: 0.9, PathEntropyDeviation: 1},
			score: 1.0,
			rules: []string{"entropy_high"},
		},
		{
			name:  "burst deviation shadows volume",
			snap:  Snapshot{RequestCount: 60, RequestRate: 16, RequestRateDeviation: 2.8, PathEntropy: 0.5, PayloadStddev: 10},
			score: 2.5,
			rules: []string{"burst_deviation"},
		},
		{
			name:  "burst volume fallback",
			snap:  Snapshot{RequestCount: 60, RequestRate: 16, PathEntropy: 0.5, PayloadStddev: 10},
			score: 1.0,
			rules: []string{"burst_volume"},
		},
		{
			name:  "payload deviation shadows uniform",
			snap:  Snapshot{RequestCount: 11, PayloadStddev: 1, PayloadStddevDeviation: -2, PathEntropy: 0.5},
			score: 1.0,
			rules: []string{"payload_uniform_deviation"},
		},
		{
			name:  "uniform payload fallback",
			snap:  Snapshot{RequestCount: 11, PayloadStddev: 1, PathEntropy: 0.5},
			score: 0.5,
			rules: []string{"payload_uniform"},
		},
		{
			name:  "errors",
			snap:  Snapshot{ErrorRate: 0.7, ErrorRateDeviation: 2.1, PathEntropy: 0.5},
			score: 6.0,
			rules: []string{"errors_high", "errors_severe", "errors_deviation"},
		},
		{
			name:  "header spoofing on admin",
			snap:  Snapshot{HeaderChanges: 6, AdminPathAttempts: 1, PathEntropy: 0.5},
			score: 7.5,
			rules: []string{"headers_rotating", "headers_spoofing", "headers_admin", "admin_probe"},
		},
		{
			name:  "hijack with failed login",
			snap:  Snapshot{InvalidTokenAttempts: 1, FailedLoginAttempts: 1, LoginAttempts: 1, PathEntropy: 0.5},
			score: 5.0,
			rules: []string{"token_invalid", "token_and_login_failure"},
		},
		{
			name:  "brute force",
			snap:  Snapshot{LoginAttempts: 12, FailedLoginAttempts: 8, PathEntropy: 0.5},
			score: 5.5,
			rules: []string{"login_volume", "login_failures", "login_bruteforce"},
		},
		{
			name:  "exploration",
			snap:  Snapshot{UniquePathsCount: 11, UniquePathsRatio: 0.9, RequestRate: 6, PathEntropy: 0.95},
			score: 2.5,
			rules: []string{"scan_unique_paths", "scan_aggressive", "entropy_high"},
		},
		{
			name:  "rate deviation",
			snap:  Snapshot{RequestRateDeviation: 3.5, RequestCount: 10, PathEntropy: 0.5},
			score: 3.0,
			rules: []string{"rate_deviation"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, rules := DefaultRules.Evaluate(tt.snap)
			if !approx(score, tt.score) {
				t.Errorf("score = %v, want %v (fired %v)", score, tt.score, rules)
			}
			if !reflect.DeepEqual(rules, tt.rules) {
				t.Errorf("rules = %v, want %v", rules, tt.rules)
			}
		})
	}
}

func TestRulesNeverNegative(t *testing.T) {
	snap := Snapshot{
		RequestRateDeviation:   -50,
		ErrorRateDeviation:     -50,
		PathEntropyDeviation:   -50,
		PayloadStddevDeviation: -50,
		PathEntropy:            0.5,
	}
	if score, _ := DefaultRules.Evaluate(snap); score < 0 {
		t.Fatalf("score = %v", score)
	}
}
