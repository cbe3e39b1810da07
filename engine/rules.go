package engine

// Rule adds Weight to the score when When holds. If it does not hold and
// Otherwise is set, the fallback rule is evaluated in its place.
type Rule struct {
	Name      string
	Weight    float64
	When      func(s Snapshot) bool
	Otherwise *Rule
}

// Rules is an ordered rule table. Every top-level rule is evaluated; there is
// no early exit.
type Rules []Rule

// Evaluate sums the weights of all firing rules and names them in table order.
func (rs Rules) Evaluate(s Snapshot) (float64, []string) {
	var (
		score float64
		fired []string
	)
	for i := range rs {
		for r := &rs[i]; r != nil; r = r.Otherwise {
			if r.When(s) {
				score += r.Weight
				fired = append(fired, r.Name)
				break
			}
		}
	}
	return score, fired
}

// DefaultRules is the fixed detection table. Groups follow the attacker
// profiles they target.
var DefaultRules = Rules{
	// endpoint exploration
	{Name: "scan_unique_paths", Weight: 0.5, When: func(s Snapshot) bool {
		return s.UniquePathsCount > 10
	}},
	{Name: "scan_aggressive", Weight: 1.0, When: func(s Snapshot) bool {
		return s.UniquePathsRatio > 0.5 && s.RequestRate > 5
	}},
	{Name: "entropy_deviation", Weight: 2.0, When: func(s Snapshot) bool {
		return s.PathEntropyDeviation > 2.0
	}, Otherwise: &Rule{Name: "entropy_high", Weight: 1.0, When: func(s Snapshot) bool {
		return s.PathEntropy > 0.7
	}}},

	// volumetric flood
	{Name: "rate_high", Weight: 2.0, When: func(s Snapshot) bool {
		return s.RequestRate > 20
	}},
	{Name: "rate_flood", Weight: 4.0, When: func(s Snapshot) bool {
		return s.RequestRate > 50
	}},
	{Name: "rate_deviation", Weight: 3.0, When: func(s Snapshot) bool {
		return s.RequestRateDeviation > 3.0
	}},
	{Name: "rate_concentrated", Weight: 1.5, When: func(s Snapshot) bool {
		return s.PathEntropy < 0.2 && s.RequestRate > 10
	}},

	// bursty traffic
	{Name: "burst_deviation", Weight: 2.5, When: func(s Snapshot) bool {
		return s.RequestRateDeviation > 2.5 && s.RequestCount > 30
	}, Otherwise: &Rule{Name: "burst_volume", Weight: 1.0, When: func(s Snapshot) bool {
		return s.RequestRate > 15 && s.RequestCount > 50
	}}},

	// error generation
	{Name: "errors_high", Weight: 1.5, When: func(s Snapshot) bool {
		return s.ErrorRate > 0.3
	}},
	{Name: "errors_severe", Weight: 2.5, When: func(s Snapshot) bool {
		return s.ErrorRate > 0.6
	}},
	{Name: "errors_deviation", Weight: 2.0, When: func(s Snapshot) bool {
		return s.ErrorRateDeviation > 2.0
	}},

	// header spoofing
	{Name: "headers_rotating", Weight: 1.5, When: func(s Snapshot) bool {
		return s.HeaderChanges > 3
	}},
	{Name: "headers_spoofing", Weight: 2.5, When: func(s Snapshot) bool {
		return s.HeaderChanges > 5
	}},
	{Name: "headers_admin", Weight: 2.0, When: func(s Snapshot) bool {
		return s.HeaderChanges > 2 && s.AdminPathAttempts > 0
	}},

	// session hijacking
	{Name: "token_invalid", Weight: 3.0, When: func(s Snapshot) bool {
		return s.InvalidTokenAttempts > 0
	}},
	{Name: "token_and_login_failure", Weight: 2.0, When: func(s Snapshot) bool {
		return s.FailedLoginAttempts > 0 && s.InvalidTokenAttempts > 0
	}},

	// credential brute force
	{Name: "login_volume", Weight: 0.5, When: func(s Snapshot) bool {
		return s.LoginAttempts > 5
	}},
	{Name: "login_failures", Weight: 2.0, When: func(s Snapshot) bool {
		return s.FailedLoginAttempts > 3
	}},
	{Name: "login_bruteforce", Weight: 3.0, When: func(s Snapshot) bool {
		return s.FailedLoginAttempts > 5 && s.LoginAttempts > 10
	}},

	// uniform payloads
	{Name: "payload_uniform_deviation", Weight: 1.0, When: func(s Snapshot) bool {
		return s.PayloadStddevDeviation < -1.5 && s.RequestCount > 10
	}, Otherwise: &Rule{Name: "payload_uniform", Weight: 0.5, When: func(s Snapshot) bool {
		return s.PayloadStddev < 5 && s.RequestCount > 10
	}}},

	{Name: "admin_probe", Weight: 1.5, When: func(s Snapshot) bool {
		return s.AdminPathAttempts > 0
	}},
}
