package internaldefs

import "github.com/uimp/portalguard"

// CounterDef maps one engine counter to an exported series. Several defs may
// share a Name and differ by Label.
type CounterDef struct {
	ID   portalguard.MetricID
	Name string
	Help string
	// Label is an optional key/value pair distinguishing series of one name.
	Label [2]string
}

// HistogramDef maps one engine histogram to an exported series.
type HistogramDef struct {
	ID   portalguard.MetricID
	Name string
	Help string
}

const decisionsHelp = "Route decisions made by the edge, by outcome."

// CounterDefs lists every exported counter, grouped by Name.
var CounterDefs = []CounterDef{
	{ID: portalguard.MetricDecisionAllow, Name: "uimp_route_decisions_total", Help: decisionsHelp, Label: [2]string{"outcome", "allow"}},
	{ID: portalguard.MetricRedirectLogin, Name: "uimp_route_decisions_total", Help: decisionsHelp, Label: [2]string{"outcome", "login"}},
	{ID: portalguard.MetricRedirectDashboard, Name: "uimp_route_decisions_total", Help: decisionsHelp, Label: [2]string{"outcome", "dashboard"}},
	{ID: portalguard.MetricRedirectAuthPage, Name: "uimp_route_decisions_total", Help: decisionsHelp, Label: [2]string{"outcome", "auth_page"}},
	{ID: portalguard.MetricVerifyFailure, Name: "uimp_token_verify_failures_total", Help: "Presented tokens that failed verification."},
	{ID: portalguard.MetricLoginSuccess, Name: "uimp_logins_total", Help: "Login attempts, by result.", Label: [2]string{"result", "success"}},
	{ID: portalguard.MetricLoginFailure, Name: "uimp_logins_total", Help: "Login attempts, by result.", Label: [2]string{"result", "failure"}},
	{ID: portalguard.MetricLoginRateLimited, Name: "uimp_logins_total", Help: "Login attempts, by result.", Label: [2]string{"result", "rate_limited"}},
	{ID: portalguard.MetricSessionCreated, Name: "uimp_sessions_created_total", Help: "Sessions written to the session store."},
	{ID: portalguard.MetricLogout, Name: "uimp_logouts_total", Help: "Logout operations."},
	{ID: portalguard.MetricGuardNavigation, Name: "uimp_guard_navigations_total", Help: "Navigations issued by client route guards."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: portalguard.MetricDecideLatency, Name: "uimp_route_decision_seconds", Help: "Edge route decision latency."},
}

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 8

// HistogramBounds are the upper bounds in seconds of the engine's latency
// buckets.
var HistogramBounds = [BucketCount]string{
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"+Inf",
}

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = [BucketCount]string{
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"inf",
}

// CumulativeBuckets converts per-bucket counts to cumulative counts. Missing
// trailing buckets count as zero.
func CumulativeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
