package quota

import (
	"time"

	"github.com/aidqr/aidqr/internal/metrics"
)

// NeedsReset reports whether now falls on a later calendar day than
// lastReset. Both instants are compared as dates in now's location, so the
// decision follows the local calendar rather than elapsed time.
func NeedsReset(lastReset, now time.Time) bool {
	ly, lm, ld := lastReset.In(now.Location()).Date()
	ny, nm, nd := now.Date()

	if ny != ly {
		return ny > ly
	}
	if nm != lm {
		return nm > lm
	}
	return nd > ld
}

// resetIfStale zeroes r's usage when its last reset is on an earlier day.
// Outstanding keys are kept.
func resetIfStale(r *Record, now time.Time) bool {
	if !NeedsReset(r.LastReset, now) {
		return false
	}
	r.Used = Allowance{}
	r.LastReset = now
	metrics.QuotaResetsTotal.Inc()
	return true
}
