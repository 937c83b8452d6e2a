package entitlement

import "time"

// DefaultDailyAllowance is the free-tier refill value when none is configured
const DefaultDailyAllowance = 5

// DateLayout is the storage and wire format of reset dates
const DateLayout = "2006-01-02"

// Day truncates t to midnight of its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ShouldReset reports whether credits must be refilled for today. A missing
// last reset always resets; a last reset on or after today never does.
func ShouldReset(lastResetDate *time.Time, today time.Time) bool {
	if lastResetDate == nil {
		return true
	}
	return Day(*lastResetDate).Before(Day(today))
}

// ResetPolicy decides refills for free-tier records
type ResetPolicy struct {
	Allowance int
}

// NewResetPolicy returns a policy refilling to allowance, falling back to
// DefaultDailyAllowance for non-positive values.
func NewResetPolicy(allowance int) ResetPolicy {
	if allowance <= 0 {
		allowance = DefaultDailyAllowance
	}
	return ResetPolicy{Allowance: allowance}
}

// Refill returns the credits and reset date to store for rec at now, and
// whether a refill is due at all. Unused credits do not roll over.
func (p ResetPolicy) Refill(rec *Record, now time.Time) (credits int, resetDate time.Time, due bool) {
	today := Day(now)
	if !ShouldReset(rec.LastResetDate, today) {
		return rec.DailyCredits, today, false
	}
	return p.Allowance, today, true
}
