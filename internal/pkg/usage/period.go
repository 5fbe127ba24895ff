package usage

import "time"

// PeriodStart returns the start of the billing period containing now. Paid
// subscriptions run one calendar month back from the provider's period end;
// everyone else counts from the first day of the current UTC month.
func PeriodStart(currentPeriodEnd *time.Time, now time.Time) time.Time {
	if currentPeriodEnd != nil && !currentPeriodEnd.IsZero() {
		return currentPeriodEnd.UTC().AddDate(0, -1, 0)
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd is the matching display boundary: the provider period end, or the
// last second of the current UTC month.
func PeriodEnd(currentPeriodEnd *time.Time, now time.Time) time.Time {
	if currentPeriodEnd != nil && !currentPeriodEnd.IsZero() {
		return currentPeriodEnd.UTC()
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Second)
}
