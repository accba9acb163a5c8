package billing

// Usage-cost math. Calls bill per started minute with a minimum of one
// increment; the customer price is the base rate marked up by the account's
// multiplier.

const (
	billingIncrementSeconds = 60
	defaultUsageMultiplier  = 3
)

// UsageCostMinor computes the customer price in minor units for a call of
// the given duration. Zero or negative durations cost nothing.
func UsageCostMinor(s Settings, durationSeconds int) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	mult := s.UsageMultiplier
	if mult <= 0 {
		mult = defaultUsageMultiplier
	}
	minutes := billableMinutes(durationSeconds)
	return int64(minutes) * s.BaseRatePerMinMinor * mult
}

// billableMinutes rounds the duration up to whole started minutes.
func billableMinutes(actualSec int) int {
	if actualSec <= 0 {
		return 0
	}
	q := actualSec / billingIncrementSeconds
	if actualSec%billingIncrementSeconds != 0 {
		q++
	}
	return q
}
