package credit

// UpdateType decides whether, and why, a usage report must be sent to the
// charging authority. Checks run in priority order so a forced
// re-authorization is never superseded by a routine quota report, and no
// second report is generated while one is outstanding.
func (c *SessionCredit) UpdateType() UpdateType {
	if c.IsReporting() {
		return UpdateNone
	}
	if c.reauthState == ReAuthRequired {
		return UpdateReauth
	}
	if c.validityExpired() {
		return UpdateValidityTimer
	}
	if c.quotaExhausted() {
		return UpdateQuotaExhausted
	}
	return UpdateNone
}

// quotaExhausted reports whether pending usage has reached the allowed
// quota. The total cap always applies; per-direction caps are additional,
// stricter gates that only apply when configured nonzero. Either direction
// exceeding its cap is sufficient.
func (c *SessionCredit) quotaExhausted() bool {
	pendingTx := c.buckets[UsedTx] - c.buckets[ReportedTx]
	pendingRx := c.buckets[UsedRx] - c.buckets[ReportedRx]

	if pendingTx+pendingRx >= c.buckets[AllowedTotal] {
		return true
	}
	if c.buckets[AllowedTx] > 0 && pendingTx >= c.buckets[AllowedTx] {
		return true
	}
	if c.buckets[AllowedRx] > 0 && pendingRx >= c.buckets[AllowedRx] {
		return true
	}
	return false
}

// validityExpired reports whether the current grant's validity window has
// passed. Records that never received a grant, or whose grant carries no
// expiry, never expire.
func (c *SessionCredit) validityExpired() bool {
	if !c.granted || c.expiry.IsZero() {
		return false
	}
	return c.now().After(c.expiry)
}
