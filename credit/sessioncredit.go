// Package credit implements the credit and quota accounting engine of a
// mobile-network gateway's session manager. For each charging key of a
// subscriber session it tracks consumed volume, granted quota, in-flight and
// acknowledged usage reports, decides when the charging authority must be
// contacted again, and resolves the enforcement action the data plane must
// apply.
//
// SessionCredit is the per-key ledger; Manager owns many records across
// sessions and drives the reporting and enforcement cycles.
package credit

import "time"

// DefaultReportingLimit caps the usage volume carried by a single
// non-termination report. Larger pending usage is split across reporting
// cycles.
const DefaultReportingLimit uint64 = 1 << 30 // 1 GiB

// SessionCredit tracks all credit volumes associated with one charging key of
// a subscriber session. It receives used volume from the data plane, allowed
// volume from the charging authority, and answers whether an update is due
// and which enforcement action applies.
//
// A SessionCredit is not safe for concurrent use; each record must be owned
// by a single session-manager context. Manager provides that serialization.
type SessionCredit struct {
	buckets [bucketCount]uint64

	reauthState  ReAuthState
	serviceState ServiceState

	// isFinal records that the last received grant was final: no further
	// grant will arrive and exhaustion is terminal.
	isFinal bool

	// failed marks the record for enforcement cutoff after a report
	// delivery failure was escalated.
	failed bool

	// granted is set once any grant has been received. The validity timer
	// only applies after a grant.
	granted bool

	// expiry is the end of the current grant's validity window. Zero means
	// no expiry.
	expiry time.Time

	reportingLimit uint64
	now            func() time.Time
}

// CreditOption configures a SessionCredit.
type CreditOption func(*SessionCredit)

// WithReportingLimit overrides the per-report usage cap.
func WithReportingLimit(limit uint64) CreditOption {
	return func(c *SessionCredit) {
		if limit > 0 {
			c.reportingLimit = limit
		}
	}
}

// WithStartState sets the initial enforcement state. Use
// ServiceNeedsActivation for keys activated before their first grant.
func WithStartState(s ServiceState) CreditOption {
	return func(c *SessionCredit) { c.serviceState = s }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) CreditOption {
	return func(c *SessionCredit) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a SessionCredit with no quota and no usage.
func New(opts ...CreditOption) *SessionCredit {
	c := &SessionCredit{
		reauthState:    ReAuthNotNeeded,
		serviceState:   ServiceEnabled,
		reportingLimit: DefaultReportingLimit,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddUsed records tx/rx volume consumed by the subscriber. Negative deltas
// are rejected without mutating state.
func (c *SessionCredit) AddUsed(tx, rx int64) error {
	if tx < 0 || rx < 0 {
		return ErrNegativeDelta
	}
	c.buckets[UsedTx] += uint64(tx)
	c.buckets[UsedRx] += uint64(rx)
	return nil
}

// ReceiveGrant applies a quota allocation from the charging authority. It
// acknowledges the in-flight report by moving reporting volume to reported,
// raises the allowed buckets, resets the validity window and clears any
// pending re-authorization.
func (c *SessionCredit) ReceiveGrant(g Grant) error {
	if g.Validity < 0 {
		return ErrNegativeDelta
	}

	c.buckets[AllowedTotal] += g.Total
	c.buckets[AllowedTx] += g.Tx
	c.buckets[AllowedRx] += g.Rx

	c.buckets[ReportedTx] += c.buckets[ReportingTx]
	c.buckets[ReportedRx] += c.buckets[ReportingRx]
	c.buckets[ReportingTx] = 0
	c.buckets[ReportingRx] = 0

	if g.Validity > 0 {
		c.expiry = c.now().Add(g.Validity)
	} else {
		c.expiry = time.Time{}
	}

	c.reauthState = ReAuthNotNeeded
	c.isFinal = g.IsFinal
	c.granted = true
	c.failed = false
	return nil
}

// MarkFailure flags the record for enforcement cutoff after the charging
// authority rejected or never acknowledged a report. The in-flight report is
// abandoned so the usage stays pending.
func (c *SessionCredit) MarkFailure() {
	c.failed = true
	c.serviceState = ServiceNeedsDeactivation
	c.buckets[ReportingTx] = 0
	c.buckets[ReportingRx] = 0
}

// ResetReporting clears the in-flight report without acknowledgement so the
// usage becomes eligible for a clean retry. Unlike MarkFailure it carries no
// enforcement consequence.
func (c *SessionCredit) ResetReporting() {
	c.buckets[ReportingTx] = 0
	c.buckets[ReportingRx] = 0
}

// Reauth marks the record as requiring a forced re-authorization. The next
// update decision reports usage with the reauth reason regardless of quota.
func (c *SessionCredit) Reauth() {
	c.reauthState = ReAuthRequired
}

// Get returns the volume in a bucket.
func (c *SessionCredit) Get(b Bucket) uint64 {
	if b < 0 || b >= bucketCount {
		return 0
	}
	return c.buckets[b]
}

// IsReporting returns true while a report is outstanding, i.e. either
// reporting bucket is nonzero.
func (c *SessionCredit) IsReporting() bool {
	return c.buckets[ReportingTx]+c.buckets[ReportingRx] > 0
}

// ReAuthState returns the current re-authorization state.
func (c *SessionCredit) ReAuthState() ReAuthState { return c.reauthState }

// ServiceState returns the current enforcement state.
func (c *SessionCredit) ServiceState() ServiceState { return c.serviceState }

// IsFinal returns true once a final grant has been received.
func (c *SessionCredit) IsFinal() bool { return c.isFinal }

// Failed returns true once the record has been marked for cutoff.
func (c *SessionCredit) Failed() bool { return c.failed }

// Expiry returns the end of the current validity window, zero if none.
func (c *SessionCredit) Expiry() time.Time { return c.expiry }
