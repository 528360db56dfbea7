package credit

// UsageForReporting packages pending usage (used minus reported) into an
// outgoing report and moves it to the reporting buckets, marking the report
// in flight.
//
// Non-termination reports are capped at the configured per-report limit; the
// remainder stays pending and is picked up by a later reporting cycle.
// Termination reports always carry the full pending amount since no further
// cycle will occur.
//
// Calling while a report is already in flight is a contract violation and
// returns ErrReportInFlight without touching any counter; callers must gate
// on UpdateType.
func (c *SessionCredit) UsageForReporting(isTermination bool) (Usage, error) {
	if c.IsReporting() {
		return Usage{}, ErrReportInFlight
	}

	tx := c.buckets[UsedTx] - c.buckets[ReportedTx]
	rx := c.buckets[UsedRx] - c.buckets[ReportedRx]

	if !isTermination && tx+rx > c.reportingLimit {
		// Cap the total, tx first.
		if tx > c.reportingLimit {
			tx = c.reportingLimit
		}
		rx = c.reportingLimit - tx
	}

	c.buckets[ReportingTx] += tx
	c.buckets[ReportingRx] += rx

	if c.reauthState == ReAuthRequired {
		c.reauthState = ReAuthProcessing
	}

	return Usage{BytesTx: tx, BytesRx: rx}, nil
}
