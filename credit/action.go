package credit

// Action resolves the enforcement action the data plane must apply for this
// charging key and settles the enforcement state accordingly. It performs no
// I/O; the caller hands the action to the tunnel-enforcement collaborator.
func (c *SessionCredit) Action() ServiceAction {
	switch {
	case c.failed, c.isFinal && c.quotaExhausted():
		// No grant will resolve this. Cut the key off.
		c.serviceState = ServiceDisabled
		return ActionTerminate

	case c.quotaExhausted():
		// A grant is still outstanding or expected. Discard traffic until
		// the charging authority answers. A record awaiting its first grant
		// keeps its pending-activation state.
		if c.serviceState != ServiceNeedsActivation {
			c.serviceState = ServiceNeedsDeactivation
		}
		return ActionRestrict

	default:
		c.serviceState = ServiceEnabled
		return ActionContinue
	}
}
