package credit

// Enforcer is the boundary to the data-plane tunnel-enforcement layer. It
// receives the resolved enforcement action whenever it changes for a charging
// key and is responsible for forwarding, discarding or tearing down the
// subscriber's traffic accordingly. The credit core never manipulates
// tunnels directly.
type Enforcer interface {
	Apply(sessionID string, chargingKey uint32, action ServiceAction) error
}

// noopEnforcer is the default enforcer.
type noopEnforcer struct{}

func (noopEnforcer) Apply(string, uint32, ServiceAction) error { return nil }
