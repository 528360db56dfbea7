package credit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishlinghu/magma/credit"
	"github.com/fishlinghu/magma/credit/store"
)

const (
	testSession = "IMSI001010000000001"
	testKey     = uint32(1)
)

type appliedAction struct {
	sessionID   string
	chargingKey uint32
	action      credit.ServiceAction
}

type fakeEnforcer struct {
	applied []appliedAction
}

func (f *fakeEnforcer) Apply(sessionID string, chargingKey uint32, action credit.ServiceAction) error {
	f.applied = append(f.applied, appliedAction{sessionID, chargingKey, action})
	return nil
}

type captureMeter struct {
	reports  []credit.ReportEvent
	grants   []credit.GrantEvent
	actions  []credit.ActionEvent
	failures []credit.FailureEvent
}

func (m *captureMeter) OnReport(e credit.ReportEvent)         { m.reports = append(m.reports, e) }
func (m *captureMeter) OnGrant(e credit.GrantEvent)           { m.grants = append(m.grants, e) }
func (m *captureMeter) OnAction(e credit.ActionEvent)         { m.actions = append(m.actions, e) }
func (m *captureMeter) OnReportFailure(e credit.FailureEvent) { m.failures = append(m.failures, e) }

func newTestManager(t *testing.T, cfg credit.Config, opts ...credit.Option) *credit.Manager {
	t.Helper()
	m, err := credit.NewManager(cfg, opts...)
	require.NoError(t, err)
	return m
}

// Test 1: activation and duplicate / unknown key handling.
func TestManager_ActivateAndErrors(t *testing.T) {
	m := newTestManager(t, credit.Config{})

	require.NoError(t, m.ActivateKey(testSession, testKey, &credit.Grant{Total: 1000}))
	assert.Equal(t, 1, m.RecordCount())

	err := m.ActivateKey(testSession, testKey, nil)
	require.ErrorIs(t, err, credit.ErrKeyExists)

	err = m.AddUsed(testSession, 99, 10, 10)
	require.ErrorIs(t, err, credit.ErrUnknownKey)

	err = m.ApplyGrant("other-session", testKey, credit.Grant{Total: 1})
	require.ErrorIs(t, err, credit.ErrUnknownKey)

	var recErr *credit.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "other-session", recErr.SessionID)
}

// Test 2: the full reporting cycle through the manager. Usage exhausts the
// quota, one report is collected, the grant acknowledges it.
func TestManager_ReportingCycle(t *testing.T) {
	meter := &captureMeter{}
	m := newTestManager(t, credit.Config{}, credit.WithMeter(meter))

	require.NoError(t, m.ActivateKey(testSession, testKey, &credit.Grant{Total: 1000}))
	require.NoError(t, m.AddUsed(testSession, testKey, 600, 500))

	reports := m.CollectUpdates()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.NotEmpty(t, r.TransactionID)
	assert.Equal(t, testSession, r.SessionID)
	assert.Equal(t, testKey, r.ChargingKey)
	assert.Equal(t, credit.UpdateQuotaExhausted, r.Type)
	assert.Equal(t, uint64(1100), r.Usage.Total())
	assert.False(t, r.Termination)

	// A second collection while the report is in flight yields nothing.
	assert.Empty(t, m.CollectUpdates())

	require.NoError(t, m.ApplyGrant(testSession, testKey, credit.Grant{Total: 1000}))
	assert.Empty(t, m.CollectUpdates())

	require.Len(t, meter.reports, 1)
	require.Len(t, meter.grants, 1)
	assert.Equal(t, r.TransactionID, meter.reports[0].TransactionID)
}

// Test 3: a key activated without a grant immediately requests credit.
func TestManager_PendingFirstGrant(t *testing.T) {
	m := newTestManager(t, credit.Config{})
	require.NoError(t, m.ActivateKey(testSession, testKey, nil))

	reports := m.CollectUpdates()
	require.Len(t, reports, 1)
	assert.Equal(t, credit.UpdateQuotaExhausted, reports[0].Type)
	assert.Equal(t, uint64(0), reports[0].Usage.Total())
}

// Test 4: report failures retry cleanly below the threshold and escalate to
// cutoff at the threshold.
func TestManager_ReportFailureEscalation(t *testing.T) {
	meter := &captureMeter{}
	enforcer := &fakeEnforcer{}
	m := newTestManager(t, credit.Config{MaxReportFailures: 2},
		credit.WithMeter(meter), credit.WithEnforcer(enforcer))

	require.NoError(t, m.ActivateKey(testSession, testKey, &credit.Grant{Total: 100}))
	require.NoError(t, m.AddUsed(testSession, testKey, 200, 0))

	require.Len(t, m.CollectUpdates(), 1)

	// First failure: clean retry, usage reported again on the next cycle.
	require.NoError(t, m.ReportFailure(testSession, testKey))
	require.Len(t, meter.failures, 1)
	assert.False(t, meter.failures[0].Escalated)

	reports := m.CollectUpdates()
	require.Len(t, reports, 1)
	assert.Equal(t, uint64(200), reports[0].Usage.Total(), "no usage lost across the retry")

	// Second failure: threshold reached, record marked for cutoff.
	require.NoError(t, m.ReportFailure(testSession, testKey))
	require.Len(t, meter.failures, 2)
	assert.True(t, meter.failures[1].Escalated)

	require.NoError(t, m.SyncEnforcement())
	require.Len(t, enforcer.applied, 1)
	assert.Equal(t, credit.ActionTerminate, enforcer.applied[0].action)
}

// Test 5: enforcement sync only pushes action changes.
func TestManager_SyncEnforcementDedupes(t *testing.T) {
	enforcer := &fakeEnforcer{}
	m := newTestManager(t, credit.Config{}, credit.WithEnforcer(enforcer))

	require.NoError(t, m.ActivateKey(testSession, testKey, &credit.Grant{Total: 1000}))

	require.NoError(t, m.SyncEnforcement())
	require.NoError(t, m.SyncEnforcement())
	require.Len(t, enforcer.applied, 1, "unchanged action must not be re-applied")
	assert.Equal(t, credit.ActionContinue, enforcer.applied[0].action)

	// Exhaust the quota: restrict.
	require.NoError(t, m.AddUsed(testSession, testKey, 1000, 0))
	require.NoError(t, m.SyncEnforcement())
	require.Len(t, enforcer.applied, 2)
	assert.Equal(t, credit.ActionRestrict, enforcer.applied[1].action)

	// Grant resolves it: continue again.
	require.Len(t, m.CollectUpdates(), 1)
	require.NoError(t, m.ApplyGrant(testSession, testKey, credit.Grant{Total: 1000}))
	require.NoError(t, m.SyncEnforcement())
	require.Len(t, enforcer.applied, 3)
	assert.Equal(t, credit.ActionContinue, enforcer.applied[2].action)
}

// Test 6: session termination produces uncapped final reports and removes
// the records, folding an in-flight report back in.
func TestManager_TerminateSession(t *testing.T) {
	m := newTestManager(t, credit.Config{ReportingLimitBytes: 100})

	require.NoError(t, m.ActivateKey(testSession, 1, &credit.Grant{Total: 100}))
	require.NoError(t, m.ActivateKey(testSession, 2, &credit.Grant{Total: 100}))
	require.NoError(t, m.ActivateKey("other", 1, &credit.Grant{Total: 100}))

	require.NoError(t, m.AddUsed(testSession, 1, 500, 250))
	require.NoError(t, m.AddUsed(testSession, 2, 40, 0))

	// Leave a report in flight on key 1; termination must still carry the
	// full pending usage exactly once.
	require.Len(t, m.CollectUpdates(), 1)

	reports, err := m.TerminateSession(context.Background(), testSession)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	var total uint64
	for _, r := range reports {
		assert.True(t, r.Termination)
		assert.Equal(t, testSession, r.SessionID)
		total += r.Usage.Total()
	}
	assert.Equal(t, uint64(790), total, "cap ignored and in-flight volume folded back")

	assert.Equal(t, 1, m.RecordCount(), "unrelated session survives")
	require.ErrorIs(t, m.AddUsed(testSession, 1, 1, 1), credit.ErrUnknownKey)
}

// Test 7: session-wide reauth touches every key of the session and only
// that session.
func TestManager_SessionReauth(t *testing.T) {
	m := newTestManager(t, credit.Config{})

	require.NoError(t, m.ActivateKey(testSession, 1, &credit.Grant{Total: 1 << 20}))
	require.NoError(t, m.ActivateKey(testSession, 2, &credit.Grant{Total: 1 << 20}))
	require.NoError(t, m.ActivateKey("other", 1, &credit.Grant{Total: 1 << 20}))

	assert.Equal(t, 2, m.TriggerSessionReauth(testSession))

	reports := m.CollectUpdates()
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, credit.UpdateReauth, r.Type)
		assert.Equal(t, testSession, r.SessionID)
	}
}

// Test 8: usage aggregates across a session's charging keys.
func TestManager_SessionUsage(t *testing.T) {
	m := newTestManager(t, credit.Config{})

	require.NoError(t, m.ActivateKey(testSession, 1, &credit.Grant{Total: 1 << 20}))
	require.NoError(t, m.ActivateKey(testSession, 2, &credit.Grant{Total: 1 << 20}))

	require.NoError(t, m.AddUsed(testSession, 1, 100, 200))
	require.NoError(t, m.AddUsed(testSession, 2, 300, 400))

	u := m.SessionUsage(testSession)
	assert.Equal(t, uint64(400), u.BytesTx)
	assert.Equal(t, uint64(600), u.BytesRx)
}

// Test 9: snapshot and restore through a store preserve exact counter
// state, including an in-flight report.
func TestManager_SnapshotRestore(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	m1 := newTestManager(t, credit.Config{}, credit.WithStore(st))
	require.NoError(t, m1.ActivateKey(testSession, testKey, &credit.Grant{Total: 1000}))
	require.NoError(t, m1.AddUsed(testSession, testKey, 600, 500))
	require.Len(t, m1.CollectUpdates(), 1)
	require.NoError(t, m1.Snapshot(ctx))

	m2 := newTestManager(t, credit.Config{}, credit.WithStore(st))
	require.NoError(t, m2.Restore(ctx))
	assert.Equal(t, 1, m2.RecordCount())

	// The restored record still has its report in flight.
	assert.Empty(t, m2.CollectUpdates())

	require.NoError(t, m2.ApplyGrant(testSession, testKey, credit.Grant{Total: 1000}))
	u := m2.SessionUsage(testSession)
	assert.Equal(t, uint64(600), u.BytesTx)
	assert.Equal(t, uint64(500), u.BytesRx)

	// Termination cleans the store too.
	_, err := m2.TerminateSession(ctx, testSession)
	require.NoError(t, err)
	recs, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// Test 10: snapshotting without a store is an explicit error.
func TestManager_NoStore(t *testing.T) {
	m := newTestManager(t, credit.Config{})
	require.ErrorIs(t, m.Snapshot(context.Background()), credit.ErrNoStore)
	require.ErrorIs(t, m.Restore(context.Background()), credit.ErrNoStore)
}

// Test 11: the validity timer drives an update through the manager clock.
func TestManager_ValidityTimer(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, credit.Config{}, credit.WithManagerClock(clock.now))

	require.NoError(t, m.ActivateKey(testSession, testKey,
		&credit.Grant{Total: 1 << 20, Validity: time.Hour}))

	assert.Empty(t, m.CollectUpdates())

	clock.advance(2 * time.Hour)
	reports := m.CollectUpdates()
	require.Len(t, reports, 1)
	assert.Equal(t, credit.UpdateValidityTimer, reports[0].Type)
}
