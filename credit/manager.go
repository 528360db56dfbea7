package credit

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Manager owns the credit records of all active sessions and drives the
// reporting and enforcement cycles on behalf of the session manager. Records
// are sharded by session and charging key; each shard serializes access to
// its records, which gives every record the single-writer discipline the
// ledger requires. There is no cross-shard coordination.
type Manager struct {
	cfg      Config
	shards   []*shard
	meter    Meter
	store    Store
	enforcer Enforcer
	failures *failureTracker
	now      func() time.Time
	newID    func() string
}

type recordKey struct {
	sessionID   string
	chargingKey uint32
}

type entry struct {
	credit *SessionCredit

	// lastAction dedupes enforcement: the enforcer is only told about
	// changes.
	lastAction ServiceAction
	hasAction  bool
}

type shard struct {
	mu      sync.Mutex
	records map[recordKey]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(mgr *Manager) { mgr.meter = m }
}

// WithStore sets the snapshot store.
func WithStore(s Store) Option {
	return func(mgr *Manager) { mgr.store = s }
}

// WithEnforcer sets the data-plane enforcement collaborator.
func WithEnforcer(e Enforcer) Option {
	return func(mgr *Manager) { mgr.enforcer = e }
}

// WithManagerClock overrides the time source. Intended for tests.
func WithManagerClock(now func() time.Time) Option {
	return func(mgr *Manager) {
		if now != nil {
			mgr.now = now
		}
	}
}

// NewManager creates a Manager. Zero config fields are filled with defaults.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		meter:    noopMeter{},
		enforcer: noopEnforcer{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.failures = newFailureTracker(cfg.MaxReportFailures, m.now)

	m.shards = make([]*shard, cfg.ShardCount)
	for i := range m.shards {
		m.shards[i] = &shard{records: make(map[recordKey]*entry)}
	}

	return m, nil
}

func (m *Manager) shardFor(k recordKey) *shard {
	d := xxhash.New()
	_, _ = d.WriteString(k.sessionID)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], k.chargingKey)
	_, _ = d.Write(b[:])
	return m.shards[d.Sum64()%uint64(len(m.shards))]
}

func (m *Manager) creditOptions() []CreditOption {
	return []CreditOption{
		WithReportingLimit(m.cfg.ReportingLimitBytes),
		WithClock(m.now),
	}
}

// ActivateKey creates the credit record for a charging key. With a nil
// initial grant the record starts pending activation and the first update
// cycle requests credit from the charging authority; with a grant it starts
// enabled.
func (m *Manager) ActivateKey(sessionID string, chargingKey uint32, initial *Grant) error {
	k := recordKey{sessionID, chargingKey}
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[k]; ok {
		return &RecordError{Err: ErrKeyExists, SessionID: sessionID, ChargingKey: chargingKey}
	}

	opts := m.creditOptions()
	if initial == nil {
		opts = append(opts, WithStartState(ServiceNeedsActivation))
	}
	c := New(opts...)
	if initial != nil {
		if err := c.ReceiveGrant(*initial); err != nil {
			return &RecordError{Err: err, SessionID: sessionID, ChargingKey: chargingKey}
		}
	}

	s.records[k] = &entry{credit: c}
	return nil
}

// RemoveKey destroys the credit record for a charging key and deletes its
// snapshot if a store is configured. Usage that was never reported is lost;
// use TerminateSession to obtain final reports first.
func (m *Manager) RemoveKey(ctx context.Context, sessionID string, chargingKey uint32) error {
	k := recordKey{sessionID, chargingKey}
	s := m.shardFor(k)
	s.mu.Lock()
	_, ok := s.records[k]
	delete(s.records, k)
	s.mu.Unlock()

	if !ok {
		return &RecordError{Err: ErrUnknownKey, SessionID: sessionID, ChargingKey: chargingKey}
	}

	m.failures.remove(k)

	if m.store != nil {
		return m.store.Delete(ctx, sessionID, chargingKey)
	}
	return nil
}

// AddUsed feeds a data-plane usage observation into a record.
func (m *Manager) AddUsed(sessionID string, chargingKey uint32, tx, rx int64) error {
	k := recordKey{sessionID, chargingKey}
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[k]
	if !ok {
		return &RecordError{Err: ErrUnknownKey, SessionID: sessionID, ChargingKey: chargingKey}
	}
	if err := e.credit.AddUsed(tx, rx); err != nil {
		return &RecordError{Err: err, SessionID: sessionID, ChargingKey: chargingKey}
	}
	return nil
}

// TriggerReauth forces a re-authorization of one charging key.
func (m *Manager) TriggerReauth(sessionID string, chargingKey uint32) error {
	k := recordKey{sessionID, chargingKey}
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[k]
	if !ok {
		return &RecordError{Err: ErrUnknownKey, SessionID: sessionID, ChargingKey: chargingKey}
	}
	e.credit.Reauth()
	return nil
}

// TriggerSessionReauth forces a re-authorization of every charging key of a
// session. Returns the number of records affected.
func (m *Manager) TriggerSessionReauth(sessionID string) int {
	var n int
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.records {
			if k.sessionID == sessionID {
				e.credit.Reauth()
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// CollectUpdates runs the update decision over every record and prepares a
// usage report for each record that is due. The caller sends the reports
// through the charging transport and feeds answers back via ApplyGrant or
// ReportFailure. Records with a report already in flight are skipped by the
// decision engine, so at most one report per record is ever outstanding.
func (m *Manager) CollectUpdates() []Report {
	var reports []Report
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.records {
			ut := e.credit.UpdateType()
			if ut == UpdateNone {
				continue
			}
			usage, err := e.credit.UsageForReporting(false)
			if err != nil {
				// Unreachable while gated on UpdateType.
				continue
			}
			r := Report{
				TransactionID: m.newID(),
				SessionID:     k.sessionID,
				ChargingKey:   k.chargingKey,
				Type:          ut,
				Usage:         usage,
			}
			reports = append(reports, r)
			m.meter.OnReport(ReportEvent{
				SessionID:     k.sessionID,
				ChargingKey:   k.chargingKey,
				TransactionID: r.TransactionID,
				Type:          ut,
				Usage:         usage,
			})
		}
		s.mu.Unlock()
	}
	return reports
}

// TerminateSession prepares final, uncapped usage reports for every charging
// key of a session and destroys the records. An unacknowledged in-flight
// report is folded back into the final report so no usage is lost or
// double-counted.
func (m *Manager) TerminateSession(ctx context.Context, sessionID string) ([]Report, error) {
	var reports []Report
	var removed []recordKey

	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.records {
			if k.sessionID != sessionID {
				continue
			}
			if e.credit.IsReporting() {
				e.credit.ResetReporting()
			}
			usage, err := e.credit.UsageForReporting(true)
			if err != nil {
				continue
			}
			r := Report{
				TransactionID: m.newID(),
				SessionID:     k.sessionID,
				ChargingKey:   k.chargingKey,
				Type:          UpdateNone,
				Usage:         usage,
				Termination:   true,
			}
			reports = append(reports, r)
			m.meter.OnReport(ReportEvent{
				SessionID:     k.sessionID,
				ChargingKey:   k.chargingKey,
				TransactionID: r.TransactionID,
				Type:          UpdateNone,
				Usage:         usage,
				Termination:   true,
			})
			delete(s.records, k)
			removed = append(removed, k)
		}
		s.mu.Unlock()
	}

	var errs []error
	for _, k := range removed {
		m.failures.remove(k)
		if m.store != nil {
			if err := m.store.Delete(ctx, k.sessionID, k.chargingKey); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return reports, errors.Join(errs...)
}

// ApplyGrant feeds a quota grant from the charging authority into a record,
// acknowledging the in-flight report.
func (m *Manager) ApplyGrant(sessionID string, chargingKey uint32, g Grant) error {
	k := recordKey{sessionID, chargingKey}
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[k]
	if !ok {
		return &RecordError{Err: ErrUnknownKey, SessionID: sessionID, ChargingKey: chargingKey}
	}
	if err := e.credit.ReceiveGrant(g); err != nil {
		return &RecordError{Err: err, SessionID: sessionID, ChargingKey: chargingKey}
	}

	m.failures.recordSuccess(k)
	m.meter.OnGrant(GrantEvent{SessionID: sessionID, ChargingKey: chargingKey, Grant: g})
	return nil
}

// ReportFailure feeds back a report delivery failure. Under the configured
// failure threshold the in-flight report is cleared so the usage is retried
// on the next cycle; at the threshold the record is marked for cutoff.
func (m *Manager) ReportFailure(sessionID string, chargingKey uint32) error {
	k := recordKey{sessionID, chargingKey}
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[k]
	if !ok {
		return &RecordError{Err: ErrUnknownKey, SessionID: sessionID, ChargingKey: chargingKey}
	}

	escalated := m.failures.recordFailure(k)
	if escalated {
		e.credit.MarkFailure()
	} else {
		e.credit.ResetReporting()
	}

	m.meter.OnReportFailure(FailureEvent{
		SessionID:   sessionID,
		ChargingKey: chargingKey,
		Escalated:   escalated,
	})
	return nil
}

// SyncEnforcement resolves the enforcement action of every record and pushes
// changed actions to the enforcer.
func (m *Manager) SyncEnforcement() error {
	var errs []error
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.records {
			action := e.credit.Action()
			if e.hasAction && e.lastAction == action {
				continue
			}
			e.lastAction = action
			e.hasAction = true

			m.meter.OnAction(ActionEvent{
				SessionID:   k.sessionID,
				ChargingKey: k.chargingKey,
				Action:      action,
			})
			if err := m.enforcer.Apply(k.sessionID, k.chargingKey, action); err != nil {
				errs = append(errs, &RecordError{
					Err:         err,
					SessionID:   k.sessionID,
					ChargingKey: k.chargingKey,
				})
			}
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// SessionUsage returns the aggregate used volume across all charging keys of
// a session.
func (m *Manager) SessionUsage(sessionID string) Usage {
	var u Usage
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.records {
			if k.sessionID == sessionID {
				u.BytesTx += e.credit.Get(UsedTx)
				u.BytesRx += e.credit.Get(UsedRx)
			}
		}
		s.mu.Unlock()
	}
	return u
}

// RecordCount returns the number of active credit records.
func (m *Manager) RecordCount() int {
	var n int
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}

// Snapshot persists every record through the configured store.
func (m *Manager) Snapshot(ctx context.Context) error {
	if m.store == nil {
		return ErrNoStore
	}

	var snaps []RecordSnapshot
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.records {
			snap := e.credit.Snapshot()
			snap.SessionID = k.sessionID
			snap.ChargingKey = k.chargingKey
			snaps = append(snaps, snap)
		}
		s.mu.Unlock()
	}

	return m.store.Save(ctx, snaps)
}

// Restore rebuilds records from the configured store. Existing records with
// the same identity are replaced; intended to run once at startup.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return ErrNoStore
	}

	snaps, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		k := recordKey{snap.SessionID, snap.ChargingKey}
		c := NewFromSnapshot(snap, m.creditOptions()...)
		s := m.shardFor(k)
		s.mu.Lock()
		s.records[k] = &entry{credit: c}
		s.mu.Unlock()
	}
	return nil
}
