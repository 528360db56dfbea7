// Package postgres provides a PostgreSQL-backed snapshot store for credit
// records.
//
// Snapshots are upserted into a single table keyed by (session_id,
// charging_key). This gives durability across gateway restarts and works for
// multi-instance deployments where each instance owns a disjoint set of
// sessions.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fishlinghu/magma/credit"
)

// Store is a PostgreSQL-backed snapshot store.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ credit.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "credit_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed snapshot store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "credit_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordsTable() string { return s.tablePrefix + "records" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT NOT NULL,
			charging_key BIGINT NOT NULL,
			used_tx BIGINT NOT NULL DEFAULT 0,
			used_rx BIGINT NOT NULL DEFAULT 0,
			allowed_total BIGINT NOT NULL DEFAULT 0,
			allowed_tx BIGINT NOT NULL DEFAULT 0,
			allowed_rx BIGINT NOT NULL DEFAULT 0,
			reporting_tx BIGINT NOT NULL DEFAULT 0,
			reporting_rx BIGINT NOT NULL DEFAULT 0,
			reported_tx BIGINT NOT NULL DEFAULT 0,
			reported_rx BIGINT NOT NULL DEFAULT 0,
			reauth_state INT NOT NULL DEFAULT 0,
			service_state INT NOT NULL DEFAULT 0,
			is_final BOOLEAN NOT NULL DEFAULT false,
			failed BOOLEAN NOT NULL DEFAULT false,
			granted BOOLEAN NOT NULL DEFAULT false,
			expiry TIMESTAMPTZ,
			PRIMARY KEY (session_id, charging_key)
		);
	`, s.recordsTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("credit/postgres: ensure schema: %w", err)
	}
	return nil
}

// Save upserts the given snapshots in one transaction.
func (s *Store) Save(ctx context.Context, records []credit.RecordSnapshot) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("credit/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	q := fmt.Sprintf(`
		INSERT INTO %s (
			session_id, charging_key,
			used_tx, used_rx,
			allowed_total, allowed_tx, allowed_rx,
			reporting_tx, reporting_rx,
			reported_tx, reported_rx,
			reauth_state, service_state,
			is_final, failed, granted, expiry
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (session_id, charging_key) DO UPDATE SET
			used_tx = EXCLUDED.used_tx,
			used_rx = EXCLUDED.used_rx,
			allowed_total = EXCLUDED.allowed_total,
			allowed_tx = EXCLUDED.allowed_tx,
			allowed_rx = EXCLUDED.allowed_rx,
			reporting_tx = EXCLUDED.reporting_tx,
			reporting_rx = EXCLUDED.reporting_rx,
			reported_tx = EXCLUDED.reported_tx,
			reported_rx = EXCLUDED.reported_rx,
			reauth_state = EXCLUDED.reauth_state,
			service_state = EXCLUDED.service_state,
			is_final = EXCLUDED.is_final,
			failed = EXCLUDED.failed,
			granted = EXCLUDED.granted,
			expiry = EXCLUDED.expiry
	`, s.recordsTable())

	for _, r := range records {
		var expiry any
		if !r.Expiry.IsZero() {
			expiry = r.Expiry
		}
		_, err := tx.Exec(ctx, q,
			r.SessionID, int64(r.ChargingKey),
			int64(r.UsedTx), int64(r.UsedRx),
			int64(r.AllowedTotal), int64(r.AllowedTx), int64(r.AllowedRx),
			int64(r.ReportingTx), int64(r.ReportingRx),
			int64(r.ReportedTx), int64(r.ReportedRx),
			int(r.ReAuthState), int(r.ServiceState),
			r.IsFinal, r.Failed, r.Granted, expiry,
		)
		if err != nil {
			return fmt.Errorf("credit/postgres: upsert %s/%d: %w", r.SessionID, r.ChargingKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("credit/postgres: commit: %w", err)
	}
	return nil
}

// Load returns all persisted snapshots.
func (s *Store) Load(ctx context.Context) ([]credit.RecordSnapshot, error) {
	q := fmt.Sprintf(`
		SELECT session_id, charging_key,
			used_tx, used_rx,
			allowed_total, allowed_tx, allowed_rx,
			reporting_tx, reporting_rx,
			reported_tx, reported_rx,
			reauth_state, service_state,
			is_final, failed, granted, expiry
		FROM %s
	`, s.recordsTable())

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("credit/postgres: load: %w", err)
	}
	defer rows.Close()

	var out []credit.RecordSnapshot
	for rows.Next() {
		var (
			r                         credit.RecordSnapshot
			chargingKey               int64
			usedTx, usedRx            int64
			allTotal, allTx, allRx    int64
			repingTx, repingRx        int64
			repedTx, repedRx          int64
			reauthState, serviceState int
			expiry                    *time.Time
		)
		err := rows.Scan(
			&r.SessionID, &chargingKey,
			&usedTx, &usedRx,
			&allTotal, &allTx, &allRx,
			&repingTx, &repingRx,
			&repedTx, &repedRx,
			&reauthState, &serviceState,
			&r.IsFinal, &r.Failed, &r.Granted, &expiry,
		)
		if err != nil {
			return nil, fmt.Errorf("credit/postgres: scan: %w", err)
		}
		if expiry != nil {
			r.Expiry = *expiry
		}
		r.ChargingKey = uint32(chargingKey)
		r.UsedTx = uint64(usedTx)
		r.UsedRx = uint64(usedRx)
		r.AllowedTotal = uint64(allTotal)
		r.AllowedTx = uint64(allTx)
		r.AllowedRx = uint64(allRx)
		r.ReportingTx = uint64(repingTx)
		r.ReportingRx = uint64(repingRx)
		r.ReportedTx = uint64(repedTx)
		r.ReportedRx = uint64(repedRx)
		r.ReAuthState = credit.ReAuthState(reauthState)
		r.ServiceState = credit.ServiceState(serviceState)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credit/postgres: load rows: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot for one record.
func (s *Store) Delete(ctx context.Context, sessionID string, chargingKey uint32) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1 AND charging_key = $2`, s.recordsTable())
	_, err := s.pool.Exec(ctx, q, sessionID, int64(chargingKey))
	if err != nil {
		return fmt.Errorf("credit/postgres: delete: %w", err)
	}
	return nil
}
