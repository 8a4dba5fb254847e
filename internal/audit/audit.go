// Package audit implements a best-effort external log of Task/Reply/
// UserMessage envelopes, grounded on the teacher's reputation wallet's
// database/sql + lib/pq usage pattern (internal/reputation/wallet.go).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          UUID PRIMARY KEY,
	direction   TEXT NOT NULL,
	tab_id      INTEGER,
	payload     JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

// Sink records AuditRecords. The no-op sink (NoopSink) is used when
// AUDIT_DATABASE_URL is unset; recording never blocks or fails the caller
// visibly -- every error is logged and swallowed.
type Sink interface {
	Record(direction string, tabID int, payload any)
	Close() error
}

// NoopSink discards every record. It is the default Sink when no audit
// database is configured.
type NoopSink struct{}

func (NoopSink) Record(direction string, tabID int, payload any) {}
func (NoopSink) Close() error                                    { return nil }

// PostgresSink writes AuditRecords to a Postgres-compatible database via
// database/sql and lib/pq.
type PostgresSink struct {
	db      *sql.DB
	timeout time.Duration
}

// Open connects to dsn, creates the audit_log table if absent, and returns
// a ready PostgresSink. timeout bounds every insert (default 200ms per
// SPEC_FULL.md §5 if timeout <= 0).
func Open(dsn string, timeout time.Duration) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &PostgresSink{db: db, timeout: timeout}, nil
}

// Record inserts one audit_log row. It is fire-and-forget: any error
// (including a timeout) is logged and never returned, matching
// SPEC_FULL.md §7's AuditSinkUnavailable non-fatal error kind.
func (s *PostgresSink) Record(direction string, tabID int, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		slog.Error("audit: encode payload failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var tabIDArg any
	if tabID > 0 {
		tabIDArg = tabID
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, direction, tab_id, payload, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), direction, tabIDArg, encoded, time.Now().UTC(),
	)
	if err != nil {
		slog.Error("audit: insert failed, dropping record", "error", err, "direction", direction)
	}
}

// Close releases the underlying database connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
