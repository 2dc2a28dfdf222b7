package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Row-level security does not apply to superusers or roles with BYPASSRLS,
// so the service must connect as an ordinary role that owns the tables.
var migrations = []string{
	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS tracked_documents (
		owner_id                     TEXT        NOT NULL,
		token                        TEXT        NOT NULL,
		notify_target                TEXT        NOT NULL,
		state                        TEXT        NOT NULL DEFAULT 'pending',
		title                        TEXT        NOT NULL DEFAULT '',
		baseline_modified_at         TIMESTAMPTZ,
		baseline_modified_by         TEXT        NOT NULL DEFAULT '',
		last_observed_modified_at    TIMESTAMPTZ,
		last_observed_modified_by    TEXT        NOT NULL DEFAULT '',
		last_notified_at             TIMESTAMPTZ,
		last_polled_at               TIMESTAMPTZ,
		pending_change               BOOLEAN     NOT NULL DEFAULT FALSE,
		consecutive_errors           INTEGER     NOT NULL DEFAULT 0,
		consecutive_permanent_errors INTEGER     NOT NULL DEFAULT 0,
		last_error                   TEXT        NOT NULL DEFAULT '',
		created_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner_id, token),
		CONSTRAINT tracked_documents_state_check CHECK (state IN ('pending', 'active', 'paused'))
	)`,
	/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS tracked_documents_pollable_idx
		ON tracked_documents (state) WHERE state IN ('pending', 'active')`,

	// Append-only audit log. No foreign key: events outlive their document.
	/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS change_events (
		id          BIGINT      PRIMARY KEY,
		owner_id    TEXT        NOT NULL,
		token       TEXT        NOT NULL,
		kind        TEXT        NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		observed_by TEXT        NOT NULL DEFAULT '',
		debounced   BOOLEAN     NOT NULL DEFAULT FALSE,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT change_events_kind_check CHECK (kind IN ('new_document', 'time_updated', 'user_changed'))
	)`,
	/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS change_events_observation_uq
		ON change_events (owner_id, token, observed_at, observed_by, debounced)`,
	/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS change_events_token_idx
		ON change_events (owner_id, token, observed_at DESC)`,

	// Append-only is enforced in the database, not only by the absence of
	// UPDATE statements in the application.
	/*language=postgresql*/ `CREATE OR REPLACE FUNCTION change_events_immutable() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'change_events is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	/*language=postgresql*/ `DROP TRIGGER IF EXISTS change_events_no_update ON change_events`,
	/*language=postgresql*/ `CREATE TRIGGER change_events_no_update
		BEFORE UPDATE OR DELETE ON change_events
		FOR EACH ROW EXECUTE FUNCTION change_events_immutable()`,

	/*language=postgresql*/ `ALTER TABLE tracked_documents ENABLE ROW LEVEL SECURITY`,
	/*language=postgresql*/ `ALTER TABLE tracked_documents FORCE ROW LEVEL SECURITY`,
	/*language=postgresql*/ `ALTER TABLE change_events ENABLE ROW LEVEL SECURITY`,
	/*language=postgresql*/ `ALTER TABLE change_events FORCE ROW LEVEL SECURITY`,
	/*language=postgresql*/ `DROP POLICY IF EXISTS tracked_documents_owner ON tracked_documents`,
	/*language=postgresql*/ `CREATE POLICY tracked_documents_owner ON tracked_documents
		USING (
			current_setting('docwatch.privileged', true) = 'on'
			OR owner_id = current_setting('docwatch.owner_id', true)
		)
		WITH CHECK (
			current_setting('docwatch.privileged', true) = 'on'
			OR owner_id = current_setting('docwatch.owner_id', true)
		)`,
	/*language=postgresql*/ `DROP POLICY IF EXISTS change_events_owner ON change_events`,
	/*language=postgresql*/ `CREATE POLICY change_events_owner ON change_events
		USING (
			current_setting('docwatch.privileged', true) = 'on'
			OR owner_id = current_setting('docwatch.owner_id', true)
		)
		WITH CHECK (
			current_setting('docwatch.privileged', true) = 'on'
			OR owner_id = current_setting('docwatch.owner_id', true)
		)`,
}

// Migrate creates or updates the schema. It is idempotent and safe to run
// from several processes at start-up; concurrent runs serialize on an
// advisory lock.
func (db *DB) Migrate(ctx context.Context) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquiring migration lock: %w", err)
		}
		for i, stmt := range migrations {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration %d: %w", i, err)
			}
		}
		return nil
	})
}

const migrationLockKey int64 = 0x646f6377_01
