package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/docwatch/common/id"
	"basegraph.app/docwatch/core/db"
	"basegraph.app/docwatch/internal/model"
)

type pollStore struct {
	db *db.DB
}

func newPollStore(database *db.DB) PollStore {
	return &pollStore{db: database}
}

// LoadActive returns every pollable document across all owners, least
// recently polled first.
func (s *pollStore) LoadActive(ctx context.Context) ([]model.TrackedDocument, error) {
	var docs []model.TrackedDocument
	err := s.db.WithPrivilegedTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+documentColumns+`
			FROM tracked_documents
			WHERE state IN ('pending', 'active')
			ORDER BY last_polled_at NULLS FIRST, owner_id, token`)
		if err != nil {
			return fmt.Errorf("loading pollable documents: %w", err)
		}
		docs, err = scanDocuments(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// CommitObservation applies one successful poll atomically: the document
// update and, for any difference from the baseline, the change event. The
// baseline only advances when obs.Notified is set.
//
// Re-committing the same observation after a crash is harmless: the event
// insert is keyed on the observation and skipped on conflict.
//
// Returns ErrNotFound when the document was paused or deleted after it was
// loaded; the observation is dropped.
func (s *pollStore) CommitObservation(ctx context.Context, key model.DocumentKey, obs model.Observation) (*model.TrackedDocument, error) {
	md := obs.Metadata
	var doc model.TrackedDocument
	err := s.db.WithPrivilegedTx(ctx, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `
			UPDATE tracked_documents
			SET last_observed_modified_at = $3,
				last_observed_modified_by = $4,
				title = CASE WHEN $5::text <> '' THEN $5::text ELSE title END,
				last_polled_at = $6,
				consecutive_errors = 0,
				consecutive_permanent_errors = 0,
				last_error = '',
				baseline_modified_at = CASE WHEN $7::boolean THEN $3 ELSE baseline_modified_at END,
				baseline_modified_by = CASE WHEN $7::boolean THEN $4 ELSE baseline_modified_by END,
				last_notified_at = CASE WHEN $7::boolean THEN $6 ELSE last_notified_at END,
				state = CASE WHEN $7::boolean AND state = 'pending' THEN 'active' ELSE state END,
				pending_change = NOT $7::boolean AND (
					state = 'pending'
					OR baseline_modified_at IS DISTINCT FROM $3
					OR baseline_modified_by <> $4
				),
				updated_at = now()
			WHERE owner_id = $1 AND token = $2 AND state IN ('pending', 'active')
			RETURNING `+documentColumns,
			key.OwnerID, key.Token,
			md.ModifiedAt, md.ModifiedBy, md.Title,
			obs.PolledAt, obs.Notified,
		))
		if err != nil {
			return err
		}

		if !obs.Decision.IsChange() {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO change_events (id, owner_id, token, kind, observed_at, observed_by, debounced, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (owner_id, token, observed_at, observed_by, debounced) DO NOTHING`,
			id.New(), key.OwnerID, key.Token, string(obs.Decision.Kind),
			md.ModifiedAt, md.ModifiedBy,
			obs.Decision.Action == model.DecisionDebounced,
			obs.PolledAt,
		)
		if err != nil {
			return fmt.Errorf("appending change event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// RecordFetchError bumps the error counters. A transient failure resets the
// permanent streak, so only uninterrupted permanent failures lead to an
// auto-pause.
func (s *pollStore) RecordFetchError(ctx context.Context, key model.DocumentKey, failure model.FetchFailure) (*model.TrackedDocument, error) {
	var doc model.TrackedDocument
	err := s.db.WithPrivilegedTx(ctx, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `
			UPDATE tracked_documents
			SET consecutive_errors = consecutive_errors + 1,
				consecutive_permanent_errors = CASE WHEN $3::boolean THEN consecutive_permanent_errors + 1 ELSE 0 END,
				last_error = $4,
				last_polled_at = $5,
				updated_at = now()
			WHERE owner_id = $1 AND token = $2 AND state IN ('pending', 'active')
			RETURNING `+documentColumns,
			key.OwnerID, key.Token, failure.Permanent, failure.Message, failure.At,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *pollStore) AutoPause(ctx context.Context, key model.DocumentKey, reason string) (*model.TrackedDocument, error) {
	var doc model.TrackedDocument
	err := s.db.WithPrivilegedTx(ctx, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `
			UPDATE tracked_documents
			SET state = 'paused', last_error = $3, updated_at = now()
			WHERE owner_id = $1 AND token = $2 AND state IN ('pending', 'active')
			RETURNING `+documentColumns,
			key.OwnerID, key.Token, reason,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
