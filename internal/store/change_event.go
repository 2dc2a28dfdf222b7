package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/docwatch/core/db"
	"basegraph.app/docwatch/internal/model"
)

const defaultEventLimit = 50

type changeEventStore struct {
	db *db.DB
}

func newChangeEventStore(database *db.DB) ChangeEventStore {
	return &changeEventStore{db: database}
}

// ListByDocument returns the most recent events for one document, newest
// first. Events of deleted documents remain readable.
func (s *changeEventStore) ListByDocument(ctx context.Context, ownerID, token string, limit int) ([]model.ChangeEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}

	var events []model.ChangeEvent
	err := s.db.WithOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, owner_id, token, kind, observed_at, observed_by, debounced, recorded_at
			FROM change_events
			WHERE owner_id = $1 AND token = $2
			ORDER BY observed_at DESC, id DESC
			LIMIT $3`,
			ownerID, token, limit,
		)
		if err != nil {
			return fmt.Errorf("listing change events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e    model.ChangeEvent
				kind string
			)
			if err := rows.Scan(&e.ID, &e.OwnerID, &e.Token, &kind, &e.ObservedAt, &e.ObservedBy, &e.Debounced, &e.RecordedAt); err != nil {
				return fmt.Errorf("scanning change event: %w", err)
			}
			e.Kind = model.ChangeKind(kind)
			events = append(events, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
