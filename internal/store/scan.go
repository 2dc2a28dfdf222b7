package store

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"basegraph.app/docwatch/internal/model"
)

const documentColumns = `owner_id, token, notify_target, state, title,
	baseline_modified_at, baseline_modified_by,
	last_observed_modified_at, last_observed_modified_by,
	last_notified_at, last_polled_at, pending_change,
	consecutive_errors, consecutive_permanent_errors, last_error,
	created_at, updated_at`

func scanDocument(row pgx.Row) (model.TrackedDocument, error) {
	var (
		doc                                                 model.TrackedDocument
		state                                               string
		baselineAt, observedAt, lastNotifiedAt, lastPolledAt *time.Time
	)
	err := row.Scan(
		&doc.OwnerID, &doc.Token, &doc.NotifyTarget, &state, &doc.Title,
		&baselineAt, &doc.BaselineModifiedBy,
		&observedAt, &doc.LastObservedModifiedBy,
		&lastNotifiedAt, &lastPolledAt, &doc.PendingChange,
		&doc.ConsecutiveErrors, &doc.ConsecutivePermanentErrors, &doc.LastError,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrackedDocument{}, ErrNotFound
		}
		return model.TrackedDocument{}, err
	}

	doc.State = model.DocumentState(state)
	doc.BaselineModifiedAt = deref(baselineAt)
	doc.LastObservedModifiedAt = deref(observedAt)
	doc.LastNotifiedAt = deref(lastNotifiedAt)
	doc.LastPolledAt = deref(lastPolledAt)
	return doc, nil
}

func scanDocuments(rows pgx.Rows) ([]model.TrackedDocument, error) {
	defer rows.Close()

	var docs []model.TrackedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
