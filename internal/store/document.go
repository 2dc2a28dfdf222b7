package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/docwatch/core/db"
	"basegraph.app/docwatch/internal/model"
)

type documentStore struct {
	db *db.DB
}

func newDocumentStore(database *db.DB) DocumentStore {
	return &documentStore{db: database}
}

func (s *documentStore) Create(ctx context.Context, doc *model.TrackedDocument) error {
	if doc.State == "" {
		doc.State = model.DocumentStatePending
	}

	return s.db.WithOwnerTx(ctx, doc.OwnerID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tracked_documents (owner_id, token, notify_target, state, title)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+documentColumns,
			doc.OwnerID, doc.Token, doc.NotifyTarget, string(doc.State), doc.Title,
		)
		created, err := scanDocument(row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("inserting document: %w", err)
		}
		*doc = created
		return nil
	})
}

func (s *documentStore) Get(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	var doc model.TrackedDocument
	err := s.db.WithOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `
			SELECT `+documentColumns+`
			FROM tracked_documents
			WHERE owner_id = $1 AND token = $2`,
			ownerID, token,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *documentStore) ListByOwner(ctx context.Context, ownerID string) ([]model.TrackedDocument, error) {
	var docs []model.TrackedDocument
	err := s.db.WithOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+documentColumns+`
			FROM tracked_documents
			WHERE owner_id = $1
			ORDER BY created_at, token`,
			ownerID,
		)
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		docs, err = scanDocuments(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Pause is idempotent: pausing a paused document returns it unchanged.
func (s *documentStore) Pause(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	var doc model.TrackedDocument
	err := s.db.WithOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `
			UPDATE tracked_documents
			SET state = 'paused', updated_at = now()
			WHERE owner_id = $1 AND token = $2
			RETURNING `+documentColumns,
			ownerID, token,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Resume moves a paused document back to polling with its baseline intact.
// A document that was never notified returns to pending so its first poll
// still produces the new-document notification. Resuming a pollable
// document is a no-op.
func (s *documentStore) Resume(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	var doc model.TrackedDocument
	err := s.db.WithOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, `
			UPDATE tracked_documents
			SET state = CASE WHEN last_notified_at IS NULL THEN 'pending' ELSE 'active' END,
				consecutive_errors = 0,
				consecutive_permanent_errors = 0,
				last_error = '',
				updated_at = now()
			WHERE owner_id = $1 AND token = $2 AND state = 'paused'
			RETURNING `+documentColumns,
			ownerID, token,
		))
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		doc, err = scanDocument(tx.QueryRow(ctx, `
			SELECT `+documentColumns+`
			FROM tracked_documents
			WHERE owner_id = $1 AND token = $2`,
			ownerID, token,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes the document. Its change events stay in the audit log.
func (s *documentStore) Delete(ctx context.Context, ownerID, token string) error {
	return s.db.WithOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM tracked_documents
			WHERE owner_id = $1 AND token = $2`,
			ownerID, token,
		)
		if err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
