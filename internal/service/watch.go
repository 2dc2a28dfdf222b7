package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/docwatch/internal/metadata"
	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/store"
)

// Fetcher is satisfied by *metadata.Client.
type Fetcher interface {
	Fetch(ctx context.Context, token string) (model.Metadata, error)
}

// WatchService is the inbound interface for watch management. Every call is
// scoped to one owner.
type WatchService interface {
	Watch(ctx context.Context, ownerID, token, notifyTarget string) (*model.TrackedDocument, error)
	Unwatch(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	Resume(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	Delete(ctx context.Context, ownerID, token string) error
	CheckNow(ctx context.Context, ownerID, token string) (model.Metadata, error)
	ListWatched(ctx context.Context, ownerID string) ([]model.TrackedDocument, error)
	History(ctx context.Context, ownerID, token string, limit int) ([]model.ChangeEvent, error)
}

type watchService struct {
	docs    store.DocumentStore
	events  store.ChangeEventStore
	fetcher Fetcher
}

func NewWatchService(docs store.DocumentStore, events store.ChangeEventStore, fetcher Fetcher) WatchService {
	return &watchService{docs: docs, events: events, fetcher: fetcher}
}

// Watch starts tracking token for ownerID. A paused document is resumed
// with its retained baseline if the target matches; a pollable one is
// rejected. New documents are
// probed upstream first so a typo fails here instead of in the poller.
func (s *watchService) Watch(ctx context.Context, ownerID, token, notifyTarget string) (*model.TrackedDocument, error) {
	token = strings.TrimSpace(token)
	notifyTarget = strings.TrimSpace(notifyTarget)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if notifyTarget == "" {
		return nil, ErrInvalidTarget
	}

	existing, err := s.docs.Get(ctx, ownerID, token)
	switch {
	case err == nil:
		if existing.State.Pollable() {
			return nil, ErrAlreadyWatched
		}
		if existing.NotifyTarget != notifyTarget {
			return nil, ErrTargetMismatch
		}
		doc, err := s.docs.Resume(ctx, ownerID, token)
		if err != nil {
			return nil, fmt.Errorf("resuming paused document: %w", err)
		}
		slog.InfoContext(ctx, "paused document re-watched", "state", doc.State)
		return doc, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("looking up document: %w", err)
	}

	md, err := s.probe(ctx, token)
	if err != nil {
		return nil, err
	}

	doc := &model.TrackedDocument{
		OwnerID:      ownerID,
		Token:        token,
		NotifyTarget: notifyTarget,
		State:        model.DocumentStatePending,
		Title:        md.Title,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyWatched
		}
		return nil, fmt.Errorf("creating document: %w", err)
	}

	slog.InfoContext(ctx, "document watched", "title", doc.Title)
	return doc, nil
}

func (s *watchService) Unwatch(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	doc, err := s.docs.Pause(ctx, ownerID, token)
	if err != nil {
		return nil, mapNotWatched(err, "pausing document")
	}
	return doc, nil
}

func (s *watchService) Resume(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	doc, err := s.docs.Resume(ctx, ownerID, token)
	if err != nil {
		return nil, mapNotWatched(err, "resuming document")
	}
	return doc, nil
}

func (s *watchService) Delete(ctx context.Context, ownerID, token string) error {
	if err := s.docs.Delete(ctx, ownerID, token); err != nil {
		return mapNotWatched(err, "deleting document")
	}
	return nil
}

// CheckNow reads current metadata through the shared cache. It never touches
// the stored baseline, so a check cannot swallow a pending notification.
func (s *watchService) CheckNow(ctx context.Context, ownerID, token string) (model.Metadata, error) {
	if _, err := s.docs.Get(ctx, ownerID, token); err != nil {
		return model.Metadata{}, mapNotWatched(err, "looking up document")
	}
	return s.probe(ctx, token)
}

func (s *watchService) ListWatched(ctx context.Context, ownerID string) ([]model.TrackedDocument, error) {
	docs, err := s.docs.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// History returns the audit log for token, including events recorded
// before the document was deleted.
func (s *watchService) History(ctx context.Context, ownerID, token string, limit int) ([]model.ChangeEvent, error) {
	events, err := s.events.ListByDocument(ctx, ownerID, token, limit)
	if err != nil {
		return nil, fmt.Errorf("listing change events: %w", err)
	}
	return events, nil
}

func (s *watchService) probe(ctx context.Context, token string) (model.Metadata, error) {
	md, err := s.fetcher.Fetch(ctx, token)
	if err == nil {
		return md, nil
	}

	switch {
	case metadata.IsNotFound(err):
		return model.Metadata{}, fmt.Errorf("%w: %w", ErrResourceNotFound, err)
	case metadata.IsForbidden(err):
		return model.Metadata{}, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case metadata.IsInvalid(err):
		return model.Metadata{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	default:
		return model.Metadata{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}

func mapNotWatched(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotWatched
	}
	return fmt.Errorf("%s: %w", op, err)
}
