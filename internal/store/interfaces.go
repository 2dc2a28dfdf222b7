package store

import (
	"context"
	"errors"

	"basegraph.app/docwatch/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// visible to the calling owner.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create collides with an existing row.
var ErrConflict = errors.New("conflict")

// DocumentStore is the owner-scoped contract used by user requests. Every
// method takes a mandatory ownerID; rows of other owners are invisible.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.TrackedDocument) error
	Get(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.TrackedDocument, error)
	Pause(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	Resume(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	Delete(ctx context.Context, ownerID, token string) error
}

// PollStore is the privileged contract used by the poller only. It spans
// all owners and must never be reachable from a user request path.
type PollStore interface {
	LoadActive(ctx context.Context) ([]model.TrackedDocument, error)
	CommitObservation(ctx context.Context, key model.DocumentKey, obs model.Observation) (*model.TrackedDocument, error)
	RecordFetchError(ctx context.Context, key model.DocumentKey, failure model.FetchFailure) (*model.TrackedDocument, error)
	AutoPause(ctx context.Context, key model.DocumentKey, reason string) (*model.TrackedDocument, error)
}

// ChangeEventStore reads the append-only audit log. Appends happen only
// inside CommitObservation.
type ChangeEventStore interface {
	ListByDocument(ctx context.Context, ownerID, token string, limit int) ([]model.ChangeEvent, error)
}
