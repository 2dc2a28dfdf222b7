package model

import "time"

type DocumentState string

const (
	DocumentStatePending DocumentState = "pending"
	DocumentStateActive  DocumentState = "active"
	DocumentStatePaused  DocumentState = "paused"
	// DocumentStateDeleted is never persisted: deleting removes the row.
	DocumentStateDeleted DocumentState = "deleted"
)

// Pollable reports whether the poller should fetch the document.
func (s DocumentState) Pollable() bool {
	return s == DocumentStatePending || s == DocumentStateActive
}

// DocumentKey identifies a tracked document. Tokens are unique per owner,
// not globally.
type DocumentKey struct {
	OwnerID string
	Token   string
}

// TrackedDocument is one watched resource.
//
// Baseline fields hold the metadata as of the last notification accepted for
// delivery; they are the only comparison point for change detection.
// LastObserved fields are overwritten on every successful poll.
type TrackedDocument struct {
	OwnerID      string
	Token        string
	NotifyTarget string
	State        DocumentState
	Title        string

	BaselineModifiedAt time.Time
	BaselineModifiedBy string

	LastObservedModifiedAt time.Time
	LastObservedModifiedBy string

	LastNotifiedAt time.Time
	LastPolledAt   time.Time

	// PendingChange is true iff LastObserved differs from Baseline.
	PendingChange bool

	ConsecutiveErrors          int
	ConsecutivePermanentErrors int
	LastError                  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d TrackedDocument) Key() DocumentKey {
	return DocumentKey{OwnerID: d.OwnerID, Token: d.Token}
}

// HasBaseline reports whether a notification was ever accepted for d.
func (d TrackedDocument) HasBaseline() bool {
	return d.State != DocumentStatePending
}

// Metadata is the upstream view of a document at fetch time.
type Metadata struct {
	Token      string    `json:"token"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// SameVersion compares the fields that define a document revision.
func (m Metadata) SameVersion(modifiedAt time.Time, modifiedBy string) bool {
	return m.ModifiedAt.Equal(modifiedAt) && m.ModifiedBy == modifiedBy
}
