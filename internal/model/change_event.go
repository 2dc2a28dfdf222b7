package model

import "time"

type ChangeKind string

const (
	ChangeKindNewDocument ChangeKind = "new_document"
	ChangeKindTimeUpdated ChangeKind = "time_updated"
	ChangeKindUserChanged ChangeKind = "user_changed"
)

// ChangeEvent is an append-only audit record written for every detected
// difference from the baseline, whether or not a notification fired.
type ChangeEvent struct {
	ID         int64
	OwnerID    string
	Token      string
	Kind       ChangeKind
	ObservedAt time.Time
	ObservedBy string
	Debounced  bool
	RecordedAt time.Time
}
