package model

import "time"

type NotificationKind string

const (
	NotificationNewDocument NotificationKind = NotificationKind(ChangeKindNewDocument)
	NotificationTimeUpdated NotificationKind = NotificationKind(ChangeKindTimeUpdated)
	NotificationUserChanged NotificationKind = NotificationKind(ChangeKindUserChanged)
	// NotificationAutoPaused tells the owner polling stopped after repeated
	// permanent fetch errors. It is not a change notification.
	NotificationAutoPaused NotificationKind = "auto_paused"
)

// Notification is the payload handed to the notifier.
type Notification struct {
	Token        string           `json:"token"`
	OwnerID      string           `json:"owner_id"`
	Kind         NotificationKind `json:"kind"`
	Title        string           `json:"title,omitempty"`
	ObservedAt   time.Time        `json:"observed_at"`
	ObservedBy   string           `json:"observed_by"`
	ErrorContext string           `json:"error_context,omitempty"`
}

func ChangeNotification(doc TrackedDocument, md Metadata, kind ChangeKind) Notification {
	title := md.Title
	if title == "" {
		title = doc.Title
	}
	return Notification{
		Token:      doc.Token,
		OwnerID:    doc.OwnerID,
		Kind:       NotificationKind(kind),
		Title:      title,
		ObservedAt: md.ModifiedAt,
		ObservedBy: md.ModifiedBy,
	}
}
