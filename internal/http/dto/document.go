package dto

import (
	"time"

	"basegraph.app/docwatch/internal/model"
)

type WatchRequest struct {
	Token        string `json:"token" binding:"required,max=512"`
	NotifyTarget string `json:"notify_target" binding:"required,max=2048"`
}

type DocumentResponse struct {
	Token                  string     `json:"token"`
	NotifyTarget           string     `json:"notify_target"`
	State                  string     `json:"state"`
	Title                  string     `json:"title,omitempty"`
	BaselineModifiedAt     *time.Time `json:"baseline_modified_at,omitempty"`
	BaselineModifiedBy     string     `json:"baseline_modified_by,omitempty"`
	LastObservedModifiedAt *time.Time `json:"last_observed_modified_at,omitempty"`
	LastObservedModifiedBy string     `json:"last_observed_modified_by,omitempty"`
	LastNotifiedAt         *time.Time `json:"last_notified_at,omitempty"`
	LastPolledAt           *time.Time `json:"last_polled_at,omitempty"`
	PendingChange          bool       `json:"pending_change"`
	ConsecutiveErrors      int        `json:"consecutive_errors"`
	LastError              string     `json:"last_error,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type ListDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type MetadataResponse struct {
	Token      string    `json:"token"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by"`
	FetchedAt  time.Time `json:"fetched_at"`
}

type ChangeEventResponse struct {
	ID         int64     `json:"id,string"`
	Kind       string    `json:"kind"`
	ObservedAt time.Time `json:"observed_at"`
	ObservedBy string    `json:"observed_by"`
	Debounced  bool      `json:"debounced"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ListEventsResponse struct {
	Events []ChangeEventResponse `json:"events"`
}

func ToDocumentResponse(doc *model.TrackedDocument) DocumentResponse {
	return DocumentResponse{
		Token:                  doc.Token,
		NotifyTarget:           doc.NotifyTarget,
		State:                  string(doc.State),
		Title:                  doc.Title,
		BaselineModifiedAt:     optionalTime(doc.BaselineModifiedAt),
		BaselineModifiedBy:     doc.BaselineModifiedBy,
		LastObservedModifiedAt: optionalTime(doc.LastObservedModifiedAt),
		LastObservedModifiedBy: doc.LastObservedModifiedBy,
		LastNotifiedAt:         optionalTime(doc.LastNotifiedAt),
		LastPolledAt:           optionalTime(doc.LastPolledAt),
		PendingChange:          doc.PendingChange,
		ConsecutiveErrors:      doc.ConsecutiveErrors,
		LastError:              doc.LastError,
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
	}
}

func ToMetadataResponse(md model.Metadata) MetadataResponse {
	return MetadataResponse{
		Token:      md.Token,
		Title:      md.Title,
		URL:        md.URL,
		ModifiedAt: md.ModifiedAt,
		ModifiedBy: md.ModifiedBy,
		FetchedAt:  md.FetchedAt,
	}
}

func ToChangeEventResponse(e model.ChangeEvent) ChangeEventResponse {
	return ChangeEventResponse{
		ID:         e.ID,
		Kind:       string(e.Kind),
		ObservedAt: e.ObservedAt,
		ObservedBy: e.ObservedBy,
		Debounced:  e.Debounced,
		RecordedAt: e.RecordedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
