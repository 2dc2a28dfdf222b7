// Package detector decides whether freshly fetched metadata warrants a
// notification. It performs no I/O.
package detector

import (
	"time"

	"basegraph.app/docwatch/internal/model"
)

// Decide compares observed metadata with the document's notification
// baseline, never with the previous poll, so repeated polls of one unnotified
// edit always yield the same decision until the debounce window elapses.
//
// A document with no baseline (pending) always yields FirstTracking, which is
// never debounced.
func Decide(observed model.Metadata, doc model.TrackedDocument, now time.Time, window time.Duration) model.Decision {
	if !doc.HasBaseline() {
		return model.FirstTracking()
	}

	if observed.SameVersion(doc.BaselineModifiedAt, doc.BaselineModifiedBy) {
		return model.NoChange()
	}

	kind := model.ChangeKindTimeUpdated
	if observed.ModifiedBy != doc.BaselineModifiedBy {
		kind = model.ChangeKindUserChanged
	}

	if now.Sub(doc.LastNotifiedAt) >= window {
		return model.Notify(kind)
	}
	return model.Debounced(kind)
}

// Apply returns doc as it looks after the observation is committed. It is the
// reference for the store's CommitObservation SQL, which the Postgres store
// tests check against it, and backs the in-memory stores used in tests.
func Apply(doc model.TrackedDocument, obs model.Observation) model.TrackedDocument {
	md := obs.Metadata
	now := obs.PolledAt
	doc.LastObservedModifiedAt = md.ModifiedAt
	doc.LastObservedModifiedBy = md.ModifiedBy
	doc.LastPolledAt = now
	doc.ConsecutiveErrors = 0
	doc.ConsecutivePermanentErrors = 0
	doc.LastError = ""
	if md.Title != "" {
		doc.Title = md.Title
	}

	if obs.Notified {
		doc.BaselineModifiedAt = md.ModifiedAt
		doc.BaselineModifiedBy = md.ModifiedBy
		doc.LastNotifiedAt = now
		if doc.State == model.DocumentStatePending {
			doc.State = model.DocumentStateActive
		}
	}

	doc.PendingChange = doc.State == model.DocumentStatePending ||
		!md.SameVersion(doc.BaselineModifiedAt, doc.BaselineModifiedBy)
	return doc
}
