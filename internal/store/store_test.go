package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/common/id"
	"basegraph.app/docwatch/internal/detector"
	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/store"
)

var _ = Describe("Postgres stores", func() {
	var (
		ctx    context.Context
		stores *store.Stores
		owner  string
		token  string
		key    model.DocumentKey
		t0     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = store.NewStores(testDB)
		owner = "owner-" + id.NewString()
		token = "doc-" + id.NewString()
		key = model.DocumentKey{OwnerID: owner, Token: token}
		t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

		Expect(stores.Documents().Create(ctx, &model.TrackedDocument{
			OwnerID:      owner,
			Token:        token,
			NotifyTarget: "https://hooks.example.com/a",
		})).To(Succeed())
	})

	observe := func(at time.Time, by string, decision model.Decision, notified bool, polledAt time.Time) *model.TrackedDocument {
		doc, err := stores.Poll().CommitObservation(ctx, key, model.Observation{
			Metadata: model.Metadata{Token: token, Title: "Design", ModifiedAt: at, ModifiedBy: by},
			Decision: decision,
			Notified: notified,
			PolledAt: polledAt,
		})
		Expect(err).NotTo(HaveOccurred())
		return doc
	}

	Describe("documents", func() {
		It("creates pending documents and rejects duplicates", func() {
			doc, err := stores.Documents().Get(ctx, owner, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.State).To(Equal(model.DocumentStatePending))
			Expect(doc.LastNotifiedAt.IsZero()).To(BeTrue())

			err = stores.Documents().Create(ctx, &model.TrackedDocument{OwnerID: owner, Token: token, NotifyTarget: "x"})
			Expect(err).To(MatchError(store.ErrConflict))
		})

		It("hides documents from other owners", func() {
			_, err := stores.Documents().Get(ctx, "someone-else", token)
			Expect(err).To(MatchError(store.ErrNotFound))

			docs, err := stores.Documents().ListByOwner(ctx, "someone-else")
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())

			Expect(stores.Documents().Delete(ctx, "someone-else", token)).To(MatchError(store.ErrNotFound))
		})

		It("pauses idempotently and resumes a never-notified document as pending", func() {
			doc, err := stores.Documents().Pause(ctx, owner, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.State).To(Equal(model.DocumentStatePaused))

			doc, err = stores.Documents().Pause(ctx, owner, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.State).To(Equal(model.DocumentStatePaused))

			doc, err = stores.Documents().Resume(ctx, owner, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.State).To(Equal(model.DocumentStatePending))
		})

		It("deletes the document but keeps its events", func() {
			observe(t0, "alice", model.FirstTracking(), true, t0.Add(time.Minute))

			Expect(stores.Documents().Delete(ctx, owner, token)).To(Succeed())
			_, err := stores.Documents().Get(ctx, owner, token)
			Expect(err).To(MatchError(store.ErrNotFound))

			events, err := stores.ChangeEvents().ListByDocument(ctx, owner, token, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})
	})

	Describe("observations", func() {
		It("advances the baseline only when notified", func() {
			doc := observe(t0, "alice", model.FirstTracking(), true, t0.Add(time.Minute))
			Expect(doc.State).To(Equal(model.DocumentStateActive))
			Expect(doc.BaselineModifiedAt).To(BeTemporally("==", t0))
			Expect(doc.PendingChange).To(BeFalse())

			t1 := t0.Add(2 * time.Minute)
			doc = observe(t1, "bob", model.Debounced(model.ChangeKindUserChanged), false, t0.Add(3*time.Minute))
			Expect(doc.BaselineModifiedAt).To(BeTemporally("==", t0))
			Expect(doc.BaselineModifiedBy).To(Equal("alice"))
			Expect(doc.LastObservedModifiedBy).To(Equal("bob"))
			Expect(doc.PendingChange).To(BeTrue())
		})

		It("keeps a pending document pending when the notification failed", func() {
			doc := observe(t0, "alice", model.FirstTracking(), false, t0.Add(time.Minute))
			Expect(doc.State).To(Equal(model.DocumentStatePending))
			Expect(doc.LastNotifiedAt.IsZero()).To(BeTrue())
			Expect(doc.PendingChange).To(BeTrue())
		})

		It("writes one event per observation even when committed twice", func() {
			observe(t0, "alice", model.FirstTracking(), true, t0.Add(time.Minute))
			observe(t0, "alice", model.FirstTracking(), true, t0.Add(time.Minute))

			events, err := stores.ChangeEvents().ListByDocument(ctx, owner, token, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Kind).To(Equal(model.ChangeKindNewDocument))
			Expect(events[0].Debounced).To(BeFalse())
		})

		It("commits the same transition as the in-memory reference", func() {
			doc, err := stores.Documents().Get(ctx, owner, token)
			Expect(err).NotTo(HaveOccurred())

			steps := []model.Observation{
				{Metadata: model.Metadata{Title: "Design", ModifiedAt: t0, ModifiedBy: "alice"}, Decision: model.FirstTracking(), Notified: false, PolledAt: t0.Add(time.Minute)},
				{Metadata: model.Metadata{Title: "Design", ModifiedAt: t0, ModifiedBy: "alice"}, Decision: model.FirstTracking(), Notified: true, PolledAt: t0.Add(2 * time.Minute)},
				{Metadata: model.Metadata{Title: "Design v2", ModifiedAt: t0.Add(3 * time.Minute), ModifiedBy: "bob"}, Decision: model.Debounced(model.ChangeKindUserChanged), PolledAt: t0.Add(4 * time.Minute)},
				{Metadata: model.Metadata{ModifiedAt: t0.Add(3 * time.Minute), ModifiedBy: "bob"}, Decision: model.Notify(model.ChangeKindUserChanged), Notified: true, PolledAt: t0.Add(20 * time.Minute)},
				{Metadata: model.Metadata{ModifiedAt: t0.Add(3 * time.Minute), ModifiedBy: "bob"}, Decision: model.NoChange(), PolledAt: t0.Add(25 * time.Minute)},
			}

			for i, obs := range steps {
				obs.Metadata.Token = token
				expected := detector.Apply(*doc, obs)

				doc, err = stores.Poll().CommitObservation(ctx, key, obs)
				Expect(err).NotTo(HaveOccurred())

				expected.CreatedAt = doc.CreatedAt
				expected.UpdatedAt = doc.UpdatedAt
				Expect(*doc).To(Equal(expected), "step %d", i)
			}
		})

		It("drops observations for paused documents", func() {
			_, err := stores.Documents().Pause(ctx, owner, token)
			Expect(err).NotTo(HaveOccurred())

			_, err = stores.Poll().CommitObservation(ctx, key, model.Observation{
				Metadata: model.Metadata{ModifiedAt: t0, ModifiedBy: "alice"},
				Decision: model.FirstTracking(),
				PolledAt: t0,
			})
			Expect(err).To(MatchError(store.ErrNotFound))

			docs, err := stores.Poll().LoadActive(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, d := range docs {
				Expect(d.Key()).NotTo(Equal(key))
			}
		})
	})

	Describe("fetch errors", func() {
		It("tracks the permanent streak separately", func() {
			fail := func(permanent bool) *model.TrackedDocument {
				doc, err := stores.Poll().RecordFetchError(ctx, key, model.FetchFailure{Permanent: permanent, Message: "boom", At: t0})
				Expect(err).NotTo(HaveOccurred())
				return doc
			}

			fail(true)
			doc := fail(true)
			Expect(doc.ConsecutivePermanentErrors).To(Equal(2))

			doc = fail(false)
			Expect(doc.ConsecutiveErrors).To(Equal(3))
			Expect(doc.ConsecutivePermanentErrors).To(Equal(0))

			doc, err := stores.Poll().AutoPause(ctx, key, "not found")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.State).To(Equal(model.DocumentStatePaused))
			Expect(doc.LastError).To(Equal("not found"))
		})
	})

	Describe("cycle lock", func() {
		It("is exclusive", func() {
			release, ok, err := stores.CycleLock().TryLock(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			_, ok, err = stores.CycleLock().TryLock(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			release()

			release, ok, err = stores.CycleLock().TryLock(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			release()
		})
	})
})
