package service_test

import (
	"context"

	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/store"
)

type mockDocumentStore struct {
	createFn func(ctx context.Context, doc *model.TrackedDocument) error
	getFn    func(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	listFn   func(ctx context.Context, ownerID string) ([]model.TrackedDocument, error)
	pauseFn  func(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	resumeFn func(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error)
	deleteFn func(ctx context.Context, ownerID, token string) error
}

func (m *mockDocumentStore) Create(ctx context.Context, doc *model.TrackedDocument) error {
	if m.createFn != nil {
		return m.createFn(ctx, doc)
	}
	return nil
}

func (m *mockDocumentStore) Get(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, token)
	}
	return nil, store.ErrNotFound
}

func (m *mockDocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]model.TrackedDocument, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockDocumentStore) Pause(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	if m.pauseFn != nil {
		return m.pauseFn(ctx, ownerID, token)
	}
	return nil, store.ErrNotFound
}

func (m *mockDocumentStore) Resume(ctx context.Context, ownerID, token string) (*model.TrackedDocument, error) {
	if m.resumeFn != nil {
		return m.resumeFn(ctx, ownerID, token)
	}
	return nil, store.ErrNotFound
}

func (m *mockDocumentStore) Delete(ctx context.Context, ownerID, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, token)
	}
	return store.ErrNotFound
}

type mockEventStore struct {
	listFn func(ctx context.Context, ownerID, token string, limit int) ([]model.ChangeEvent, error)
}

func (m *mockEventStore) ListByDocument(ctx context.Context, ownerID, token string, limit int) ([]model.ChangeEvent, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID, token, limit)
	}
	return nil, nil
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, token string) (model.Metadata, error)
	calls   int
}

func (m *mockFetcher) Fetch(ctx context.Context, token string) (model.Metadata, error) {
	m.calls++
	if m.fetchFn != nil {
		return m.fetchFn(ctx, token)
	}
	return model.Metadata{Token: token}, nil
}

type mockPoller struct {
	status  model.HealthStatus
	metrics model.PollCycleMetrics
}

func (m *mockPoller) HealthStatus() model.HealthStatus { return m.status }
func (m *mockPoller) Metrics() model.PollCycleMetrics  { return m.metrics }

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }
