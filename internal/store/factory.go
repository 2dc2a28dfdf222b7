package store

import (
	"context"

	"basegraph.app/docwatch/core/db"
)

type Stores struct {
	db *db.DB
}

func NewStores(database *db.DB) *Stores {
	return &Stores{db: database}
}

func (s *Stores) Documents() DocumentStore {
	return newDocumentStore(s.db)
}

func (s *Stores) Poll() PollStore {
	return newPollStore(s.db)
}

func (s *Stores) ChangeEvents() ChangeEventStore {
	return newChangeEventStore(s.db)
}

func (s *Stores) CycleLock() *CycleLock {
	return NewCycleLock(s.db.Pool())
}

func (s *Stores) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
