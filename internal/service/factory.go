package service

import (
	"basegraph.app/docwatch/internal/store"
)

type Services struct {
	stores  *store.Stores
	fetcher Fetcher
	poller  PollerStatus
	queue   Pinger
}

func NewServices(stores *store.Stores, fetcher Fetcher, poller PollerStatus, queue Pinger) *Services {
	return &Services{
		stores:  stores,
		fetcher: fetcher,
		poller:  poller,
		queue:   queue,
	}
}

func (s *Services) Watches() WatchService {
	return NewWatchService(s.stores.Documents(), s.stores.ChangeEvents(), s.fetcher)
}

func (s *Services) Health() HealthService {
	return NewHealthService(s.poller, s.stores, s.queue)
}
