package metadata

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"basegraph.app/docwatch/internal/model"
)

// Cache holds recently fetched metadata. It is advisory: a miss is always
// safe, and entries are never treated as authoritative state.
type Cache interface {
	Get(token string) (model.Metadata, bool)
	Set(token string, md model.Metadata)
	Expire(token string)
}

type lruCache struct {
	lru *expirable.LRU[string, model.Metadata]
}

// NewLRUCache returns a size-bounded cache whose entries expire after ttl.
func NewLRUCache(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 10000
	}
	return &lruCache{lru: expirable.NewLRU[string, model.Metadata](size, nil, ttl)}
}

func (c *lruCache) Get(token string) (model.Metadata, bool) {
	return c.lru.Get(token)
}

func (c *lruCache) Set(token string, md model.Metadata) {
	c.lru.Add(token, md)
}

func (c *lruCache) Expire(token string) {
	c.lru.Remove(token)
}

type nopCache struct{}

// NopCache disables caching.
func NopCache() Cache {
	return nopCache{}
}

func (nopCache) Get(string) (model.Metadata, bool) { return model.Metadata{}, false }
func (nopCache) Set(string, model.Metadata)        {}
func (nopCache) Expire(string)                     {}
