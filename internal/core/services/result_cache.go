package services

import (
	"sync"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// ResultCache keeps the last successful function response of each session
// so a later send_message can attach it. Only the most recently used
// sessions are kept.
type ResultCache struct {
	mu         sync.Mutex
	results    map[domain.SessionID]domain.FunctionResponse
	order      []domain.SessionID // LRU order, most recent last
	maxEntries int
}

// NewResultCache creates a cache holding at most maxEntries sessions.
func NewResultCache(maxEntries int) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &ResultCache{
		results:    make(map[domain.SessionID]domain.FunctionResponse, maxEntries),
		order:      make([]domain.SessionID, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Put replaces the cached response for the session.
func (c *ResultCache) Put(id domain.SessionID, resp domain.FunctionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[id] = resp
	c.removeLocked(id)
	c.order = append(c.order, id)
	for len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.results, oldest)
	}
}

// Take returns and removes the cached response.
func (c *ResultCache) Take(id domain.SessionID) (domain.FunctionResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.results[id]
	if ok {
		delete(c.results, id)
		c.removeLocked(id)
	}
	return resp, ok
}

// Len reports how many sessions currently hold a result.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *ResultCache) removeLocked(id domain.SessionID) {
	for i, sid := range c.order {
		if sid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
