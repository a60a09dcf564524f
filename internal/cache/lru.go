// internal/cache/lru.go
//
// Tiny LRU cache with per-entry expiry, used as the in-memory fallback
// for the idempotency store when redis is unavailable.  No external deps;
// good for a few thousand entries.
package cache

import (
	"container/list"
	"time"
)

// LRU is a non-generic least-recently-used cache with optional TTLs.
// Keys must be comparable; values can be any.  Not safe for concurrent
// use; callers hold their own lock.
type LRU struct {
	cap  int
	ll   *list.List
	dict map[any]*list.Element
}

type pair struct {
	key any
	val any
	exp time.Time // zero → never expires
}

// New returns an LRU with the given capacity.  Panics on cap < 1.
func New(capacity int) *LRU {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU{
		cap:  capacity,
		ll:   list.New(),
		dict: make(map[any]*list.Element, capacity),
	}
}

// Get retrieves a value and marks it MRU.  Expired entries are evicted on
// access and reported as a miss.
func (c *LRU) Get(key any) (val any, ok bool) {
	ele, hit := c.dict[key]
	if !hit {
		return nil, false
	}
	p := ele.Value.(pair)
	if !p.exp.IsZero() && time.Now().After(p.exp) {
		c.ll.Remove(ele)
		delete(c.dict, key)
		return nil, false
	}
	c.ll.MoveToFront(ele)
	return p.val, true
}

// Add inserts or updates a value.  ttl <= 0 means no expiry.
func (c *LRU) Add(key, val any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	if ele, hit := c.dict[key]; hit {
		ele.Value = pair{key, val, exp}
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(pair{key, val, exp})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.dict, last.Value.(pair).key)
	}
}

// Len reports current size.
func (c *LRU) Len() int { return c.ll.Len() }
