package status

import (
	"container/list"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Snapshot is the monitor's most recent observation of one node.
type Snapshot struct {
	ID        string    `json:"id"`
	Healthy   bool      `json:"healthy"`
	Restarted bool      `json:"restarted"` // healed during this check
	CheckedAt time.Time `json:"checked_at"`
}

type entry struct {
	snap     Snapshot
	expireAt time.Time
}

// Cache keeps the latest Snapshot per node with a TTL and LRU eviction by entry count.
type Cache struct {
	mu   sync.Mutex
	data map[string]*list.Element
	ll   *list.List
	ttl  time.Duration
	cap  int
	now  func() time.Time
}

// NewCache returns a cache holding at most capacity entries. ttl <= 0 disables expiry.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cache{
		data: make(map[string]*list.Element),
		ll:   list.New(),
		ttl:  ttl,
		cap:  capacity,
		now:  time.Now,
	}
}

func (c *Cache) Put(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}

	if el, ok := c.data[s.ID]; ok {
		e := el.Value.(*entry)
		e.snap = s
		e.expireAt = exp
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry{snap: s, expireAt: exp})
		c.data[s.ID] = el
	}
	c.evictIfNeeded()
}

func (c *Cache) Get(id string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.data[id]
	if !ok {
		return Snapshot{}, false
	}
	e := el.Value.(*entry)
	if c.expired(e) {
		c.removeElement(el)
		return Snapshot{}, false
	}
	c.ll.MoveToFront(el)
	return e.snap, true
}

// Delete removes id and reports whether it was present.
func (c *Cache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.data[id]; ok {
		c.removeElement(el)
		return true
	}
	return false
}

// List returns the unexpired snapshots sorted by node ID.
func (c *Cache) List() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Snapshot, 0, len(c.data))
	for _, el := range c.data {
		e := el.Value.(*entry)
		if c.expired(e) {
			c.removeElement(el)
			continue
		}
		out = append(out, e.snap)
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Report records a monitor observation. It satisfies monitor.Reporter.
func (c *Cache) Report(_ context.Context, id string, healthy, restarted bool) error {
	c.Put(Snapshot{ID: id, Healthy: healthy, Restarted: restarted, CheckedAt: c.now()})
	return nil
}

func (c *Cache) expired(e *entry) bool {
	return !e.expireAt.IsZero() && c.now().After(e.expireAt)
}

func (c *Cache) evictIfNeeded() {
	for len(c.data) > c.cap && c.ll.Back() != nil {
		c.removeElement(c.ll.Back())
	}
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.data, e.snap.ID)
	c.ll.Remove(el)
}
