package replay

import (
	"sync"

	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/logger"
)

// State is the lifecycle of one cache key.
type State int

const (
	// StateEmpty has no upstream subscription.
	StateEmpty State = iota
	// StateSubscribing has invoked the producer and waits for its first value.
	StateSubscribing
	// StateLive has delivered at least one value.
	StateLive
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	default:
		return "empty"
	}
}

// Cache multiplexes subscribers of the same key onto one upstream subscription and
// replays the latest value to late subscribers.
//
// Unsubscribing the last subscriber of a key keeps its upstream running so a quick
// re-subscription is served warm. Only Clear releases upstreams, ending every
// attached subscriber with a cache cleared error.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     logger.Logger
}

// NewCache creates an empty cache. A nil logger disables logging.
func NewCache(log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Cache{
		entries: make(map[string]*entry),
		log:     log,
	}
}

// Get returns a multicast observable for key. The producer runs when the first
// subscriber arrives while key has no upstream, and at most once per upstream.
func Get[T any](c *Cache, key string, producer func() Observable[T]) Observable[T] {
	return ObservableFunc[T](func(next func(T), fail func(error)) Subscription {
		sub := &subscriber{
			next: func(v any) {
				tv, _ := v.(T)
				next(tv)
			},
			fail:   fail,
			active: true,
		}

		for {
			e := c.entry(key)
			start, gen, ok := e.attach(sub)
			if !ok {
				// cleared between lookup and attach
				continue
			}
			if start {
				c.log.Debugf("replay cache subscribing upstream for %s", key)
				c.startUpstream(e, gen, func(emit func(any), failAll func(error)) Subscription {
					return producer().Subscribe(func(v T) { emit(v) }, failAll)
				})
			}
			sub.drain()
			return SubscriptionFunc(func() { e.detach(sub) })
		}
	})
}

// Clear releases the upstream of each key and forgets it. Without keys every entry
// is cleared. Attached subscribers receive an error matching errors.ErrCacheCleared
// and get nothing after it; subscribing again reads fresh data.
func (c *Cache) Clear(keys ...string) {
	c.mu.Lock()
	var cleared []*entry
	if len(keys) == 0 {
		for k, e := range c.entries {
			cleared = append(cleared, e)
			delete(c.entries, k)
		}
	} else {
		for _, k := range keys {
			if e, ok := c.entries[k]; ok {
				cleared = append(cleared, e)
				delete(c.entries, k)
			}
		}
	}
	c.mu.Unlock()

	for _, e := range cleared {
		e.close()
	}
	if len(cleared) > 0 {
		c.log.Debugf("replay cache cleared %d entries", len(cleared))
	}
}

// Len returns the number of keys currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// State returns the lifecycle state of key.
func (c *Cache) State(key string) State {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return StateEmpty
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (c *Cache) entry(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, subscribers: make(map[*subscriber]struct{})}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) startUpstream(e *entry, gen uint64, subscribe func(emit func(any), failAll func(error)) Subscription) {
	up := subscribe(
		func(v any) { e.emit(gen, v) },
		func(err error) {
			c.log.Warnf("replay cache upstream for %s failed: %v", e.key, err)
			e.fail(gen, err)
		},
	)

	e.mu.Lock()
	if e.closed || e.generation != gen {
		e.mu.Unlock()
		if up != nil {
			up.Unsubscribe()
		}
		return
	}
	e.upstream = up
	e.mu.Unlock()
}

type entry struct {
	key string

	mu          sync.Mutex
	state       State
	latest      any
	hasValue    bool
	subscribers map[*subscriber]struct{}
	upstream    Subscription
	generation  uint64
	closed      bool
}

// attach registers sub and queues the replayed value. start is true when the caller
// must subscribe upstream; ok is false when the entry was cleared.
func (e *entry) attach(sub *subscriber) (start bool, gen uint64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, 0, false
	}
	e.subscribers[sub] = struct{}{}
	if e.hasValue {
		sub.push(delivery{value: e.latest})
	}
	if e.state == StateEmpty {
		e.state = StateSubscribing
		return true, e.generation, true
	}
	return false, e.generation, true
}

func (e *entry) detach(sub *subscriber) {
	e.mu.Lock()
	delete(e.subscribers, sub)
	e.mu.Unlock()
	sub.cancel()
}

func (e *entry) emit(gen uint64, v any) {
	e.mu.Lock()
	if e.closed || e.generation != gen {
		e.mu.Unlock()
		return
	}
	e.latest = v
	e.hasValue = true
	e.state = StateLive
	subs := make([]*subscriber, 0, len(e.subscribers))
	for s := range e.subscribers {
		s.push(delivery{value: v})
		subs = append(subs, s)
	}
	e.mu.Unlock()

	for _, s := range subs {
		s.drain()
	}
}

// fail forwards err to every subscriber and resets the entry so the next subscriber
// invokes the producer again.
func (e *entry) fail(gen uint64, err error) {
	e.mu.Lock()
	if e.closed || e.generation != gen {
		e.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(e.subscribers))
	for s := range e.subscribers {
		s.push(delivery{err: err})
		s.seal()
		subs = append(subs, s)
	}
	e.subscribers = make(map[*subscriber]struct{})
	e.state = StateEmpty
	e.latest = nil
	e.hasValue = false
	e.generation++
	up := e.upstream
	e.upstream = nil
	e.mu.Unlock()

	if up != nil {
		up.Unsubscribe()
	}
	for _, s := range subs {
		s.drain()
	}
}

func (e *entry) close() {
	e.mu.Lock()
	e.closed = true
	e.generation++
	up := e.upstream
	e.upstream = nil
	subs := e.subscribers
	e.subscribers = make(map[*subscriber]struct{})
	e.state = StateEmpty
	e.mu.Unlock()

	for s := range subs {
		s.push(delivery{err: apperrors.NewCacheClearedError(e.key)})
		s.seal()
	}
	if up != nil {
		up.Unsubscribe()
	}
	for s := range subs {
		s.drain()
	}
}

type delivery struct {
	value any
	err   error
}

// subscriber serializes deliveries so each consumer sees values in upstream order,
// including when a callback re-enters the cache.
type subscriber struct {
	next func(any)
	fail func(error)

	mu       sync.Mutex
	queue    []delivery
	draining bool
	active   bool
	sealed   bool
}

func (s *subscriber) push(d delivery) {
	s.mu.Lock()
	if s.active && !s.sealed {
		s.queue = append(s.queue, d)
	}
	s.mu.Unlock()
}

// seal rejects further pushes but keeps queued deliveries.
func (s *subscriber) seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

func (s *subscriber) cancel() {
	s.mu.Lock()
	s.active = false
	s.queue = nil
	s.mu.Unlock()
}

func (s *subscriber) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 && s.active {
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		if d.err != nil {
			if s.fail != nil {
				s.fail(d.err)
			}
		} else if s.next != nil {
			s.next(d.value)
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}
