// Package memory is an in-process DocumentStore with live listeners.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/dao/replay"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/firestore"
	"firestore-dao/internal/shared/logger"
)

// Store keeps documents in memory keyed by their full path. Listeners are notified
// synchronously by the goroutine performing the write.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]map[string]any
	listeners map[*listener]struct{}
	now       func() time.Time
	log       logger.Logger
}

var _ repository.DocumentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		docs:      make(map[string]map[string]any),
		listeners: make(map[*listener]struct{}),
		now:       time.Now,
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("memory-store")
	return s
}

// ReadDocument implements repository.DocumentStore.
func (s *Store) ReadDocument(path string) replay.Observable[*model.DocumentSnapshot] {
	path = normalize(path)
	return replay.ObservableFunc[*model.DocumentSnapshot](func(next func(*model.DocumentSnapshot), fail func(error)) replay.Subscription {
		l := &listener{
			matches: func(changed string) bool { return changed == path },
			deliver: func() { next(s.snapshot(path)) },
		}
		return s.listen(l)
	})
}

// ReadCollection implements repository.DocumentStore.
func (s *Store) ReadCollection(path string, build func(repository.Query) repository.Query) replay.Observable[*model.QuerySnapshot] {
	path = normalize(path)
	return replay.ObservableFunc[*model.QuerySnapshot](func(next func(*model.QuerySnapshot), fail func(error)) replay.Subscription {
		q := newQuery()
		if build != nil {
			if built, ok := build(q).(*Query); ok {
				q = built
			}
		}
		l := &listener{
			matches: func(changed string) bool { return firestore.ParentPath(changed) == path },
		}
		l.deliver = func() {
			snap, err := s.query(path, q)
			if err != nil {
				l.stop()
				if fail != nil {
					fail(err)
				}
				return
			}
			next(snap)
		}
		return s.listen(l)
	})
}

// WriteDocument implements repository.DocumentStore.
func (s *Store) WriteDocument(ctx context.Context, path string, fields map[string]any, opts model.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = normalize(path)
	if !firestore.IsDocumentPath(path) {
		return apperrors.NewInfrastructureError("not a document path: " + path).WithCode("INVALID_PATH")
	}
	resolved := model.ResolveServerValues(fields, s.now())

	s.mu.Lock()
	current, exists := s.docs[path]
	if opts.Merge && exists {
		s.docs[path] = merge(current, resolved)
	} else {
		s.docs[path] = deepCopy(resolved)
	}
	s.mu.Unlock()

	s.log.Debugf("wrote %s (merge=%t)", path, opts.Merge)
	s.notify(path)
	return nil
}

// AddDocument implements repository.DocumentStore.
func (s *Store) AddDocument(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	id := NewID()
	if err := s.WriteDocument(ctx, firestore.BuildDocumentPath(normalize(collectionPath), id), fields, model.WriteOptions{}); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteDocument implements repository.DocumentStore.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = normalize(path)

	s.mu.Lock()
	_, existed := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()

	if existed {
		s.notify(path)
	}
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Listeners returns the number of open listeners.
func (s *Store) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// NewID returns a 20 character document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func (s *Store) snapshot(path string) *model.DocumentSnapshot {
	s.mu.RLock()
	fields, ok := s.docs[path]
	if ok {
		fields = deepCopy(fields)
	}
	s.mu.RUnlock()

	return &model.DocumentSnapshot{
		ID:     firestore.DocumentID(path),
		Path:   path,
		Exists: ok,
		Fields: fields,
	}
}

func (s *Store) query(path string, q *Query) (*model.QuerySnapshot, error) {
	s.mu.RLock()
	rows := make([]row, 0)
	for docPath, fields := range s.docs {
		if firestore.ParentPath(docPath) != path {
			continue
		}
		rows = append(rows, row{id: firestore.DocumentID(docPath), path: docPath, fields: deepCopy(fields)})
	}
	s.mu.RUnlock()

	rows, err := q.apply(rows)
	if err != nil {
		return nil, err
	}
	snap := &model.QuerySnapshot{Docs: make([]*model.DocumentSnapshot, 0, len(rows))}
	for _, r := range rows {
		snap.Docs = append(snap.Docs, &model.DocumentSnapshot{ID: r.id, Path: r.path, Exists: true, Fields: r.fields})
	}
	return snap, nil
}

func (s *Store) listen(l *listener) replay.Subscription {
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	l.remove = func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	}

	l.trigger()
	return replay.SubscriptionFunc(l.stop)
}

func (s *Store) notify(path string) {
	s.mu.RLock()
	targets := make([]*listener, 0, len(s.listeners))
	for l := range s.listeners {
		if l.matches(path) {
			targets = append(targets, l)
		}
	}
	s.mu.RUnlock()

	for _, l := range targets {
		l.trigger()
	}
}

// listener re-reads its target on every trigger. Triggers arriving while a
// delivery runs, including reentrant ones, collapse into one more delivery.
type listener struct {
	matches func(path string) bool
	deliver func()
	remove  func()

	mu      sync.Mutex
	running bool
	dirty   bool
	stopped bool
}

func (l *listener) trigger() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.dirty = true
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	for l.dirty && !l.stopped {
		l.dirty = false
		l.mu.Unlock()
		l.deliver()
		l.mu.Lock()
	}
	l.running = false
	l.mu.Unlock()
}

func (l *listener) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	if l.remove != nil {
		l.remove()
	}
}

func normalize(path string) string {
	return firestore.BuildDocumentPath(firestore.ParseDocumentPath(path)...)
}

func merge(dst, src map[string]any) map[string]any {
	out := deepCopy(dst)
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = merge(existing, nested)
				continue
			}
		}
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	}
	return v
}
