package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(WithClock(func() time.Time { return fixedNow }))
}

type docRecorder struct {
	mu    sync.Mutex
	snaps []*model.DocumentSnapshot
}

func (r *docRecorder) next(s *model.DocumentSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *docRecorder) last() *model.DocumentSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

type listRecorder struct {
	mu    sync.Mutex
	snaps []*model.QuerySnapshot
	errs  []error
}

func (r *listRecorder) next(s *model.QuerySnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *listRecorder) fail(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *listRecorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.snaps[len(r.snaps)-1].Docs {
		out = append(out, d.ID)
	}
	return out
}

func seed(t *testing.T, s *Store, docs map[string]map[string]any) {
	t.Helper()
	for path, fields := range docs {
		require.NoError(t, s.WriteDocument(context.Background(), path, fields, model.WriteOptions{}))
	}
}

func TestStore_ReadDocument_Live(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	r := &docRecorder{}

	sub := s.ReadDocument("/orgs/o1/").Subscribe(r.next, nil)
	require.Len(t, r.snaps, 1)
	assert.False(t, r.last().Exists)
	assert.Equal(t, "o1", r.last().ID)

	require.NoError(t, s.WriteDocument(ctx, "orgs/o1", map[string]any{"name": "Acme", "_updateDate": model.ServerTimestamp}, model.WriteOptions{}))
	require.Len(t, r.snaps, 2)
	assert.True(t, r.last().Exists)
	assert.Equal(t, "Acme", r.last().Data()["name"])
	assert.Equal(t, fixedNow, r.last().Data()["_updateDate"])

	require.NoError(t, s.DeleteDocument(ctx, "orgs/o1"))
	require.Len(t, r.snaps, 3)
	assert.False(t, r.last().Exists)

	sub.Unsubscribe()
	assert.Equal(t, 0, s.Listeners())
	require.NoError(t, s.WriteDocument(ctx, "orgs/o1", map[string]any{"name": "Back"}, model.WriteOptions{}))
	assert.Len(t, r.snaps, 3)
}

func TestStore_WriteDocument_Merge(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seed(t, s, map[string]map[string]any{
		"orgs/o1": {"name": "Acme", "address": map[string]any{"city": "Lyon", "zip": "69001"}},
	})

	require.NoError(t, s.WriteDocument(ctx, "orgs/o1", map[string]any{"address": map[string]any{"city": "Paris"}}, model.WriteOptions{Merge: true}))
	r := &docRecorder{}
	s.ReadDocument("orgs/o1").Subscribe(r.next, nil)
	assert.Equal(t, map[string]any{
		"name":    "Acme",
		"address": map[string]any{"city": "Paris", "zip": "69001"},
	}, r.last().Data())

	require.NoError(t, s.WriteDocument(ctx, "orgs/o1", map[string]any{"name": "Replaced"}, model.WriteOptions{}))
	assert.Equal(t, map[string]any{"name": "Replaced"}, r.last().Data())
}

func TestStore_WriteDocument_RejectsCollectionPath(t *testing.T) {
	s := newTestStore()
	err := s.WriteDocument(context.Background(), "orgs", map[string]any{}, model.WriteOptions{})
	assert.Error(t, err)
}

func TestStore_AddDocument(t *testing.T) {
	s := newTestStore()
	id, err := s.AddDocument(context.Background(), "orgs/o1/users", map[string]any{"name": "Ann"})
	require.NoError(t, err)
	assert.Len(t, id, 20)
	assert.Equal(t, 1, s.Len())

	r := &docRecorder{}
	s.ReadDocument("orgs/o1/users/" + id).Subscribe(r.next, nil)
	assert.True(t, r.last().Exists)
}

func TestStore_DeleteDocument_Idempotent(t *testing.T) {
	s := newTestStore()
	assert.NoError(t, s.DeleteDocument(context.Background(), "orgs/missing"))
}

func TestStore_ReadCollection_Query(t *testing.T) {
	s := newTestStore()
	seed(t, s, map[string]map[string]any{
		"users/a":         {"name": "Ann", "age": 31, "tags": []any{"admin"}},
		"users/b":         {"name": "Bob", "age": 25},
		"users/c":         {"name": "Cid", "age": 40, "tags": []any{"dev", "admin"}},
		"users/d":         {"name": "Dan"},
		"users/a/notes/x": {"text": "nested documents are not listed"},
		"others/z":        {"name": "Zed", "age": 50},
	})

	tests := []struct {
		name  string
		build func(repository.Query) repository.Query
		want  []string
	}{
		{name: "all by id", build: func(q repository.Query) repository.Query { return q }, want: []string{"a", "b", "c", "d"}},
		{name: "equality", build: func(q repository.Query) repository.Query { return q.Where("name", "==", "Bob") }, want: []string{"b"}},
		{name: "range excludes missing", build: func(q repository.Query) repository.Query { return q.Where("age", ">=", 30) }, want: []string{"a", "c"}},
		{name: "in", build: func(q repository.Query) repository.Query { return q.Where("name", "in", []string{"Ann", "Dan"}) }, want: []string{"a", "d"}},
		{name: "not in", build: func(q repository.Query) repository.Query { return q.Where("age", "not-in", []any{25}) }, want: []string{"a", "c"}},
		{name: "array contains", build: func(q repository.Query) repository.Query { return q.Where("tags", "array-contains", "admin") }, want: []string{"a", "c"}},
		{name: "array contains any", build: func(q repository.Query) repository.Query {
			return q.Where("tags", "array-contains-any", []any{"dev", "ops"})
		}, want: []string{"c"}},
		{name: "order desc with limit", build: func(q repository.Query) repository.Query {
			return q.OrderBy("age", model.Descending).Limit(2)
		}, want: []string{"c", "a"}},
		{name: "start after literal", build: func(q repository.Query) repository.Query {
			return q.OrderBy("age", model.Ascending).StartAfter(25)
		}, want: []string{"a", "c"}},
		{name: "end at literal", build: func(q repository.Query) repository.Query {
			return q.OrderBy("age", model.Ascending).EndAt(31)
		}, want: []string{"b", "a"}},
		{name: "start after document cursor", build: func(q repository.Query) repository.Query {
			return q.OrderBy("age", model.Ascending).StartAfter(model.Cursor{Path: "users/a", ID: "a", Fields: map[string]any{"age": 31}})
		}, want: []string{"c"}},
		{name: "end before document id", build: func(q repository.Query) repository.Query {
			return q.EndBefore(model.Cursor{Path: "users/c", ID: "c"})
		}, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &listRecorder{}
			s.ReadCollection("users", tt.build).Subscribe(r.next, r.fail)
			require.Empty(t, r.errs)
			assert.Equal(t, tt.want, r.ids())
		})
	}
}

func TestStore_ReadCollection_Live(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	r := &listRecorder{}

	s.ReadCollection("orgs/o1/users", nil).Subscribe(r.next, r.fail)
	require.Len(t, r.snaps, 1)
	assert.Equal(t, 0, r.snaps[0].Size())

	_, err := s.AddDocument(ctx, "orgs/o1/users", map[string]any{"name": "Ann"})
	require.NoError(t, err)
	_, err = s.AddDocument(ctx, "orgs/o2/users", map[string]any{"name": "Other"})
	require.NoError(t, err)

	require.Len(t, r.snaps, 2)
	assert.Equal(t, 1, r.snaps[1].Size())
}

func TestStore_ReadCollection_UnsupportedOperator(t *testing.T) {
	s := newTestStore()
	seed(t, s, map[string]map[string]any{"users/a": {"name": "Ann"}})

	r := &listRecorder{}
	s.ReadCollection("users", func(q repository.Query) repository.Query {
		return q.Where("name", "like", "A%")
	}).Subscribe(r.next, r.fail)

	require.Len(t, r.errs, 1)
	assert.Empty(t, r.snaps)
	assert.Equal(t, 0, s.Listeners())
}

func TestStore_ReentrantWriteFromListener(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	r := &docRecorder{}

	s.ReadDocument("counters/c").Subscribe(func(snap *model.DocumentSnapshot) {
		r.next(snap)
		if !snap.Exists {
			require.NoError(t, s.WriteDocument(ctx, "counters/c", map[string]any{"n": 1}, model.WriteOptions{}))
		}
	}, nil)

	require.Len(t, r.snaps, 2)
	assert.True(t, r.last().Exists)
}
