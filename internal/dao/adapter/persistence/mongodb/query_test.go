package mongodb

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"firestore-dao/internal/dao/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Filter(t *testing.T) {
	tests := []struct {
		name  string
		build func(q *Query)
		want  bson.M
	}{
		{
			name:  "parent only",
			build: func(q *Query) {},
			want:  bson.M{keyParent: "orgs"},
		},
		{
			name: "where and order",
			build: func(q *Query) {
				q.Where("age", model.OperatorGreaterThanOrEqual, 18).OrderBy("name", model.Ascending)
			},
			want: bson.M{"$and": []bson.M{
				{keyParent: "orgs"},
				{"fields.age": bson.M{"$gte": 18}},
				{"fields.name": bson.M{"$exists": true}},
			}},
		},
		{
			name: "not equal requires the field",
			build: func(q *Query) {
				q.Where("role", model.OperatorNotEqual, "admin")
			},
			want: bson.M{"$and": []bson.M{
				{keyParent: "orgs"},
				{"fields.role": bson.M{"$exists": true, "$ne": "admin"}},
			}},
		},
		{
			name: "array contains",
			build: func(q *Query) {
				q.Where("tags", model.OperatorArrayContains, "go")
			},
			want: bson.M{"$and": []bson.M{
				{keyParent: "orgs"},
				{"fields.tags": bson.M{"$elemMatch": bson.M{"$eq": "go"}}},
			}},
		},
		{
			name: "literal start without order bounds the id",
			build: func(q *Query) {
				q.StartAfter("o2")
			},
			want: bson.M{"$and": []bson.M{
				{keyParent: "orgs"},
				{keyDocID: bson.M{"$gt": "o2"}},
			}},
		},
		{
			name: "literal end on a descending order",
			build: func(q *Query) {
				q.OrderBy("score", model.Descending).EndAt(10)
			},
			want: bson.M{"$and": []bson.M{
				{keyParent: "orgs"},
				{"fields.score": bson.M{"$exists": true}},
				{"fields.score": bson.M{"$gte": 10}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &Query{}
			tt.build(q)
			got, err := q.filter("orgs")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_Filter_UnsupportedOperator(t *testing.T) {
	q := &Query{}
	q.Where("name", "like", "a%")
	_, err := q.filter("orgs")
	assert.Error(t, err)
}

func TestQuery_CursorFilter_Document(t *testing.T) {
	q := &Query{}
	q.OrderBy("name", model.Ascending).OrderBy("age", model.Descending)
	cursor := model.Cursor{Path: "orgs/o2", ID: "o2", Fields: map[string]any{"name": "Bob", "age": 30}}

	assert.Equal(t, bson.M{"$or": []bson.M{
		{"fields.name": bson.M{"$gt": "Bob"}},
		{"fields.name": "Bob", "fields.age": bson.M{"$lt": 30}},
		{"fields.name": "Bob", "fields.age": 30, keyDocID: bson.M{"$gte": "o2"}},
	}}, q.cursorFilter(&bound{value: cursor, inclusive: true}, true))

	assert.Equal(t, bson.M{"$or": []bson.M{
		{"fields.name": bson.M{"$lt": "Bob"}},
		{"fields.name": "Bob", "fields.age": bson.M{"$gt": 30}},
		{"fields.name": "Bob", "fields.age": 30, keyDocID: bson.M{"$lt": "o2"}},
	}}, q.cursorFilter(&bound{value: cursor}, false))
}

func TestQuery_CursorFilter_DocumentWithoutOrder(t *testing.T) {
	q := &Query{}
	got := q.cursorFilter(&bound{value: model.Cursor{ID: "o1"}}, true)
	assert.Equal(t, bson.M{keyDocID: bson.M{"$gt": "o1"}}, got)
}

func TestQuery_FindOptions(t *testing.T) {
	q := &Query{}
	q.OrderBy("name", model.Descending).Limit(5)
	opts := q.findOptions()

	assert.Equal(t, bson.D{{Key: "fields.name", Value: -1}, {Key: keyDocID, Value: 1}}, opts.Sort)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(5), *opts.Limit)

	unlimited := (&Query{}).findOptions()
	assert.Nil(t, unlimited.Limit)
	assert.Equal(t, bson.D{{Key: keyDocID, Value: 1}}, unlimited.Sort)
}

func TestFlattenSet(t *testing.T) {
	out := bson.M{}
	flattenSet(fieldPath(""), map[string]any{
		"name":    "Ann",
		"address": map[string]any{"city": "Paris", "geo": map[string]any{"lat": 1.5}},
		"empty":   map[string]any{},
	}, out)

	assert.Equal(t, bson.M{
		"fields.name":            "Ann",
		"fields.address.city":    "Paris",
		"fields.address.geo.lat": 1.5,
		"fields.empty":           map[string]any{},
	}, out)
}

func TestNormalizeMap(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got := normalizeMap(map[string]any{
		"count":   int32(3),
		"created": primitive.NewDateTimeFromTime(at),
		"tags":    primitive.A{"a", int32(1)},
		"nested":  primitive.M{"ok": true},
		"ordered": primitive.D{{Key: "k", Value: "v"}},
	})

	assert.Equal(t, map[string]any{
		"count":   int64(3),
		"created": at,
		"tags":    []any{"a", int64(1)},
		"nested":  map[string]any{"ok": true},
		"ordered": map[string]any{"k": "v"},
	}, got)
	assert.Equal(t, map[string]any{}, normalizeMap(nil))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "orgs/o1", normalize("/orgs/o1/"))
}
