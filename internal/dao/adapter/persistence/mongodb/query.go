package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
)

// Stored document keys.
const (
	keyPath       = "_id"
	keyParent     = "parent"
	keyDocID      = "docId"
	keyFields     = "fields"
	keyUpdateTime = "updateTime"
)

type bound struct {
	value     any
	inclusive bool
}

// Query collects the clauses of a collection read and translates them to a
// MongoDB filter and find options.
type Query struct {
	filters []model.Where
	orders  []model.OrderBy
	limit   int
	start   *bound
	end     *bound
}

var _ repository.Query = (*Query)(nil)

// Where implements repository.Query.
func (q *Query) Where(field, operator string, value any) repository.Query {
	q.filters = append(q.filters, model.Where{Field: field, Operator: operator, Value: value})
	return q
}

// OrderBy implements repository.Query.
func (q *Query) OrderBy(field string, direction model.Direction) repository.Query {
	q.orders = append(q.orders, model.OrderBy{Field: field, Direction: direction})
	return q
}

// Limit implements repository.Query.
func (q *Query) Limit(n int) repository.Query {
	q.limit = n
	return q
}

// StartAt implements repository.Query.
func (q *Query) StartAt(c any) repository.Query {
	q.start = &bound{value: c, inclusive: true}
	return q
}

// StartAfter implements repository.Query.
func (q *Query) StartAfter(c any) repository.Query {
	q.start = &bound{value: c}
	return q
}

// EndAt implements repository.Query.
func (q *Query) EndAt(c any) repository.Query {
	q.end = &bound{value: c, inclusive: true}
	return q
}

// EndBefore implements repository.Query.
func (q *Query) EndBefore(c any) repository.Query {
	q.end = &bound{value: c}
	return q
}

func fieldPath(field string) string {
	return keyFields + "." + field
}

// filter returns the MongoDB filter selecting the documents of parent matched by q.
func (q *Query) filter(parent string) (bson.M, error) {
	and := []bson.M{{keyParent: parent}}
	for _, w := range q.filters {
		f, err := singleFilter(w)
		if err != nil {
			return nil, err
		}
		and = append(and, f)
	}
	for _, o := range q.orders {
		and = append(and, bson.M{fieldPath(o.Field): bson.M{"$exists": true}})
	}
	if q.start != nil {
		and = append(and, q.cursorFilter(q.start, true))
	}
	if q.end != nil {
		and = append(and, q.cursorFilter(q.end, false))
	}
	if len(and) == 1 {
		return and[0], nil
	}
	return bson.M{"$and": and}, nil
}

func singleFilter(w model.Where) (bson.M, error) {
	path := fieldPath(w.Field)
	switch w.Operator {
	case model.OperatorEqual:
		return bson.M{path: bson.M{"$eq": w.Value}}, nil
	case model.OperatorNotEqual:
		return bson.M{path: bson.M{"$exists": true, "$ne": w.Value}}, nil
	case model.OperatorGreaterThan:
		return bson.M{path: bson.M{"$gt": w.Value}}, nil
	case model.OperatorGreaterThanOrEqual:
		return bson.M{path: bson.M{"$gte": w.Value}}, nil
	case model.OperatorLessThan:
		return bson.M{path: bson.M{"$lt": w.Value}}, nil
	case model.OperatorLessThanOrEqual:
		return bson.M{path: bson.M{"$lte": w.Value}}, nil
	case model.OperatorIn:
		return bson.M{path: bson.M{"$in": w.Value}}, nil
	case model.OperatorNotIn:
		return bson.M{path: bson.M{"$exists": true, "$nin": w.Value}}, nil
	case model.OperatorArrayContains:
		return bson.M{path: bson.M{"$elemMatch": bson.M{"$eq": w.Value}}}, nil
	case model.OperatorArrayContainsAny:
		return bson.M{path: bson.M{"$in": w.Value}}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", w.Operator)
}

// cursorFilter bounds the sort order at b. Document cursors compare on every
// ordered field then the document id; literal values on the first ordered field.
func (q *Query) cursorFilter(b *bound, start bool) bson.M {
	cmp := func(desc, last bool) string {
		after := start != desc
		switch {
		case after && last && b.inclusive:
			return "$gte"
		case after:
			return "$gt"
		case last && b.inclusive:
			return "$lte"
		}
		return "$lt"
	}

	doc, isDoc := b.value.(model.Cursor)
	if !isDoc {
		if len(q.orders) == 0 {
			return bson.M{keyDocID: bson.M{cmp(false, true): fmt.Sprint(b.value)}}
		}
		o := q.orders[0]
		return bson.M{fieldPath(o.Field): bson.M{cmp(o.Direction == model.Descending, true): b.value}}
	}

	type key struct {
		path  string
		value any
		desc  bool
	}
	keys := make([]key, 0, len(q.orders)+1)
	for _, o := range q.orders {
		keys = append(keys, key{path: fieldPath(o.Field), value: doc.Fields[o.Field], desc: o.Direction == model.Descending})
	}
	keys = append(keys, key{path: keyDocID, value: doc.ID})

	// lexicographic bound: (k1 > v1) or (k1 == v1 and k2 > v2) or ...
	or := make([]bson.M, 0, len(keys))
	for i, k := range keys {
		term := bson.M{}
		for _, prev := range keys[:i] {
			term[prev.path] = prev.value
		}
		term[k.path] = bson.M{cmp(k.desc, i == len(keys)-1): k.value}
		or = append(or, term)
	}
	if len(or) == 1 {
		return or[0]
	}
	return bson.M{"$or": or}
}

// findOptions sorts by the ordered fields then the document id.
func (q *Query) findOptions() *options.FindOptions {
	opts := options.Find()
	sort := bson.D{}
	for _, o := range q.orders {
		dir := 1
		if o.Direction == model.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: fieldPath(o.Field), Value: dir})
	}
	sort = append(sort, bson.E{Key: keyDocID, Value: 1})
	opts.SetSort(sort)
	if q.limit > 0 {
		opts.SetLimit(int64(q.limit))
	}
	return opts
}
