package memory

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
)

type cursor struct {
	value     any
	inclusive bool
}

// Query collects the clauses of a collection read. Evaluation follows document
// database semantics: documents missing a filtered or ordered field are excluded
// and the document id breaks ordering ties.
type Query struct {
	filters []model.Where
	orders  []model.OrderBy
	limit   int
	start   *cursor
	end     *cursor
}

var _ repository.Query = (*Query)(nil)

func newQuery() *Query { return &Query{} }

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
	q.start = &cursor{value: c, inclusive: true}
	return q
}

// StartAfter implements repository.Query.
func (q *Query) StartAfter(c any) repository.Query {
	q.start = &cursor{value: c}
	return q
}

// EndAt implements repository.Query.
func (q *Query) EndAt(c any) repository.Query {
	q.end = &cursor{value: c, inclusive: true}
	return q
}

// EndBefore implements repository.Query.
func (q *Query) EndBefore(c any) repository.Query {
	q.end = &cursor{value: c}
	return q
}

type row struct {
	id     string
	path   string
	fields map[string]any
}

// apply filters, sorts, bounds and limits rows.
func (q *Query) apply(rows []row) ([]row, error) {
	out := rows[:0:0]
	for _, r := range rows {
		ok, err := q.matches(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return q.less(out[i], out[j])
	})

	if q.start != nil || q.end != nil {
		bounded := out[:0:0]
		for _, r := range out {
			if q.start != nil {
				c := q.compareCursor(r, q.start.value)
				if c < 0 || (c == 0 && !q.start.inclusive) {
					continue
				}
			}
			if q.end != nil {
				c := q.compareCursor(r, q.end.value)
				if c > 0 || (c == 0 && !q.end.inclusive) {
					continue
				}
			}
			bounded = append(bounded, r)
		}
		out = bounded
	}

	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, nil
}

func (q *Query) matches(r row) (bool, error) {
	for _, f := range q.filters {
		v, ok := lookup(r.fields, f.Field)
		if !ok {
			return false, nil
		}
		match, err := evaluate(v, f.Operator, f.Value)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	for _, o := range q.orders {
		if _, ok := lookup(r.fields, o.Field); !ok {
			return false, nil
		}
	}
	return true, nil
}

func (q *Query) less(a, b row) bool {
	for _, o := range q.orders {
		va, _ := lookup(a.fields, o.Field)
		vb, _ := lookup(b.fields, o.Field)
		c := compare(va, vb)
		if c == 0 {
			continue
		}
		if o.Direction == model.Descending {
			return c > 0
		}
		return c < 0
	}
	return a.id < b.id
}

// compareCursor compares r to a cursor bound along the sort order. Document
// cursors use their fields, literal bounds the first ordered field.
func (q *Query) compareCursor(r row, bound any) int {
	if doc, ok := bound.(model.Cursor); ok {
		for _, o := range q.orders {
			va, _ := lookup(r.fields, o.Field)
			vb, _ := lookup(doc.Fields, o.Field)
			c := compare(va, vb)
			if o.Direction == model.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(r.id, doc.ID)
	}

	if len(q.orders) == 0 {
		return strings.Compare(r.id, fmt.Sprint(bound))
	}
	o := q.orders[0]
	v, _ := lookup(r.fields, o.Field)
	c := compare(v, bound)
	if o.Direction == model.Descending {
		c = -c
	}
	return c
}

// lookup resolves dotted field paths into nested maps.
func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func evaluate(v any, operator string, operand any) (bool, error) {
	switch operator {
	case model.OperatorEqual:
		return compare(v, operand) == 0 && sameRank(v, operand), nil
	case model.OperatorNotEqual:
		return v != nil && !(compare(v, operand) == 0 && sameRank(v, operand)), nil
	case model.OperatorLessThan:
		return sameRank(v, operand) && compare(v, operand) < 0, nil
	case model.OperatorLessThanOrEqual:
		return sameRank(v, operand) && compare(v, operand) <= 0, nil
	case model.OperatorGreaterThan:
		return sameRank(v, operand) && compare(v, operand) > 0, nil
	case model.OperatorGreaterThanOrEqual:
		return sameRank(v, operand) && compare(v, operand) >= 0, nil
	case model.OperatorIn:
		return contains(asList(operand), v), nil
	case model.OperatorNotIn:
		return v != nil && !contains(asList(operand), v), nil
	case model.OperatorArrayContains:
		return contains(asList(v), operand), nil
	case model.OperatorArrayContainsAny:
		for _, candidate := range asList(operand) {
			if contains(asList(v), candidate) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported operator %q", operator)
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if sameRank(item, v) && compare(item, v) == 0 {
			return true
		}
	}
	return false
}

func asList(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Type ranks used to order values of different kinds.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case string:
		return rankString
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	return rankOther
}

func sameRank(a, b any) bool {
	return rank(a) == rank(b)
}

// compare orders two values, first by type rank, then by value.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankOther:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
