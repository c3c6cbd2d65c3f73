package dao

import (
	"reflect"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/dao/mapper"
)

// buildQuery returns the query refinement for opts, applied in clause order.
func buildQuery(opts ListOptions) func(repository.Query) repository.Query {
	return func(q repository.Query) repository.Query {
		for _, w := range opts.Where {
			q = q.Where(w.Field, w.Operator, w.Value)
		}
		for _, o := range opts.OrderBy {
			q = q.OrderBy(o.Field, o.Direction)
		}
		if opts.Limit > 0 {
			q = q.Limit(opts.Limit)
		}
		if off := opts.Offset; !off.IsZero() {
			if off.StartAt != nil {
				q = q.StartAt(cursorValue(off.StartAt))
			}
			if off.StartAfter != nil {
				q = q.StartAfter(cursorValue(off.StartAfter))
			}
			if off.EndAt != nil {
				q = q.EndAt(cursorValue(off.EndAt))
			}
			if off.EndBefore != nil {
				q = q.EndBefore(cursorValue(off.EndBefore))
			}
		}
		return q
	}
}

// cursorValue turns a model bound into a document cursor. Literal bounds pass through.
func cursorValue(v any) any {
	m, ok := v.(model.Model)
	if !ok || isNil(m) {
		return v
	}
	return model.Cursor{
		Path:   model.DocumentPath(m),
		ID:     m.Meta().ID,
		Fields: mapper.ToRaw(m),
	}
}

// offsetKey is the cache key form of an offset: models are keyed by their path.
func offsetKey(off *model.Offset) map[string]any {
	if off.IsZero() {
		return nil
	}
	key := map[string]any{}
	for name, v := range map[string]any{
		"startAt":    off.StartAt,
		"startAfter": off.StartAfter,
		"endAt":      off.EndAt,
		"endBefore":  off.EndBefore,
	} {
		if v == nil {
			continue
		}
		if m, ok := v.(model.Model); ok && !isNil(m) {
			key[name] = "ref:" + model.DocumentPath(m)
			continue
		}
		key[name] = v
	}
	return key
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}
