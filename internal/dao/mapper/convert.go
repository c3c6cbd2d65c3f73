package mapper

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

type toDater interface{ ToDate() time.Time }
type asTimer interface{ AsTime() time.Time }
type timer interface{ Time() time.Time }

var timeType = reflect.TypeOf(time.Time{})

// AsTime converts timestamp-like values to time.Time.
func AsTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, true
	case *time.Time:
		if ts == nil {
			return time.Time{}, false
		}
		return *ts, true
	case toDater:
		return ts.ToDate(), true
	case asTimer:
		return ts.AsTime(), true
	case timer:
		return ts.Time(), true
	}
	return time.Time{}, false
}

// assign stores v into dst, converting maps into structs and numbers between kinds.
func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if ts, ok := AsTime(v); ok {
		v = ts
	}
	src := reflect.ValueOf(v)

	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if src.Type().AssignableTo(dst.Type()) {
			dst.Set(src)
			return nil
		}
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		if dst.Type() == timeType || src.Kind() != reflect.Map || src.Type().Key().Kind() != reflect.String {
			break
		}
		fields := fieldsOf(dst.Type())
		iter := src.MapRange()
		for iter.Next() {
			f, ok := fields.byName[iter.Key().String()]
			if !ok {
				continue
			}
			if err := assign(dst.FieldByIndex(f.index), iter.Value().Interface()); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
		}
		return nil

	case reflect.Slice:
		if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assign(out.Index(i), src.Index(i).Interface()); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		dst.Set(out)
		return nil

	case reflect.Map:
		if src.Kind() != reflect.Map || dst.Type().Key().Kind() != reflect.String || src.Type().Key().Kind() != reflect.String {
			break
		}
		out := reflect.MakeMapWithSize(dst.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := assign(elem, iter.Value().Interface()); err != nil {
				return fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			out.SetMapIndex(reflect.ValueOf(iter.Key().String()).Convert(dst.Type().Key()), elem)
		}
		dst.Set(out)
		return nil

	default:
		if convertible(src.Kind(), dst.Kind()) {
			if isNumber(src.Kind()) && !fits(src, dst) {
				return fmt.Errorf("%v does not fit in %s", v, dst.Type())
			}
			dst.Set(src.Convert(dst.Type()))
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
}

// fits reports whether the number src converts to the kind of dst without
// losing its sign, its fraction or its magnitude.
func fits(src, dst reflect.Value) bool {
	switch {
	case isFloat(src.Kind()):
		f := src.Float()
		if isFloat(dst.Kind()) {
			return math.IsNaN(f) || math.IsInf(f, 0) || !dst.OverflowFloat(f)
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return false
		}
		if isSigned(dst.Kind()) {
			return f >= math.MinInt64 && f < math.MaxInt64 && !dst.OverflowInt(int64(f))
		}
		return f >= 0 && f < math.MaxUint64 && !dst.OverflowUint(uint64(f))

	case isSigned(src.Kind()):
		i := src.Int()
		switch {
		case isFloat(dst.Kind()):
			return true
		case isSigned(dst.Kind()):
			return !dst.OverflowInt(i)
		}
		return i >= 0 && !dst.OverflowUint(uint64(i))
	}

	u := src.Uint()
	switch {
	case isFloat(dst.Kind()):
		return true
	case isSigned(dst.Kind()):
		return u <= math.MaxInt64 && !dst.OverflowInt(int64(u))
	}
	return !dst.OverflowUint(u)
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func convertible(src, dst reflect.Kind) bool {
	switch {
	case isNumber(src) && isNumber(dst):
		return true
	case src == reflect.String && dst == reflect.String:
		return true
	case src == reflect.Bool && dst == reflect.Bool:
		return true
	}
	return false
}

func isNumber(k reflect.Kind) bool {
	return isInteger(k) || isFloat(k)
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// rawValue converts a struct field into its storage form. ok is false for
// undefined values: nil pointers, maps, slices and interfaces.
func rawValue(v reflect.Value) (any, bool) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, false
		}
		return rawValue(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			return nil, false
		}
		if v.Type().Key().Kind() != reflect.String {
			return v.Interface(), true
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if raw, ok := rawValue(iter.Value()); ok {
				out[iter.Key().String()] = raw
			}
		}
		return out, true
	case reflect.Slice:
		if v.IsNil() {
			return nil, false
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), true
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			raw, _ := rawValue(v.Index(i))
			out[i] = raw
		}
		return out, true
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface(), true
		}
		return structToRaw(v), true
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Invalid:
		return nil, false
	}
	return v.Interface(), true
}

func structToRaw(v reflect.Value) map[string]any {
	out := map[string]any{}
	for _, f := range fieldsOf(v.Type()).list {
		fv := v.FieldByIndex(f.index)
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		if raw, ok := rawValue(fv); ok {
			out[f.name] = raw
		}
	}
	return out
}
