package mapper

import (
	"reflect"
	"strings"
	"sync"
)

// TagName is the struct tag holding a field's storage name and options.
const TagName = "firestore"

type fieldInfo struct {
	name      string
	index     []int
	omitEmpty bool
	tag       reflect.StructTag
}

// Field describes a mapped struct field.
type Field struct {
	Name string
	Tag  reflect.StructTag
}

type typeFields struct {
	list   []fieldInfo
	byName map[string]fieldInfo
}

var fieldCache sync.Map // reflect.Type -> *typeFields

// IsReserved reports whether key is internal to the mapping layer.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, "_") || strings.HasPrefix(key, "$")
}

// FieldSet returns the storage names declared by the struct behind v.
func FieldSet(v any) map[string]struct{} {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	set := map[string]struct{}{}
	if t == nil || t.Kind() != reflect.Struct {
		return set
	}
	for _, f := range fieldsOf(t).list {
		set[f.name] = struct{}{}
	}
	return set
}

// Fields returns the mapped fields of the struct behind v, in declaration order.
func Fields(v any) []Field {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	list := fieldsOf(t).list
	out := make([]Field, len(list))
	for i, f := range list {
		out[i] = Field{Name: f.name, Tag: f.tag}
	}
	return out
}

func fieldsOf(t reflect.Type) *typeFields {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(*typeFields)
	}
	tf := &typeFields{byName: map[string]fieldInfo{}}
	collectFields(t, nil, tf)
	actual, _ := fieldCache.LoadOrStore(t, tf)
	return actual.(*typeFields)
}

func collectFields(t reflect.Type, parent []int, tf *typeFields) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		// embedded structs are flattened, unless tagged with an explicit name
		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
			collectFields(sf.Type, index, tf)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		switch sf.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if IsReserved(name) {
			continue
		}
		if _, dup := tf.byName[name]; dup {
			continue
		}

		info := fieldInfo{
			name:      name,
			index:     index,
			omitEmpty: strings.Contains(opts, "omitempty"),
			tag:       sf.Tag,
		}
		tf.list = append(tf.list, info)
		tf.byName[name] = info
	}
}
