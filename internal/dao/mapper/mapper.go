// Package mapper converts between stored document fields and typed models.
//
// Storage names come from the `firestore` struct tag, falling back to the Go
// field name. Names starting with "_" or "$" are reserved for metadata and are
// never mapped. Embedded structs are flattened.
package mapper

import (
	"reflect"
	"strings"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/shared/firestore"
	"firestore-dao/internal/shared/logger"
)

// Reserved metadata keys a raw document may carry.
const (
	IDKey             = "_id"
	CollectionPathKey = "_collectionPath"
	FromCacheKey      = "_fromCache"
	UpdateDateKey     = model.UpdateDateField
)

// Mapper builds models of type M from raw documents.
type Mapper[M model.Model] struct {
	newModel func() M
	template string
	notifier *MissingFieldNotifier
	log      logger.Logger
}

// Option configures a Mapper.
type Option func(*options)

type options struct {
	notifier *MissingFieldNotifier
	log      logger.Logger
}

// WithNotifier shares a notifier between mappers.
func WithNotifier(n *MissingFieldNotifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger sets the logger used for metadata diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New creates a mapper. newModel must return a pointer to a fresh zero struct;
// template is the collection path template used to derive CollectionPath.
func New[M model.Model](newModel func() M, template string, opts ...Option) *Mapper[M] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Default()
	}
	if o.notifier == nil {
		o.notifier = NewMissingFieldNotifier(o.log)
	}
	return &Mapper[M]{
		newModel: newModel,
		template: template,
		notifier: o.notifier,
		log:      o.log.WithComponent("mapper"),
	}
}

// NewModel returns a fresh zero model.
func (m *Mapper[M]) NewModel() M {
	return m.newModel()
}

// Template returns the collection path template.
func (m *Mapper[M]) Template() string {
	return m.template
}

// Notifier returns the notifier receiving unknown field reports.
func (m *Mapper[M]) Notifier() *MissingFieldNotifier {
	return m.notifier
}

// ToModel builds a model from raw. Keys with no declared field are dropped with a
// one time warning per type and key. Metadata is filled from docID, pathIDs and
// reserved keys of raw; missing or malformed metadata is left empty.
func (m *Mapper[M]) ToModel(raw map[string]any, docID string, pathIDs []string) M {
	out := m.newModel()
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		m.log.Errorf("model constructor must return a non-nil struct pointer, got %T", out)
		return out
	}
	elem := rv.Elem()
	typeName := elem.Type().Name()
	fields := fieldsOf(elem.Type())

	for key, value := range raw {
		if IsReserved(key) {
			continue
		}
		if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
			continue
		}
		f, ok := fields.byName[key]
		if !ok {
			m.notifier.Notify(typeName, key)
			continue
		}
		if err := assign(elem.FieldByIndex(f.index), value); err != nil {
			m.notifier.NotifyMismatch(typeName, key, err)
		}
	}

	m.attachMetadata(out.Meta(), raw, docID, pathIDs)
	return out
}

// FromSnapshot builds a model from a stored document, recovering path ids from
// the snapshot path when the template has placeholders.
func (m *Mapper[M]) FromSnapshot(snap *model.DocumentSnapshot) M {
	pathIDs := firestore.PathIDs(m.template, firestore.ParentPath(snap.Path))
	out := m.ToModel(snap.Data(), snap.ID, pathIDs)
	if snap.FromCache {
		out.Meta().FromCache = true
	}
	return out
}

// PathIDs returns the placeholder values of the model's collection path.
func (m *Mapper[M]) PathIDs(mdl M) []string {
	return firestore.PathIDs(m.template, mdl.Meta().CollectionPath)
}

func (m *Mapper[M]) attachMetadata(meta *model.Metadata, raw map[string]any, docID string, pathIDs []string) {
	meta.ID = docID
	if meta.ID == "" {
		if id, ok := raw[IDKey].(string); ok {
			meta.ID = id
		}
	}

	rawPath, _ := raw[CollectionPathKey].(string)
	switch {
	case rawPath != "" && !strings.Contains(rawPath, firestore.Placeholder) && len(pathIDs) == 0:
		meta.CollectionPath = rawPath
	case m.template != "":
		path, err := firestore.Resolve(m.template, pathIDs, "")
		if err != nil {
			m.log.Debugf("collection path of %s left empty: %v", m.template, err)
			break
		}
		meta.CollectionPath = path
	default:
		meta.CollectionPath = rawPath
	}

	if fromCache, ok := raw[FromCacheKey].(bool); ok {
		meta.FromCache = fromCache
	}
	if ts, ok := AsTime(raw[UpdateDateKey]); ok {
		meta.UpdateDate = ts
	}
}

// ToRaw converts a model or plain struct into storable fields. Reserved names,
// nil pointers and zero omitempty fields are left out. Nested structs become
// maps; time.Time values are kept as they are.
func ToRaw(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return map[string]any{}
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		raw, _ := rawValue(rv)
		out, _ := raw.(map[string]any)
		if out == nil {
			return map[string]any{}
		}
		for k := range out {
			if IsReserved(k) {
				delete(out, k)
			}
		}
		return out
	}
	if rv.Kind() != reflect.Struct {
		return map[string]any{}
	}
	return structToRaw(rv)
}

// RawValue converts a single field value the way ToRaw converts model fields:
// structs become maps keyed by firestore names, and slices and maps are
// converted element by element. Nil and unsupported values yield nil.
func RawValue(v any) any {
	raw, ok := rawValue(reflect.ValueOf(v))
	if !ok {
		return nil
	}
	return raw
}
