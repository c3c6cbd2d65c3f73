// Package dao maps a document collection onto a typed model and serves reactive,
// cached reads together with schema-guarded writes.
package dao

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/dao/mapper"
	"firestore-dao/internal/dao/replay"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/firestore"
	"firestore-dao/internal/shared/logger"
	"firestore-dao/internal/shared/utils"
)

// Cache operation names.
const (
	opGetByID = "getById"
	opGetList = "getList"
	opSave    = "save"
	opUpdate  = "update"
	opDelete  = "delete"
)

// Dao serves one collection template. Create it with New and release it with Close.
type Dao[M model.Model] struct {
	store      repository.DocumentStore
	template   string
	mapper     *mapper.Mapper[M]
	fields     map[string]struct{}
	modelName  string
	cache      *replay.Cache
	manager    *CacheManager
	beforeSave func(M) M
	log        logger.Logger
}

// New creates a DAO over store for the collection template, for example
// "orgs/?/users". newModel must return a pointer to a fresh zero model.
// The DAO registers with the configured CacheManager.
func New[M model.Model](store repository.DocumentStore, template string, newModel func() M, opts ...Option) *Dao[M] {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	if s.manager == nil {
		s.manager = defaultManager
	}
	log := s.log.WithComponent("dao").WithFields(map[string]interface{}{"template": template})

	mapperOpts := []mapper.Option{mapper.WithLogger(s.log)}
	if s.notifier != nil {
		mapperOpts = append(mapperOpts, mapper.WithNotifier(s.notifier))
	}

	empty := newModel()
	d := &Dao[M]{
		store:     store,
		template:  template,
		mapper:    mapper.New(newModel, template, mapperOpts...),
		fields:    mapper.FieldSet(empty),
		modelName: reflect.TypeOf(empty).String(),
		cache:     replay.NewCache(log),
		manager:   s.manager,
		log:       log,
	}
	if s.beforeSave != nil {
		if fn, ok := s.beforeSave.(func(M) M); ok {
			d.beforeSave = fn
		} else {
			log.Warnf("ignoring before save hook of type %T", s.beforeSave)
		}
	}
	d.manager.Register(d)
	return d
}

// Template returns the collection path template.
func (d *Dao[M]) Template() string {
	return d.template
}

// Mapper returns the mapper converting documents to models.
func (d *Dao[M]) Mapper() *mapper.Mapper[M] {
	return d.mapper
}

// ModelName returns the Go type name of the model, as used in schema errors.
func (d *Dao[M]) ModelName() string {
	return d.modelName
}

// NewModel returns a fresh zero model.
func (d *Dao[M]) NewModel() M {
	return d.mapper.NewModel()
}

// GetByID observes the document docID. It emits the zero M while the document
// does not exist, on every change, until it is created.
func (d *Dao[M]) GetByID(docID string, opts GetOptions) replay.Observable[M] {
	if docID == "" {
		return replay.Fail[M](apperrors.NewMissingArgumentError("docID"))
	}
	path, err := firestore.Resolve(d.template, opts.PathIDs, docID)
	if err != nil {
		return replay.Fail[M](err)
	}
	return d.observeDocument(path, opts.NoCache)
}

// GetByReference observes the referenced document. The reference must point
// into this DAO's collection template.
func (d *Dao[M]) GetByReference(ref model.DocumentRef) (replay.Observable[M], error) {
	if ref.Path == "" {
		return nil, apperrors.NewMissingArgumentError("ref")
	}
	if !d.IsCompatible(ref.Path) || len(firestore.ParseDocumentPath(ref.Path)) != len(firestore.ParseDocumentPath(d.template))+1 {
		return nil, apperrors.NewIncompatiblePathError(d.template, ref.Path)
	}
	return d.observeDocument(firestore.BuildDocumentPath(firestore.ParseDocumentPath(ref.Path)...), false), nil
}

// Reference returns the reference of the document docID.
func (d *Dao[M]) Reference(docID string, pathIDs ...string) (model.DocumentRef, error) {
	if docID == "" {
		return model.DocumentRef{}, apperrors.NewMissingArgumentError("docID")
	}
	path, err := firestore.Resolve(d.template, pathIDs, docID)
	if err != nil {
		return model.DocumentRef{}, err
	}
	return model.DocumentRef{Path: path}, nil
}

func (d *Dao[M]) observeDocument(path string, noCache bool) replay.Observable[M] {
	produce := func() replay.Observable[M] {
		src := withErrorContext(d.store.ReadDocument(path), d.log, opGetByID, path)
		return replay.Map(src, d.fromSnapshot)
	}
	if noCache {
		return produce()
	}
	return replay.Get(d.cache, replay.Signature(opGetByID, path), produce)
}

// GetList observes the documents of the collection matching opts, in store order.
func (d *Dao[M]) GetList(opts ListOptions) replay.Observable[[]M] {
	path, err := firestore.Resolve(d.template, opts.PathIDs, "")
	if err != nil {
		return replay.Fail[[]M](err)
	}

	produce := func() replay.Observable[[]M] {
		src := withErrorContext(d.store.ReadCollection(path, buildQuery(opts)), d.log, opGetList, path, opts.Where, opts.OrderBy, opts.Limit)
		return replay.Map(src, func(snap *model.QuerySnapshot) []M {
			out := make([]M, 0, snap.Size())
			if snap == nil {
				return out
			}
			for _, doc := range snap.Docs {
				if doc == nil || !doc.Exists {
					continue
				}
				out = append(out, d.mapper.FromSnapshot(doc))
			}
			return out
		})
	}
	if opts.NoCache {
		return produce()
	}
	key := replay.Signature(opGetList, path, opts.Where, opts.OrderBy, opts.Limit, offsetKey(opts.Offset))
	return replay.Get(d.cache, key, produce)
}

// Save writes a model or a form. A pristine form is returned as a model without
// any write unless opts.Force is set; an invalid form fails with a validation
// error carrying the form errors. The written model is returned with its id.
func (d *Dao[M]) Save(ctx context.Context, target SaveTarget[M], opts SaveOptions) (M, error) {
	var zero M
	var obj M
	ctx = d.operation(ctx, opSave)

	if target.IsForm() {
		f := target.form
		if f.Pristine() && !opts.Force {
			return d.mapper.ToModel(f.Value(), opts.DocID, opts.PathIDs), nil
		}
		if !f.Valid() {
			return zero, apperrors.NewValidationError("invalid form", f.Errors()).WithComponent("dao")
		}
		obj = d.mapper.ToModel(f.Value(), opts.DocID, opts.PathIDs)
	} else {
		obj = target.model
		if isNil(obj) {
			return zero, apperrors.NewMissingArgumentError("model")
		}
	}

	meta := obj.Meta()
	if d.template != "" && meta.CollectionPath == "" {
		path, err := firestore.Resolve(d.template, opts.PathIDs, "")
		if err != nil {
			return zero, err
		}
		meta.CollectionPath = path
	}

	if d.beforeSave != nil {
		obj = d.beforeSave(obj)
	}

	docLabel := opts.DocID
	if docLabel == "" {
		docLabel = obj.Meta().ID
	}
	if docLabel == "" {
		docLabel = "new"
	}
	d.log.WithContext(ctx).Infof("saving document %q at %s", docLabel, obj.Meta().CollectionPath)

	return d.push(ctx, obj, opts.DocID, opts.PathIDs, opts.Overwrite)
}

// Update merges exactly fields into the document docID and returns the written fields.
func (d *Dao[M]) Update(ctx context.Context, fields map[string]any, docID string, pathIDs ...string) (map[string]any, error) {
	var missing []string
	if fields == nil {
		missing = append(missing, "fields")
	}
	if docID == "" {
		missing = append(missing, "docID")
	}
	if d.template == "" {
		missing = append(missing, "template")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingArgumentError(missing...)
	}

	ctx = d.operation(ctx, opUpdate)
	d.log.WithContext(ctx).Debugf("updating document %s of %s", docID, d.template)
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = mapper.RawValue(v)
	}
	_, written, err := d.pushData(ctx, data, docID, pathIDs, false)
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Delete removes the document of m. Deleting a missing document succeeds.
func (d *Dao[M]) Delete(ctx context.Context, m M) error {
	if isNil(m) {
		return apperrors.NewMissingArgumentError("model")
	}
	path := model.DocumentPath(m)
	if path == "" {
		return apperrors.NewMissingArgumentError("id", "collectionPath")
	}
	return d.deletePath(ctx, path)
}

// DeleteByID removes the document docID. Deleting a missing document succeeds.
func (d *Dao[M]) DeleteByID(ctx context.Context, docID string, pathIDs ...string) error {
	if docID == "" {
		return apperrors.NewMissingArgumentError("docID")
	}
	path, err := firestore.Resolve(d.template, pathIDs, docID)
	if err != nil {
		return err
	}
	return d.deletePath(ctx, path)
}

func (d *Dao[M]) deletePath(ctx context.Context, path string) error {
	ctx = d.operation(ctx, opDelete)
	if err := d.store.DeleteDocument(ctx, path); err != nil {
		d.log.WithContext(ctx).WithFields(map[string]interface{}{"path": path}).Errorf("delete failed: %v", err)
		return apperrors.WrapError(err, fmt.Sprintf("delete %s", path))
	}
	return nil
}

// IsCompatible reports whether path addresses this DAO's collection or one of its documents.
func (d *Dao[M]) IsCompatible(path string) bool {
	return firestore.IsCompatible(d.template, path)
}

// ClearCache drops every cached read of this DAO.
func (d *Dao[M]) ClearCache() {
	d.cache.Clear()
}

// Close deregisters the DAO from its CacheManager and drops its cache.
func (d *Dao[M]) Close() {
	d.manager.Deregister(d)
	d.cache.Clear()
}

// operation tags ctx with the running write and this DAO's template for logging.
func (d *Dao[M]) operation(ctx context.Context, op string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return utils.WithCollection(utils.WithOperation(ctx, op), d.template)
}

// push writes m and stores the resulting id on its metadata.
func (d *Dao[M]) push(ctx context.Context, m M, docID string, pathIDs []string, overwrite bool) (M, error) {
	var zero M
	meta := m.Meta()
	if docID == "" {
		docID = meta.ID
	}
	if len(pathIDs) == 0 {
		pathIDs = d.mapper.PathIDs(m)
	}

	id, _, err := d.pushData(ctx, mapper.ToRaw(m), docID, pathIDs, overwrite)
	if err != nil {
		return zero, err
	}
	if meta.ID == "" {
		meta.ID = id
	}
	if meta.CollectionPath == "" {
		if path, err := firestore.Resolve(d.template, pathIDs, ""); err == nil {
			meta.CollectionPath = path
		}
	}
	return m, nil
}

// pushData validates data against the model fields, stamps the update date and
// writes it. Without docID the store assigns the id.
func (d *Dao[M]) pushData(ctx context.Context, data map[string]any, docID string, pathIDs []string, overwrite bool) (string, map[string]any, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := d.fields[k]; !ok {
			return "", nil, apperrors.NewUnknownFieldError(d.modelName, k).WithComponent("dao")
		}
	}

	written := make(map[string]any, len(data)+1)
	for k, v := range data {
		written[k] = v
	}
	written[model.UpdateDateField] = model.ServerTimestamp

	log := d.log.WithContext(ctx)
	if docID != "" {
		path, err := firestore.Resolve(d.template, pathIDs, docID)
		if err != nil {
			return "", nil, err
		}
		if err := d.store.WriteDocument(ctx, path, written, model.WriteOptions{Merge: !overwrite}); err != nil {
			log.WithFields(map[string]interface{}{"path": path}).Errorf("write failed: %v", err)
			return "", nil, apperrors.WrapError(err, fmt.Sprintf("write %s", path))
		}
		return docID, written, nil
	}

	collectionPath, err := firestore.Resolve(d.template, pathIDs, "")
	if err != nil {
		return "", nil, err
	}
	id, err := d.store.AddDocument(ctx, collectionPath, written)
	if err != nil {
		log.WithFields(map[string]interface{}{"path": collectionPath}).Errorf("add failed: %v", err)
		return "", nil, apperrors.WrapError(err, fmt.Sprintf("add to %s", collectionPath))
	}
	return id, written, nil
}

func (d *Dao[M]) fromSnapshot(snap *model.DocumentSnapshot) M {
	var zero M
	if snap == nil || !snap.Exists {
		return zero
	}
	return d.mapper.FromSnapshot(snap)
}

// withErrorContext logs upstream failures with the operation context and forwards
// them wrapped.
func withErrorContext[T any](src replay.Observable[T], log logger.Logger, op, path string, clauses ...any) replay.Observable[T] {
	return replay.ObservableFunc[T](func(next func(T), fail func(error)) replay.Subscription {
		return src.Subscribe(next, func(err error) {
			fields := map[string]interface{}{"op": op, "path": path}
			if len(clauses) > 0 {
				fields["clauses"] = fmt.Sprintf("%+v", clauses)
			}
			log.WithFields(fields).Errorf("query failed: %v", err)
			if fail != nil {
				fail(apperrors.WrapError(err, fmt.Sprintf("%s %s", op, path)))
			}
		})
	})
}
