// Package mongodb stores documents in one MongoDB collection keyed by their full
// path, and serves live reads through change streams.
package mongodb

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/dao/replay"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/firestore"
	"firestore-dao/internal/shared/logger"
)

// DefaultCollection holds the documents when no collection name is configured.
const DefaultCollection = "documents"

// documentRecord is the stored shape of one document.
type documentRecord struct {
	Path       string    `bson:"_id"`
	Parent     string    `bson:"parent"`
	DocID      string    `bson:"docId"`
	Fields     bson.M    `bson:"fields"`
	UpdateTime time.Time `bson:"updateTime"`
}

// Store implements repository.DocumentStore on MongoDB.
type Store struct {
	coll    *mongo.Collection
	log     logger.Logger
	now     func() time.Time
	live    bool
	timeout time.Duration
}

var _ repository.DocumentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithoutChangeStreams makes reads emit once. Change streams need a replica set.
func WithoutChangeStreams() Option {
	return func(s *Store) { s.live = false }
}

// WithTimeout bounds every read issued by live listeners.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// NewStore creates a store over the named collection of db.
func NewStore(db *mongo.Database, collection string, opts ...Option) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	s := &Store{
		coll:    db.Collection(collection),
		log:     logger.NewNopLogger(),
		now:     time.Now,
		live:    true,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("mongodb-store")
	return s
}

// EnsureIndexes creates the indexes used by collection reads.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: keyParent, Value: 1}, {Key: keyDocID, Value: 1}}},
	})
	if err != nil {
		return apperrors.WrapError(err, "create document indexes")
	}
	return nil
}

// ReadDocument implements repository.DocumentStore.
func (s *Store) ReadDocument(path string) replay.Observable[*model.DocumentSnapshot] {
	path = normalize(path)
	match := bson.D{{Key: "$match", Value: bson.M{"documentKey._id": path}}}
	return observe(s, match, func(ctx context.Context) (*model.DocumentSnapshot, error) {
		return s.readDocument(ctx, path)
	})
}

// ReadCollection implements repository.DocumentStore.
func (s *Store) ReadCollection(path string, build func(repository.Query) repository.Query) replay.Observable[*model.QuerySnapshot] {
	path = normalize(path)
	q := &Query{}
	if build != nil {
		if built, ok := build(q).(*Query); ok {
			q = built
		}
	}
	children := "^" + regexp.QuoteMeta(path) + "/[^/]+$"
	match := bson.D{{Key: "$match", Value: bson.M{"documentKey._id": bson.M{"$regex": children}}}}
	return observe(s, match, func(ctx context.Context) (*model.QuerySnapshot, error) {
		return s.readCollection(ctx, path, q)
	})
}

// WriteDocument implements repository.DocumentStore. A merge updates the given
// fields only, nested maps included; otherwise the document is replaced.
func (s *Store) WriteDocument(ctx context.Context, path string, fields map[string]any, opts model.WriteOptions) error {
	path = normalize(path)
	if !firestore.IsDocumentPath(path) {
		return apperrors.NewInfrastructureError("not a document path: " + path).WithCode("INVALID_PATH")
	}
	now := s.now()
	resolved := model.ResolveServerValues(fields, now)

	var err error
	if opts.Merge {
		set := bson.M{
			keyParent:     firestore.ParentPath(path),
			keyDocID:      firestore.DocumentID(path),
			keyUpdateTime: now,
		}
		flattenSet(fieldPath(""), resolved, set)
		_, err = s.coll.UpdateOne(ctx, bson.M{keyPath: path}, bson.M{"$set": set}, options.Update().SetUpsert(true))
	} else {
		record := documentRecord{
			Path:       path,
			Parent:     firestore.ParentPath(path),
			DocID:      firestore.DocumentID(path),
			Fields:     bson.M(resolved),
			UpdateTime: now,
		}
		_, err = s.coll.ReplaceOne(ctx, bson.M{keyPath: path}, record, options.Replace().SetUpsert(true))
	}
	if err != nil {
		s.log.WithFields(map[string]interface{}{"path": path}).Errorf("write failed: %v", err)
		return apperrors.WrapError(err, "write "+path)
	}
	return nil
}

// AddDocument implements repository.DocumentStore.
func (s *Store) AddDocument(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	id := primitive.NewObjectID().Hex()
	if err := s.WriteDocument(ctx, firestore.BuildDocumentPath(normalize(collectionPath), id), fields, model.WriteOptions{}); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteDocument implements repository.DocumentStore.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	path = normalize(path)
	if _, err := s.coll.DeleteOne(ctx, bson.M{keyPath: path}); err != nil {
		s.log.WithFields(map[string]interface{}{"path": path}).Errorf("delete failed: %v", err)
		return apperrors.WrapError(err, "delete "+path)
	}
	return nil
}

func (s *Store) readDocument(ctx context.Context, path string) (*model.DocumentSnapshot, error) {
	snap := &model.DocumentSnapshot{ID: firestore.DocumentID(path), Path: path}
	var record documentRecord
	err := s.coll.FindOne(ctx, bson.M{keyPath: path}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return snap, nil
	}
	if err != nil {
		return nil, apperrors.WrapError(err, "read "+path)
	}
	snap.Exists = true
	snap.Fields = normalizeMap(record.Fields)
	return snap, nil
}

func (s *Store) readCollection(ctx context.Context, path string, q *Query) (*model.QuerySnapshot, error) {
	filter, err := q.filter(path)
	if err != nil {
		return nil, apperrors.NewInfrastructureError(err.Error()).WithCode("INVALID_QUERY")
	}
	cur, err := s.coll.Find(ctx, filter, q.findOptions())
	if err != nil {
		return nil, apperrors.WrapError(err, "query "+path)
	}
	defer cur.Close(ctx)

	snap := &model.QuerySnapshot{}
	for cur.Next(ctx) {
		var record documentRecord
		if err := cur.Decode(&record); err != nil {
			s.log.Warnf("skipping undecodable document in %s: %v", path, err)
			continue
		}
		snap.Docs = append(snap.Docs, &model.DocumentSnapshot{
			ID:     record.DocID,
			Path:   record.Path,
			Exists: true,
			Fields: normalizeMap(record.Fields),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, apperrors.WrapError(err, "query "+path)
	}
	return snap, nil
}

// observe emits read once, then again after every change matched by match
// until unsubscribed. Reads run on a dedicated goroutine per subscription.
func observe[T any](s *Store, match bson.D, read func(ctx context.Context) (T, error)) replay.Observable[T] {
	return replay.ObservableFunc[T](func(next func(T), fail func(error)) replay.Subscription {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			report := func(err error) {
				if ctx.Err() != nil {
					return
				}
				if fail != nil {
					fail(err)
				}
			}
			emit := func() bool {
				readCtx, done := context.WithTimeout(ctx, s.timeout)
				defer done()
				v, err := read(readCtx)
				if err != nil {
					report(err)
					return false
				}
				if ctx.Err() == nil {
					next(v)
				}
				return true
			}

			if !s.live {
				emit()
				return
			}

			// open the stream before the first read so no change is missed
			stream, err := s.coll.Watch(ctx, mongo.Pipeline{match})
			if err != nil {
				report(apperrors.WrapError(err, "watch documents"))
				return
			}
			defer stream.Close(context.Background())

			if !emit() {
				return
			}
			for stream.Next(ctx) {
				if !emit() {
					return
				}
			}
			if err := stream.Err(); err != nil {
				report(apperrors.WrapError(err, "watch documents"))
			}
		}()
		return replay.SubscriptionFunc(cancel)
	})
}

// flattenSet turns nested maps into dotted $set keys so merges keep sibling fields.
func flattenSet(prefix string, fields map[string]any, out bson.M) {
	for k, v := range fields {
		key := prefix + k
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flattenSet(key+".", nested, out)
			continue
		}
		out[key] = v
	}
}

// normalizeMap converts decoded BSON values to plain Go values.
func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.M:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case primitive.D:
		return normalizeMap(val.Map())
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case int32:
		return int64(val)
	}
	return v
}

func normalize(path string) string {
	return firestore.BuildDocumentPath(firestore.ParseDocumentPath(path)...)
}
