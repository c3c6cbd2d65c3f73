package repository

import (
	"context"

	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/replay"
)

// DocumentStore is the document database a DAO reads from and writes to.
//
// Read methods return live observables: they emit a snapshot on subscription and
// again after every change until unsubscribed. Paths never carry a leading slash.
type DocumentStore interface {
	// ReadDocument observes one document. Missing documents emit a snapshot with Exists false.
	ReadDocument(path string) replay.Observable[*model.DocumentSnapshot]

	// ReadCollection observes the documents of a collection refined by build.
	ReadCollection(path string, build func(Query) Query) replay.Observable[*model.QuerySnapshot]

	// WriteDocument sets the fields of a document, merging when opts.Merge is set.
	WriteDocument(ctx context.Context, path string, fields map[string]any, opts model.WriteOptions) error

	// AddDocument creates a document with a store assigned id and returns that id.
	AddDocument(ctx context.Context, collectionPath string, fields map[string]any) (string, error)

	// DeleteDocument removes a document. Deleting a missing document is not an error.
	DeleteDocument(ctx context.Context, path string) error
}

// Query refines a collection read. Clauses are applied in call order and passed
// through to the store as they are.
type Query interface {
	Where(field, operator string, value any) Query
	OrderBy(field string, direction model.Direction) Query
	Limit(n int) Query
	StartAt(cursor any) Query
	StartAfter(cursor any) Query
	EndAt(cursor any) Query
	EndBefore(cursor any) Query
}
