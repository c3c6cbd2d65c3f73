package model

import (
	"fmt"
	"time"
)

// Metadata is attached to an in-memory model and never written to storage.
type Metadata struct {
	// ID is the document identifier. Set once by the mapper or after the first write.
	ID string
	// CollectionPath is the resolved path of the collection holding the document.
	CollectionPath string
	// FromCache reports whether the snapshot came from a local cache.
	FromCache bool
	// UpdateDate is the last server-side write time, zero when unknown.
	UpdateDate time.Time
}

// Model is implemented by every type a DAO maps documents onto. Embedding Base is
// enough to satisfy it.
type Model interface {
	Meta() *Metadata
}

// Base carries the document metadata of a model.
type Base struct {
	meta Metadata
}

// Meta returns the metadata sub-structure.
func (b *Base) Meta() *Metadata {
	return &b.meta
}

// ID returns the document identifier, empty for an unsaved model.
func (b *Base) ID() string {
	return b.meta.ID
}

// CollectionPath returns the resolved collection path.
func (b *Base) CollectionPath() string {
	return b.meta.CollectionPath
}

// FromCache reports whether the model was built from a cached snapshot.
func (b *Base) FromCache() bool {
	return b.meta.FromCache
}

// UpdateDate returns the last server-side write time.
func (b *Base) UpdateDate() time.Time {
	return b.meta.UpdateDate
}

// String returns "collectionPath/id".
func (b *Base) String() string {
	return fmt.Sprintf("%s/%s", b.meta.CollectionPath, b.meta.ID)
}

// DocumentPath returns the full path of the document, empty until both parts are known.
func DocumentPath(m Model) string {
	meta := m.Meta()
	if meta.CollectionPath == "" || meta.ID == "" {
		return ""
	}
	return meta.CollectionPath + "/" + meta.ID
}
