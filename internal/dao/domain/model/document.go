package model

import "time"

// DocumentSnapshot is one read of a document.
type DocumentSnapshot struct {
	ID        string
	Path      string
	Exists    bool
	FromCache bool
	Fields    map[string]any
}

// Data returns the raw field map, nil when the document does not exist.
func (s *DocumentSnapshot) Data() map[string]any {
	if s == nil || !s.Exists {
		return nil
	}
	return s.Fields
}

// QuerySnapshot is one read of a collection query, in store order.
type QuerySnapshot struct {
	Docs []*DocumentSnapshot
}

// Size returns the number of documents in the snapshot.
func (s *QuerySnapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.Docs)
}

// DocumentRef addresses a document by its full path.
type DocumentRef struct {
	Path string
}

// ID returns the last path segment.
func (r DocumentRef) ID() string {
	for i := len(r.Path) - 1; i >= 0; i-- {
		if r.Path[i] == '/' {
			return r.Path[i+1:]
		}
	}
	return r.Path
}

// WriteOptions controls a document write.
type WriteOptions struct {
	// Merge keeps fields absent from the write; false replaces the document.
	Merge bool
}

// FieldValue represents special server-side values like ServerTimestamp.
type FieldValue string

const (
	// ServerTimestamp is a sentinel value to set a field to the server's timestamp.
	ServerTimestamp FieldValue = "ServerTimestamp"
)

// UpdateDateField is the reserved field stamped with ServerTimestamp on every write.
const UpdateDateField = "_updateDate"

// ResolveServerValues returns a copy of fields with ServerTimestamp sentinels replaced by now.
func ResolveServerValues(fields map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case FieldValue:
			if val == ServerTimestamp {
				out[k] = now
				continue
			}
			out[k] = val
		case map[string]any:
			out[k] = ResolveServerValues(val, now)
		default:
			out[k] = v
		}
	}
	return out
}
