package firestore

import (
	"strings"

	"firestore-dao/internal/shared/errors"
)

const (
	// Placeholder marks a positional identifier in a collection path template.
	Placeholder = "?"
	// Separator joins path segments.
	Separator = "/"
)

// Resolve substitutes each placeholder of template with the identifier at the same
// position and appends docID as a trailing segment when it is not empty. Each id
// must be one non-empty segment; docID may be empty but never contain Separator.
//
//	Resolve("orgs/?/users", []string{"org1"}, "u42") // "orgs/org1/users/u42"
func Resolve(template string, ids []string, docID string) (string, error) {
	segments := ParseDocumentPath(template)
	want := PlaceholderCount(template)
	if len(ids) < want {
		return "", errors.NewMissingIdentifierError(template, want, len(ids))
	}

	resolved := make([]string, 0, len(segments)+1)
	next := 0
	for _, segment := range segments {
		if segment == Placeholder {
			if !validSegment(ids[next]) {
				return "", errors.NewInvalidIdentifierError(template, ids[next], next)
			}
			resolved = append(resolved, ids[next])
			next++
			continue
		}
		resolved = append(resolved, segment)
	}
	if docID != "" {
		if !validSegment(docID) {
			return "", errors.NewInvalidIdentifierError(template, docID, want)
		}
		resolved = append(resolved, docID)
	}
	return BuildDocumentPath(resolved...), nil
}

func validSegment(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.Contains(id, Separator)
}

// IsCompatible reports whether concretePath addresses the collection described by
// template, or one document directly inside it. Placeholders match any segment.
func IsCompatible(template, concretePath string) bool {
	if strings.Trim(template, Separator) == "" {
		return false
	}
	tpl := ParseDocumentPath(template)
	path := ParseDocumentPath(concretePath)

	if len(path) != len(tpl) && len(path) != len(tpl)+1 {
		return false
	}
	for i, segment := range tpl {
		if segment != Placeholder && segment != path[i] {
			return false
		}
	}
	return true
}

// PlaceholderCount returns how many positional identifiers template expects.
func PlaceholderCount(template string) int {
	count := 0
	for _, segment := range ParseDocumentPath(template) {
		if segment == Placeholder {
			count++
		}
	}
	return count
}

// PathIDs extracts, in order, the segments of concretePath sitting at placeholder
// positions of template. It returns nil when the path is not compatible.
func PathIDs(template, concretePath string) []string {
	if !IsCompatible(template, concretePath) {
		return nil
	}
	path := ParseDocumentPath(concretePath)
	var ids []string
	for i, segment := range ParseDocumentPath(template) {
		if segment == Placeholder {
			ids = append(ids, path[i])
		}
	}
	return ids
}

// ParseDocumentPath splits a path into its non-empty segments
func ParseDocumentPath(documentPath string) []string {
	if documentPath == "" {
		return []string{}
	}

	segments := strings.Split(documentPath, Separator)
	result := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment != "" {
			result = append(result, segment)
		}
	}

	return result
}

// BuildDocumentPath constructs a path from segments
func BuildDocumentPath(segments ...string) string {
	return strings.Join(segments, Separator)
}

// ParentPath returns the collection path holding the document at documentPath
func ParentPath(documentPath string) string {
	segments := ParseDocumentPath(documentPath)
	if len(segments) <= 1 {
		return ""
	}
	return BuildDocumentPath(segments[:len(segments)-1]...)
}

// DocumentID returns the last segment of documentPath
func DocumentID(documentPath string) string {
	segments := ParseDocumentPath(documentPath)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// IsDocumentPath checks if a path represents a document
func IsDocumentPath(path string) bool {
	segments := ParseDocumentPath(path)
	return len(segments) > 0 && len(segments)%2 == 0
}

// IsCollectionPath checks if a path represents a collection
func IsCollectionPath(path string) bool {
	segments := ParseDocumentPath(path)
	return len(segments) > 0 && len(segments)%2 == 1
}
