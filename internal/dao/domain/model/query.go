package model

// Where is a single filter condition of a list query.
type Where struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Direction is a sort direction.
type Direction string

const (
	// Ascending is used for ordering in ascending order.
	Ascending Direction = "asc"
	// Descending is used for ordering in descending order.
	Descending Direction = "desc"
)

// OrderBy is the sort clause of a list query.
type OrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Offset anchors pagination. Each bound is either a literal value of the ordered
// field or a Model fetched earlier, used as a document cursor.
type Offset struct {
	StartAt    any
	StartAfter any
	EndAt      any
	EndBefore  any
}

// IsZero reports whether no bound is set.
func (o *Offset) IsZero() bool {
	return o == nil || (o.StartAt == nil && o.StartAfter == nil && o.EndAt == nil && o.EndBefore == nil)
}

// Cursor is a document used as a pagination anchor, as handed to a store.
type Cursor struct {
	Path   string         `json:"path"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"-"`
}

// Operator types for filters
const (
	OperatorEqual              = "=="
	OperatorNotEqual           = "!="
	OperatorLessThan           = "<"
	OperatorLessThanOrEqual    = "<="
	OperatorGreaterThan        = ">"
	OperatorGreaterThanOrEqual = ">="
	OperatorArrayContains      = "array-contains"
	OperatorArrayContainsAny   = "array-contains-any"
	OperatorIn                 = "in"
	OperatorNotIn              = "not-in"
)
