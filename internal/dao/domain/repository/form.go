package repository

// Form is an editable set of fields saved through a DAO.
type Form interface {
	// Value returns the current field values.
	Value() map[string]any
	// Pristine reports whether the form was left untouched since it was built.
	Pristine() bool
	Valid() bool
	// Errors returns the validation errors keyed by field name.
	Errors() map[string]any
}
