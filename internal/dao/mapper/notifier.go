package mapper

import (
	"sync"

	"firestore-dao/internal/shared/logger"
)

// MissingFieldNotifier warns once per model type and field about stored data that
// has no declared field to land in.
type MissingFieldNotifier struct {
	mu   sync.Mutex
	seen map[string]struct{}
	log  logger.Logger
}

// NewMissingFieldNotifier creates a notifier. A nil logger uses the package default.
func NewMissingFieldNotifier(log logger.Logger) *MissingFieldNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &MissingFieldNotifier{seen: map[string]struct{}{}, log: log}
}

// Notify logs a warning the first time the (typeName, field) pair is reported and
// returns whether it did.
func (n *MissingFieldNotifier) Notify(typeName, field string) bool {
	key := typeName + "." + field
	n.mu.Lock()
	if _, ok := n.seen[key]; ok {
		n.mu.Unlock()
		return false
	}
	n.seen[key] = struct{}{}
	n.mu.Unlock()

	n.log.WithFields(map[string]interface{}{
		"model": typeName,
		"field": field,
	}).Warnf("field %q is not declared on %s, consider adding it to the model", field, typeName)
	return true
}

// NotifyMismatch logs once per (typeName, field) when a stored value cannot be
// converted to the declared field type.
func (n *MissingFieldNotifier) NotifyMismatch(typeName, field string, err error) bool {
	key := typeName + "." + field + "#type"
	n.mu.Lock()
	if _, ok := n.seen[key]; ok {
		n.mu.Unlock()
		return false
	}
	n.seen[key] = struct{}{}
	n.mu.Unlock()

	n.log.WithFields(map[string]interface{}{
		"model": typeName,
		"field": field,
	}).Warnf("dropping value of %s.%s: %v", typeName, field, err)
	return true
}

// Reset forgets every pair reported so far.
func (n *MissingFieldNotifier) Reset() {
	n.mu.Lock()
	n.seen = map[string]struct{}{}
	n.mu.Unlock()
}
