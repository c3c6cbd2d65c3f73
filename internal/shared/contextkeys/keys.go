package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "firestore-dao context key " + string(c)
}

// RequestIDKey is the key for the request identifier in context.Context
const RequestIDKey = contextKey("requestID")

// UserIDKey is the key for the authenticated subject in context.Context
const UserIDKey = contextKey("userID")

// OperationKey is the key for the DAO operation name in context.Context
const OperationKey = contextKey("operation")

// CollectionKey is the key for the collection path template in context.Context
const CollectionKey = contextKey("collection")
