package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKey_String(t *testing.T) {
	key := contextKey("testKey")
	assert.Equal(t, "firestore-dao context key testKey", key.String())
}

func TestContextKeys_Usage(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-456")
	ctx = context.WithValue(ctx, UserIDKey, "user-1")
	ctx = context.WithValue(ctx, OperationKey, "save")
	ctx = context.WithValue(ctx, CollectionKey, "orgs/?/users")

	assert.Equal(t, "req-456", ctx.Value(RequestIDKey))
	assert.Equal(t, "user-1", ctx.Value(UserIDKey))
	assert.Equal(t, "save", ctx.Value(OperationKey))
	assert.Equal(t, "orgs/?/users", ctx.Value(CollectionKey))
	assert.Nil(t, ctx.Value(contextKey("other")))
}
