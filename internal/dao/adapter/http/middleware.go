package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"firestore-dao/internal/dao"
	"firestore-dao/internal/dao/adapter/security"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/contextkeys"
	"firestore-dao/internal/shared/logger"
	"firestore-dao/internal/shared/utils"
)

const localUserID = "user_id"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*security.Claims, error)
}

// AuthMiddleware provides authentication middleware for Fiber
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequestID tags every request with an id stored in its locals.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// RequestContext copies the request id into the user context.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok && id != "" {
			c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// Protect returns middleware that requires a valid bearer token.
func (m *AuthMiddleware) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return writeError(c, apperrors.NewAuthenticationError("Authentication required"))
		}
		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			return writeError(c, apperrors.NewAuthenticationError("Invalid token").WithCause(err))
		}

		c.Locals(localUserID, claims.UserID)
		c.SetUserContext(utils.WithUserID(c.UserContext(), claims.UserID))
		return c.Next()
	}
}

// extractToken reads the Authorization header, then the token query parameter
// used by websocket clients.
func extractToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// GetUserID returns the authenticated user of the request.
func GetUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals(localUserID).(string)
	return userID, ok && userID != ""
}

// CacheClearer drops every DAO cache and reports how many were cleared.
type CacheClearer interface {
	ClearAll(ctx context.Context, reason string) (int, error)
}

// LocalClearer clears the caches of one process.
type LocalClearer struct {
	Manager *dao.CacheManager
}

// ClearAll implements CacheClearer.
func (l LocalClearer) ClearAll(context.Context, string) (int, error) {
	return l.Manager.ClearAll(), nil
}

// SessionHandler ends user sessions.
type SessionHandler struct {
	clearer CacheClearer
	log     logger.Logger
}

// NewSessionHandler creates a handler clearing caches through clearer on sign out.
func NewSessionHandler(clearer CacheClearer, log logger.Logger) *SessionHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SessionHandler{clearer: clearer, log: log.WithComponent("session-handler")}
}

// RegisterRoutes registers POST /auth/signout.
func (h *SessionHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/auth/signout", h.SignOut)
}

// SignOut clears every cached read so the next user starts from fresh data.
// A failed broadcast still reports the local clear.
func (h *SessionHandler) SignOut(c *fiber.Ctx) error {
	userID, _ := GetUserID(c)
	cleared, err := h.clearer.ClearAll(c.UserContext(), "signout")
	if err != nil {
		h.log.WithContext(c.UserContext()).Warnf("cache clear broadcast failed for %q: %v", userID, err)
	}
	return c.JSON(fiber.Map{
		"cleared":   cleared,
		"broadcast": err == nil,
	})
}
