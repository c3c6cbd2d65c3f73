package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	daohttp "firestore-dao/internal/dao/adapter/http"
	"firestore-dao/internal/dao/adapter/security"
	"firestore-dao/internal/shared/contextkeys"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type mockClearer struct {
	mock.Mock
}

func (m *mockClearer) ClearAll(ctx context.Context, reason string) (int, error) {
	args := m.Called(ctx, reason)
	return args.Int(0), args.Error(1)
}

type MiddlewareTestSuite struct {
	suite.Suite
	app    *fiber.App
	tokens *security.TokenService
}

func (suite *MiddlewareTestSuite) SetupTest() {
	tokens, err := security.NewTokenService("a-test-secret-of-some-length", "firestore-dao", time.Minute)
	require.NoError(suite.T(), err)
	suite.tokens = tokens

	suite.app = fiber.New()
	suite.app.Use(daohttp.RequestID(), daohttp.RequestContext())
	suite.app.Use(daohttp.NewAuthMiddleware(tokens).Protect())
	suite.app.Get("/protected", func(c *fiber.Ctx) error {
		userID, ok := daohttp.GetUserID(c)
		if !ok {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "user_id not found"})
		}
		requestID, _ := c.UserContext().Value(contextkeys.RequestIDKey).(string)
		return c.JSON(fiber.Map{
			"user_id":     userID,
			"ctx_user_id": c.UserContext().Value(contextkeys.UserIDKey),
			"request_id":  requestID,
		})
	})
}

func (suite *MiddlewareTestSuite) TestProtect_BearerToken() {
	token, err := suite.tokens.GenerateToken("user-123")
	require.NoError(suite.T(), err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := suite.app.Test(req)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	body := decodeResponse[map[string]any](suite.T(), resp)
	assert.Equal(suite.T(), "user-123", body["user_id"])
	assert.Equal(suite.T(), "user-123", body["ctx_user_id"])
	assert.NotEmpty(suite.T(), body["request_id"])
	assert.Equal(suite.T(), body["request_id"], resp.Header.Get(fiber.HeaderXRequestID))
}

func (suite *MiddlewareTestSuite) TestProtect_QueryToken() {
	token, err := suite.tokens.GenerateToken("user-123")
	require.NoError(suite.T(), err)

	resp, err := suite.app.Test(httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
}

func (suite *MiddlewareTestSuite) TestProtect_NoToken() {
	resp, err := suite.app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (suite *MiddlewareTestSuite) TestProtect_InvalidToken() {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	resp, err := suite.app.Test(req)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareTestSuite))
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return decode[T](t, raw)
}

func TestSessionHandler_SignOut(t *testing.T) {
	clearer := &mockClearer{}
	clearer.On("ClearAll", mock.Anything, "signout").Return(3, nil).Once()

	app := fiber.New()
	daohttp.NewSessionHandler(clearer, nil).RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/auth/signout", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"cleared": float64(3), "broadcast": true}, decodeResponse[map[string]any](t, resp))
	clearer.AssertExpectations(t)
}

func TestSessionHandler_SignOut_BroadcastFailure(t *testing.T) {
	clearer := &mockClearer{}
	clearer.On("ClearAll", mock.Anything, "signout").Return(2, errors.New("redis down"))

	app := fiber.New()
	daohttp.NewSessionHandler(clearer, nil).RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/auth/signout", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"cleared": float64(2), "broadcast": false}, decodeResponse[map[string]any](t, resp))
}

func TestLocalClearer(t *testing.T) {
	f := newFixture(t)
	cleared, err := daohttp.LocalClearer{Manager: f.manager}.ClearAll(context.Background(), "signout")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
}
