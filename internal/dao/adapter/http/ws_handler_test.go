package http_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	daohttp "firestore-dao/internal/dao/adapter/http"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebSocketApp(t *testing.T, f *fixture) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	daohttp.NewWebSocketHandler(f.dao, nil).RegisterRoutes(app, "/ws/v1/listen")
	return app
}

func TestWebSocketHandler_RequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	app := newWebSocketApp(t, f)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/v1/listen/countries/fr/cities", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocketHandler_StreamsList(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris"})
	app := newWebSocketApp(t, f)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/ws/v1/listen/countries/fr/cities?orderBy=name"
	conn, _, err := fastws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() daohttp.WebSocketMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg daohttp.WebSocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	ids := func(msg daohttp.WebSocketMessage) []string {
		var out []string
		for _, d := range msg.Documents {
			out = append(out, d.ID)
		}
		return out
	}

	first := read()
	assert.Equal(t, daohttp.MessageSnapshot, first.Type)
	assert.Equal(t, []string{"paris"}, ids(first))

	f.seed(t, "countries/fr/cities/lyon", map[string]any{"name": "Lyon"})
	next := read()
	assert.Equal(t, daohttp.MessageSnapshot, next.Type)
	assert.Equal(t, []string{"lyon", "paris"}, ids(next))
}

func TestWebSocketHandler_ResubscribesAfterCacheClear(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris"})
	app := newWebSocketApp(t, f)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/ws/v1/listen/countries/fr/cities?orderBy=name"
	conn, _, err := fastws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() daohttp.WebSocketMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg daohttp.WebSocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	require.Equal(t, daohttp.MessageSnapshot, first.Type)
	require.Len(t, first.Documents, 1)

	f.dao.ClearCache()
	fresh := read()
	assert.Equal(t, daohttp.MessageSnapshot, fresh.Type, "a cleared cache is not reported as an error")
	require.Len(t, fresh.Documents, 1)
	assert.Equal(t, "paris", fresh.Documents[0].ID)

	f.seed(t, "countries/fr/cities/lyon", map[string]any{"name": "Lyon"})
	next := read()
	assert.Equal(t, daohttp.MessageSnapshot, next.Type)
	assert.Len(t, next.Documents, 2, "the connection keeps streaming after the clear")
}

func TestWebSocketHandler_InvalidQuery(t *testing.T) {
	f := newFixture(t)
	app := newWebSocketApp(t, f)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	_, resp, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/v1/listen/countries/fr/cities?limit=many", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
