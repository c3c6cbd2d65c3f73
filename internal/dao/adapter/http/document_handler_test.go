package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firestore-dao/internal/dao"
	daohttp "firestore-dao/internal/dao/adapter/http"
	"firestore-dao/internal/dao/adapter/persistence/memory"
	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/replay"
	"firestore-dao/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type city struct {
	model.Base
	Name       string `firestore:"name" validate:"size(value) >= 2"`
	Population int    `firestore:"population,omitempty" validate:"value >= 0"`
}

type fixture struct {
	store   *memory.Store
	manager *dao.CacheManager
	dao     *dao.Dao[*city]
	app     *fiber.App
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), manager: dao.NewCacheManager(nil)}
	f.dao = dao.New(f.store, "countries/?/cities", func() *city { return &city{} },
		dao.WithCacheManager(f.manager),
		dao.WithLogger(logger.NewNopLogger()),
	)
	t.Cleanup(f.dao.Close)

	f.app = fiber.New()
	daohttp.NewDocumentHandler(f.dao, nil, "name").RegisterRoutes(f.app)
	return f
}

func (f *fixture) seed(t *testing.T, path string, fields map[string]any) {
	t.Helper()
	require.NoError(t, f.store.WriteDocument(context.Background(), path, fields, model.WriteOptions{}))
}

func (f *fixture) stored(t *testing.T, path string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := replay.First(ctx, f.store.ReadDocument(path))
	require.NoError(t, err)
	require.True(t, snap.Exists, path)
	return snap.Fields
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestDocumentHandler_Create(t *testing.T) {
	f := newFixture(t)

	status, raw := f.do(t, http.MethodPost, "/countries/fr/cities", `{"name":"Paris","population":2100000}`)
	require.Equal(t, http.StatusCreated, status, string(raw))

	doc := decode[daohttp.DocumentResponse](t, raw)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, "countries/fr/cities/"+doc.ID, doc.Path)
	assert.Equal(t, "Paris", doc.Data["name"])
	assert.EqualValues(t, 2100000, doc.Data["population"])

	stored := f.stored(t, doc.Path)
	assert.Equal(t, "Paris", stored["name"])
	assert.IsType(t, time.Time{}, stored["_updateDate"])
}

func TestDocumentHandler_Create_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "rule", body: `{"name":"P"}`, status: http.StatusUnprocessableEntity, code: "INVALID_FORM"},
		{name: "required", body: `{"population":5}`, status: http.StatusUnprocessableEntity, code: "INVALID_FORM"},
		{name: "unknown field", body: `{"name":"Paris","mayor":"Anne"}`, status: http.StatusBadRequest, code: "UNKNOWN_FIELD"},
		{name: "not an object", body: `[1,2]`, status: http.StatusBadRequest, code: "INVALID_BODY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			status, raw := f.do(t, http.MethodPost, "/countries/fr/cities", tt.body)
			assert.Equal(t, tt.status, status, string(raw))
			assert.Equal(t, tt.code, decode[daohttp.ErrorResponse](t, raw).Code)
			assert.Zero(t, f.store.Len())
		})
	}
}

func TestDocumentHandler_Create_ValidationDetails(t *testing.T) {
	f := newFixture(t)
	status, raw := f.do(t, http.MethodPost, "/countries/fr/cities", `{"name":"P","population":-1}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	resp := decode[daohttp.ErrorResponse](t, raw)
	assert.Equal(t, map[string]any{
		"name":       []any{"size(value) >= 2"},
		"population": []any{"value >= 0"},
	}, resp.Details["errors"])
}

func TestDocumentHandler_Get(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris"})

	status, raw := f.do(t, http.MethodGet, "/countries/fr/cities/paris", "")
	require.Equal(t, http.StatusOK, status, string(raw))
	doc := decode[daohttp.DocumentResponse](t, raw)
	assert.Equal(t, "paris", doc.ID)
	assert.Equal(t, "countries/fr/cities/paris", doc.Path)
	assert.Equal(t, map[string]any{"name": "Paris"}, doc.Data)

	status, raw = f.do(t, http.MethodGet, "/countries/fr/cities/lyon", "")
	assert.Equal(t, http.StatusNotFound, status, string(raw))
}

func TestDocumentHandler_Replace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris", "population": 2100000})

	status, raw := f.do(t, http.MethodPut, "/countries/fr/cities/paris", `{"name":"Paname"}`)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "paris", decode[daohttp.DocumentResponse](t, raw).ID)

	stored := f.stored(t, "countries/fr/cities/paris")
	assert.Equal(t, "Paname", stored["name"])
	assert.NotContains(t, stored, "population", "replace drops omitted fields")
}

func TestDocumentHandler_Patch(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris", "population": 2100000})

	status, raw := f.do(t, http.MethodPatch, "/countries/fr/cities/paris", `{"population":2200000}`)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, map[string]any{"id": "paris", "updated": []any{"population"}}, decode[map[string]any](t, raw))

	stored := f.stored(t, "countries/fr/cities/paris")
	assert.Equal(t, "Paris", stored["name"])
	assert.EqualValues(t, 2200000, stored["population"])

	status, raw = f.do(t, http.MethodPatch, "/countries/fr/cities/paris", `{"mayor":"Anne"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UNKNOWN_FIELD", decode[daohttp.ErrorResponse](t, raw).Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris"})

	status, _ := f.do(t, http.MethodDelete, "/countries/fr/cities/paris", "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Zero(t, f.store.Len())

	status, _ = f.do(t, http.MethodDelete, "/countries/fr/cities/paris", "")
	assert.Equal(t, http.StatusNoContent, status, "deleting a missing document succeeds")
}

func TestDocumentHandler_List(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "countries/fr/cities/paris", map[string]any{"name": "Paris", "population": 2100000})
	f.seed(t, "countries/fr/cities/lyon", map[string]any{"name": "Lyon", "population": 520000})
	f.seed(t, "countries/fr/cities/nice", map[string]any{"name": "Nice", "population": 340000})
	f.seed(t, "countries/it/cities/rome", map[string]any{"name": "Rome", "population": 2800000})

	names := func(raw []byte) []string {
		var out []string
		for _, d := range decode[daohttp.ListResponse](t, raw).Documents {
			out = append(out, d.Data["name"].(string))
		}
		return out
	}

	status, raw := f.do(t, http.MethodGet, "/countries/fr/cities?orderBy=population:desc&limit=2", "")
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, []string{"Paris", "Lyon"}, names(raw))

	status, raw = f.do(t, http.MethodGet, "/countries/fr/cities?where=population,<,600000&orderBy=name", "")
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, []string{"Lyon", "Nice"}, names(raw))

	status, raw = f.do(t, http.MethodGet, "/countries/fr/cities?orderBy=name&startAfter=%22Lyon%22", "")
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, []string{"Nice", "Paris"}, names(raw))

	status, _ = f.do(t, http.MethodGet, "/countries/fr/cities?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
