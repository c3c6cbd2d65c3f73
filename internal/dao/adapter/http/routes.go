// Package http exposes DAOs over REST and websocket endpoints.
package http

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	"firestore-dao/internal/dao"
	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/mapper"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/firestore"
)

const docIDParam = "docId"

// RoutePath turns a collection template into a route, one parameter per placeholder:
// "orgs/?/users" becomes "/orgs/:id0/users".
func RoutePath(template string) string {
	segments := firestore.ParseDocumentPath(template)
	n := 0
	for i, s := range segments {
		if s == "?" {
			segments[i] = ":" + idParam(n)
			n++
		}
	}
	return "/" + strings.Join(segments, "/")
}

func idParam(i int) string {
	return "id" + strconv.Itoa(i)
}

// routeIDs collects the placeholder values of the current route.
func routeIDs(template string, param func(string) string) []string {
	count := firestore.PlaceholderCount(template)
	if count == 0 {
		return nil
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = param(idParam(i))
	}
	return ids
}

// DocumentResponse is the wire form of a model.
type DocumentResponse struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	UpdateDate *time.Time     `json:"updateDate,omitempty"`
	Data       map[string]any `json:"data"`
}

// ListResponse is the wire form of a list read.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Count     int                `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func toDocument(m model.Model) DocumentResponse {
	meta := m.Meta()
	doc := DocumentResponse{
		ID:   meta.ID,
		Path: model.DocumentPath(m),
		Data: mapper.ToRaw(m),
	}
	if !meta.UpdateDate.IsZero() {
		at := meta.UpdateDate
		doc.UpdateDate = &at
	}
	return doc
}

func toDocuments[M model.Model](models []M) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(models))
	for _, m := range models {
		out = append(out, toDocument(m))
	}
	return out
}

func toErrorResponse(err error) ErrorResponse {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return ErrorResponse{
			Error:   string(appErr.Type),
			Code:    appErr.Code,
			Message: appErr.Error(),
			Details: appErr.Details,
		}
	}
	return ErrorResponse{Error: string(apperrors.ErrorTypeInternal), Message: err.Error()}
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(apperrors.HTTPStatus(err)).JSON(toErrorResponse(err))
}

// decodeBody reads a JSON object. Integral numbers decode as int64 so rules and
// integer model fields see integers.
func decodeBody(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return nil, apperrors.NewMissingArgumentError("body")
	}
	var fields map[string]any
	if err := jsoniter.Unmarshal(body, &fields); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeValidation, "request body must be a JSON object", fiber.StatusBadRequest).
			WithCode("INVALID_BODY").WithCause(err)
	}
	if fields == nil {
		return nil, apperrors.NewMissingArgumentError("body")
	}
	return normalizeMap(fields), nil
}

// decodeValue reads a query parameter value: JSON when it parses, the raw string otherwise.
func decodeValue(raw string) any {
	var v any
	if err := jsoniter.UnmarshalFromString(raw, &v); err != nil {
		return raw
	}
	return normalizeJSON(v)
}

func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeJSON(v)
	}
	return m
}

func normalizeJSON(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	case map[string]any:
		return normalizeMap(val)
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
	}
	return v
}

// listOptions reads list clauses from query parameters:
//
//	where=age,>=,18  orderBy=name:desc  limit=10  startAfter="Bob"  noCache=true
//
// where and orderBy may repeat.
func listOptions(pathIDs []string, query func(string) []string) (dao.ListOptions, error) {
	opts := dao.ListOptions{PathIDs: pathIDs}

	for _, raw := range query("where") {
		parts := strings.SplitN(raw, ",", 3)
		if len(parts) != 3 || parts[0] == "" {
			return opts, apperrors.NewAppError(apperrors.ErrorTypeValidation, fmt.Sprintf("invalid where clause %q, expected field,operator,value", raw), fiber.StatusBadRequest).
				WithCode("INVALID_QUERY")
		}
		opts.Where = append(opts.Where, model.Where{Field: parts[0], Operator: parts[1], Value: decodeValue(parts[2])})
	}

	for _, raw := range query("orderBy") {
		field, dir, _ := strings.Cut(raw, ":")
		direction := model.Ascending
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			direction = model.Descending
		default:
			return opts, apperrors.NewAppError(apperrors.ErrorTypeValidation, fmt.Sprintf("invalid order direction %q", dir), fiber.StatusBadRequest).
				WithCode("INVALID_QUERY")
		}
		opts.OrderBy = append(opts.OrderBy, model.OrderBy{Field: field, Direction: direction})
	}

	if values := query("limit"); len(values) > 0 {
		limit, err := strconv.Atoi(values[0])
		if err != nil {
			return opts, apperrors.NewAppError(apperrors.ErrorTypeValidation, "limit must be an integer", fiber.StatusBadRequest).
				WithCode("INVALID_QUERY")
		}
		opts.Limit = limit
	}

	offset := &model.Offset{}
	for name, dst := range map[string]*any{
		"startAt":    &offset.StartAt,
		"startAfter": &offset.StartAfter,
		"endAt":      &offset.EndAt,
		"endBefore":  &offset.EndBefore,
	} {
		if values := query(name); len(values) > 0 {
			*dst = decodeValue(values[0])
		}
	}
	if !offset.IsZero() {
		opts.Offset = offset
	}

	if values := query("noCache"); len(values) > 0 {
		opts.NoCache, _ = strconv.ParseBool(values[0])
	}
	return opts, nil
}

// fiberQuery returns every value of a query parameter.
func fiberQuery(c *fiber.Ctx) func(string) []string {
	args := c.Context().QueryArgs()
	return func(name string) []string {
		raw := args.PeekMulti(name)
		if len(raw) == 0 {
			return nil
		}
		out := make([]string, len(raw))
		for i, v := range raw {
			out[i] = string(v)
		}
		return out
	}
}

func isNilModel(m any) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
