package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"firestore-dao/internal/dao"
	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/form"
	"firestore-dao/internal/dao/replay"
	apperrors "firestore-dao/internal/shared/errors"
	"firestore-dao/internal/shared/logger"
)

// DefaultReadTimeout bounds the wait for the first value of a read.
const DefaultReadTimeout = 10 * time.Second

// DocumentHandler serves CRUD endpoints for the collection of one DAO.
type DocumentHandler[M model.Model] struct {
	dao      *dao.Dao[M]
	required []string
	timeout  time.Duration
	log      logger.Logger
}

// NewDocumentHandler creates a handler for d. Writes go through a form built
// from the model; required names the fields a create or replace must carry.
func NewDocumentHandler[M model.Model](d *dao.Dao[M], log logger.Logger, required ...string) *DocumentHandler[M] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DocumentHandler[M]{
		dao:      d,
		required: required,
		timeout:  DefaultReadTimeout,
		log:      log.WithComponent("document-handler"),
	}
}

// RegisterRoutes registers the collection and document endpoints on router.
func (h *DocumentHandler[M]) RegisterRoutes(router fiber.Router) {
	base := RoutePath(h.dao.Template())
	router.Get(base, h.List)
	router.Post(base, h.Create)
	router.Get(base+"/:"+docIDParam, h.Get)
	router.Put(base+"/:"+docIDParam, h.Replace)
	router.Patch(base+"/:"+docIDParam, h.Patch)
	router.Delete(base+"/:"+docIDParam, h.Delete)
}

func (h *DocumentHandler[M]) pathIDs(c *fiber.Ctx) []string {
	return routeIDs(h.dao.Template(), func(name string) string { return c.Params(name) })
}

func (h *DocumentHandler[M]) readContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// first awaits the first value of read, reading again when the cache is cleared
// before it arrives.
func first[T any](ctx context.Context, read func() replay.Observable[T]) (T, error) {
	for {
		v, err := replay.First(ctx, read())
		if !apperrors.IsCacheCleared(err) || ctx.Err() != nil {
			return v, err
		}
	}
}

// Get returns one document, 404 while it does not exist.
func (h *DocumentHandler[M]) Get(c *fiber.Ctx) error {
	docID := c.Params(docIDParam)
	ctx, cancel := h.readContext(c)
	defer cancel()

	opts := dao.GetOptions{PathIDs: h.pathIDs(c), NoCache: c.QueryBool("noCache")}
	m, err := first(ctx, func() replay.Observable[M] { return h.dao.GetByID(docID, opts) })
	if err != nil {
		return writeError(c, err)
	}
	if isNilModel(m) {
		return writeError(c, apperrors.NewNotFoundError("document "+docID))
	}
	return c.JSON(toDocument(m))
}

// List returns the documents matching the query parameters.
func (h *DocumentHandler[M]) List(c *fiber.Ctx) error {
	opts, err := listOptions(h.pathIDs(c), fiberQuery(c))
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := h.readContext(c)
	defer cancel()

	models, err := first(ctx, func() replay.Observable[[]M] { return h.dao.GetList(opts) })
	if err != nil {
		return writeError(c, err)
	}
	docs := toDocuments(models)
	return c.JSON(ListResponse{Documents: docs, Count: len(docs)})
}

// Create saves a new document with a store assigned id.
func (h *DocumentHandler[M]) Create(c *fiber.Ctx) error {
	m, err := h.save(c, dao.SaveOptions{PathIDs: h.pathIDs(c)})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDocument(m))
}

// Replace overwrites the document with the request body.
func (h *DocumentHandler[M]) Replace(c *fiber.Ctx) error {
	m, err := h.save(c, dao.SaveOptions{
		DocID:     c.Params(docIDParam),
		PathIDs:   h.pathIDs(c),
		Overwrite: true,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toDocument(m))
}

func (h *DocumentHandler[M]) save(c *fiber.Ctx, opts dao.SaveOptions) (M, error) {
	var zero M
	body, err := decodeBody(c.Body())
	if err != nil {
		return zero, err
	}

	g, err := form.FromModel(h.dao.NewModel(), h.required...)
	if err != nil {
		return zero, err
	}
	for _, key := range sortedKeys(body) {
		if err := g.Set(key, body[key]); err != nil {
			return zero, apperrors.NewUnknownFieldError(h.dao.ModelName(), key)
		}
	}
	// an empty object leaves the form pristine
	opts.Force = true

	return h.dao.Save(c.UserContext(), dao.FormTarget[M](g), opts)
}

// Patch merges the request body into the document.
func (h *DocumentHandler[M]) Patch(c *fiber.Ctx) error {
	body, err := decodeBody(c.Body())
	if err != nil {
		return writeError(c, err)
	}
	docID := c.Params(docIDParam)
	if _, err := h.dao.Update(c.UserContext(), body, docID, h.pathIDs(c)...); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"id": docID, "updated": sortedKeys(body)})
}

// Delete removes the document. Removing a missing document succeeds.
func (h *DocumentHandler[M]) Delete(c *fiber.Ctx) error {
	if err := h.dao.DeleteByID(c.UserContext(), c.Params(docIDParam), h.pathIDs(c)...); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
