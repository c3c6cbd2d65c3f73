package dao

import (
	"firestore-dao/internal/dao/domain/model"
	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/dao/mapper"
	"firestore-dao/internal/shared/logger"
)

// GetOptions controls GetByID.
type GetOptions struct {
	// PathIDs fill the template placeholders in order.
	PathIDs []string
	// NoCache bypasses the replay cache and opens a dedicated upstream.
	NoCache bool
}

// ListOptions controls GetList. Clauses are passed to the store unchanged.
type ListOptions struct {
	PathIDs []string
	Where   []model.Where
	OrderBy []model.OrderBy
	// Limit caps the result size; zero or negative means no limit.
	Limit   int
	NoCache bool
	// Offset anchors pagination. Its values are literals, or models previously
	// fetched through a DAO.
	Offset *model.Offset
}

// SaveOptions controls Save.
type SaveOptions struct {
	// DocID is the document to write; empty uses the model id, then a store assigned one.
	DocID   string
	PathIDs []string
	// Overwrite replaces the whole document instead of merging fields.
	Overwrite bool
	// Force writes a pristine form anyway.
	Force bool
}

// SaveTarget is what Save writes: a model or a form.
type SaveTarget[M model.Model] struct {
	model M
	form  repository.Form
}

// ModelTarget saves m as it is.
func ModelTarget[M model.Model](m M) SaveTarget[M] {
	return SaveTarget[M]{model: m}
}

// FormTarget saves the value of f once it is modified and valid.
func FormTarget[M model.Model](f repository.Form) SaveTarget[M] {
	return SaveTarget[M]{form: f}
}

// IsForm reports whether the target wraps a form.
func (t SaveTarget[M]) IsForm() bool {
	return t.form != nil
}

// Option configures a Dao.
type Option func(*settings)

type settings struct {
	log        logger.Logger
	manager    *CacheManager
	notifier   *mapper.MissingFieldNotifier
	beforeSave any
}

// WithLogger sets the logger of the DAO and its cache.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithCacheManager registers the DAO with m instead of the process-wide manager.
func WithCacheManager(m *CacheManager) Option {
	return func(s *settings) { s.manager = m }
}

// WithNotifier shares the unknown field notifier of the DAO's mapper.
func WithNotifier(n *mapper.MissingFieldNotifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithBeforeSave installs a hook applied to every model right before it is written.
func WithBeforeSave[M model.Model](fn func(M) M) Option {
	return func(s *settings) { s.beforeSave = fn }
}
