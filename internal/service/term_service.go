package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

const currentTermCacheKey = "term:current"

type termRepo interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	FindCurrent(ctx context.Context) (*models.Term, error)
	List(ctx context.Context) ([]models.Term, error)
	SetCurrent(ctx context.Context, id string) error
}

// TermService serves the term catalogue and the current-term singleton,
// caching the latter in Redis. SetCurrent reassigns the flag atomically and
// invalidates the cache.
type TermService struct {
	repo     termRepo
	cache    *redis.Client
	cacheTTL time.Duration
	metrics  *MetricsService
	audit    AuditSink
	logger   *zap.Logger
}

// NewTermService constructs TermService. cache may be nil, in which case
// every read goes to the database.
func NewTermService(repo termRepo, cache *redis.Client, cacheTTL time.Duration, metrics *MetricsService, audit AuditSink, logger *zap.Logger) *TermService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TermService{repo: repo, cache: cache, cacheTTL: cacheTTL, metrics: metrics, audit: audit, logger: logger}
}

// List returns all terms.
func (s *TermService) List(ctx context.Context) ([]models.Term, error) {
	terms, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, nil
}

// Get returns a term by ID.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Current returns the term flagged as current, serving from cache when
// possible.
func (s *TermService) Current(ctx context.Context) (*models.Term, error) {
	if term := s.fromCache(ctx); term != nil {
		return term, nil
	}

	term, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoCurrentTerm
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}
	s.toCache(ctx, term)
	return term, nil
}

// SetCurrent moves the current flag to the given term and drops the cached
// value. The repository clears and sets the flag in one transaction so at
// most one term is current at any instant.
func (s *TermService) SetCurrent(ctx context.Context, id string, actorID *string) (*models.Term, error) {
	if err := s.repo.SetCurrent(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current term")
	}
	s.invalidate(ctx)

	s.audit.Record(ctx, actorID, models.AuditActionTermSetCurrent, "term", &id, nil)
	return s.Get(ctx, id)
}

func (s *TermService) fromCache(ctx context.Context) *models.Term {
	if s.cache == nil {
		return nil
	}
	start := time.Now()
	raw, err := s.cache.Get(ctx, currentTermCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("current term cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
		return nil
	}
	var term models.Term
	if err := json.Unmarshal(raw, &term); err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		s.invalidate(ctx)
		return nil
	}
	s.metrics.RecordCacheOperation(true, time.Since(start))
	return &term
}

func (s *TermService) toCache(ctx context.Context, term *models.Term) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(term)
	if err != nil {
		return
	}
	start := time.Now()
	if err := s.cache.Set(ctx, currentTermCacheKey, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("current term cache write failed", zap.Error(err))
		return
	}
	s.metrics.ObserveCacheWrite(time.Since(start))
}

func (s *TermService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, currentTermCacheKey).Err(); err != nil {
		s.logger.Warn("current term cache invalidation failed", zap.Error(err))
	}
}
