package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
)

// AuditSink records business actions. It is fire-and-forget: a failed write
// is logged and dropped, never propagated, so auditing can never roll back
// the business transaction it describes.
type AuditSink interface {
	Record(ctx context.Context, actorID *string, action, entityType string, entityID *string, data interface{})
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// RepoAuditSink writes audit records through the audit repository.
type RepoAuditSink struct {
	repo   auditWriter
	logger *zap.Logger
}

// NewRepoAuditSink constructs the sink.
func NewRepoAuditSink(repo auditWriter, logger *zap.Logger) *RepoAuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepoAuditSink{repo: repo, logger: logger}
}

// Record implements AuditSink.
func (s *RepoAuditSink) Record(ctx context.Context, actorID *string, action, entityType string, entityID *string, data interface{}) {
	var payload []byte
	if data != nil {
		var err error
		payload, err = json.Marshal(data)
		if err != nil {
			s.logger.Warn("audit payload marshal failed", zap.String("action", action), zap.Error(err))
		}
	}
	log := &models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       payload,
	}
	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.Error(err))
	}
}

// NopAuditSink discards all records; used in tests.
type NopAuditSink struct{}

// Record implements AuditSink.
func (NopAuditSink) Record(context.Context, *string, string, string, *string, interface{}) {}
