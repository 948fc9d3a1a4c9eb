package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type auditQueue interface {
	Start(ctx context.Context)
	Stop()
	TryEnqueue(job jobs.Job) error
}

// AuditEntry describes a change to record in the audit trail.
type AuditEntry struct {
	ActorID    string
	Action     string
	ResourceID string
	Before     interface{}
	After      interface{}
	IPAddress  string
	UserAgent  string
}

// AuditService writes audit logs asynchronously through a worker pool. A full
// queue drops the entry; callers never block on the audit trail.
type AuditService struct {
	repo    auditWriter
	queue   auditQueue
	metrics *MetricsService
	logger  *zap.Logger
}

const auditJobType = "audit_log"

type requestOriginKey struct{}

type requestOrigin struct {
	ip        string
	userAgent string
}

// WithRequestOrigin attaches the caller address and user agent to ctx so audit
// entries recorded further down the call chain carry them.
func WithRequestOrigin(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestOriginKey{}, requestOrigin{ip: ip, userAgent: userAgent})
}

func originFrom(ctx context.Context) (requestOrigin, bool) {
	if ctx == nil {
		return requestOrigin{}, false
	}
	origin, ok := ctx.Value(requestOriginKey{}).(requestOrigin)
	return origin, ok
}

// NewAuditService wires the audit writer to a dedicated queue.
func NewAuditService(repo auditWriter, cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{repo: repo, metrics: metrics, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("audit", svc.process, cfg)
	return svc
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queued entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record queues an entry. Encoding problems and a saturated queue are logged and counted.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil {
		return
	}
	if origin, ok := originFrom(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = origin.ip
		}
		if entry.UserAgent == "" {
			entry.UserAgent = origin.userAgent
		}
	}
	log, err := buildAuditLog(entry)
	if err != nil {
		s.logger.Warn("audit entry not encodable", zap.String("action", entry.Action), zap.Error(err))
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: log.ID, Type: auditJobType, Payload: log}); err != nil {
		s.metrics.ObserveAuditDropped()
		s.logger.Warn("audit entry dropped",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err),
		)
	}
}

// History returns the most recent audit entries of a timetable, newest first.
func (s *AuditService) History(ctx context.Context, timetableID string, limit int) ([]models.AuditLog, error) {
	logs, err := s.repo.ListByResource(ctx, models.AuditResourceTimetable, timetableID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit history")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

func (s *AuditService) process(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		return fmt.Errorf("persist audit log: %w", err)
	}
	return nil
}

func buildAuditLog(entry AuditEntry) (*models.AuditLog, error) {
	log := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    entry.Action,
		Resource:  models.AuditResourceTimetable,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
	}
	if entry.ActorID != "" {
		actor := entry.ActorID
		log.UserID = &actor
	}
	if entry.ResourceID != "" {
		id := entry.ResourceID
		log.ResourceID = &id
	}
	if entry.Before != nil {
		raw, err := json.Marshal(entry.Before)
		if err != nil {
			return nil, err
		}
		log.OldValues = raw
	}
	if entry.After != nil {
		raw, err := json.Marshal(entry.After)
		if err != nil {
			return nil, err
		}
		log.NewValues = raw
	}
	return log, nil
}
