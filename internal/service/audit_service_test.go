package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

type auditWriterStub struct {
	mu       sync.Mutex
	logs     []*models.AuditLog
	failures int
}

func (s *auditWriterStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("db unavailable")
	}
	s.logs = append(s.logs, log)
	return nil
}

func (s *auditWriterStub) ListByResource(_ context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		log := s.logs[i]
		if log.Resource == resource && log.ResourceID != nil && *log.ResourceID == resourceID {
			out = append(out, *log)
		}
	}
	return out, nil
}

func (s *auditWriterStub) snapshot() []*models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditLog(nil), s.logs...)
}

func TestAuditServiceRecordsWithRequestOrigin(t *testing.T) {
	repo := &auditWriterStub{failures: 1}
	svc := NewAuditService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 2, RetryDelay: 5 * time.Millisecond}, nil, nil)
	svc.Start(context.Background())

	ctx := WithRequestOrigin(context.Background(), "10.0.0.7", "planner/1.0")
	svc.Record(ctx, AuditEntry{
		ActorID:    "scheduler-1",
		Action:     models.AuditActionTimetablePublish,
		ResourceID: "tt-1",
		Before:     map[string]string{"status": "DRAFT"},
		After:      map[string]string{"status": "PUBLISHED"},
	})

	require.Eventually(t, func() bool { return len(repo.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	svc.Stop()

	log := repo.snapshot()[0]
	assert.NotEmpty(t, log.ID)
	assert.Equal(t, models.AuditResourceTimetable, log.Resource)
	assert.Equal(t, "10.0.0.7", log.IPAddress)
	assert.Equal(t, "planner/1.0", log.UserAgent)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "scheduler-1", *log.UserID)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "tt-1", *log.ResourceID)
	assert.JSONEq(t, `{"status":"DRAFT"}`, string(log.OldValues))
	assert.JSONEq(t, `{"status":"PUBLISHED"}`, string(log.NewValues))
}

func TestAuditServiceDropsWhenNotRunning(t *testing.T) {
	repo := &auditWriterStub{}
	svc := NewAuditService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 1}, NewMetricsService(), nil)

	svc.Record(context.Background(), AuditEntry{Action: models.AuditActionTimetableCreate, ResourceID: "tt-1"})

	assert.Empty(t, repo.snapshot())
}

func TestAuditServiceRejectsUnencodableValues(t *testing.T) {
	repo := &auditWriterStub{}
	svc := NewAuditService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 1}, nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(context.Background(), AuditEntry{Action: models.AuditActionTimetableUpdate, After: make(chan int)})

	assert.Empty(t, repo.snapshot())
}

func TestAuditServiceNilReceiver(t *testing.T) {
	var svc *AuditService
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), AuditEntry{Action: models.AuditActionTimetableCreate})
	})
}

func TestAuditServiceHistory(t *testing.T) {
	repo := &auditWriterStub{}
	svc := NewAuditService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 8}, nil, nil)
	svc.Start(context.Background())

	svc.Record(context.Background(), AuditEntry{Action: models.AuditActionTimetableCreate, ResourceID: "tt-1"})
	svc.Record(context.Background(), AuditEntry{Action: models.AuditActionTimetableCreate, ResourceID: "tt-2"})
	svc.Stop()

	history, err := svc.History(context.Background(), "tt-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AuditActionTimetableCreate, history[0].Action)

	empty, err := svc.History(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
