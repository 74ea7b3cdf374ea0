package service

import (
	"context"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/store"
)

// AuditService exposes the admin view over the attempt ledger and the
// link catalog.
type AuditService struct {
	attempts *store.AttemptStore
	links    *store.LinkStore
}

func NewAuditService(attempts *store.AttemptStore, links *store.LinkStore) *AuditService {
	return &AuditService{attempts: attempts, links: links}
}

func (s *AuditService) QueryLogs(ctx context.Context, query models.AttemptQuery) ([]models.Attempt, int64, error) {
	return s.attempts.QueryLogs(ctx, query)
}

func (s *AuditService) DeleteLogs(ctx context.Context, ids []int64) (int64, error) {
	return s.attempts.DeleteLogs(ctx, ids)
}

func (s *AuditService) QueryLinks(ctx context.Context, keyword string, page, pageSize int) ([]models.LinkRecord, int64, error) {
	return s.links.QueryLinks(ctx, keyword, page, pageSize)
}

func (s *AuditService) DeleteLinks(ctx context.Context, ids []int64) (int64, error) {
	return s.links.DeleteLinks(ctx, ids)
}
