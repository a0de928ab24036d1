package service

import (
	"context"
	"sync"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// AuditServiceImpl implements ports.AuditService.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	wg   sync.WaitGroup
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditServiceImpl) Log(_ context.Context, entry *domain.AuditLog) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ev := s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID)
		if entry.AccountID != nil {
			ev = ev.Str("account_id", entry.AccountID.String())
		}
		if entry.IPAddress != "" {
			ev = ev.Str("ip", entry.IPAddress)
		}
		ev.Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}

// Wait blocks until pending entries are written or ctx ends.
func (s *AuditServiceImpl) Wait(ctx context.Context) error {
	return waitGroup(ctx, &s.wg)
}
