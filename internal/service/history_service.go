package service

import (
	"context"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HistoryServiceImpl implements ports.HistoryService.
type HistoryServiceImpl struct {
	withdrawals ports.WithdrawalRepository
	now         func() time.Time
}

// NewHistoryService creates a new history service.
func NewHistoryService(withdrawals ports.WithdrawalRepository) *HistoryServiceImpl {
	return &HistoryServiceImpl{withdrawals: withdrawals, now: time.Now}
}

// GetStats returns aggregated withdrawal figures for the account over period
// (day, week, month or all).
func (s *HistoryServiceImpl) GetStats(ctx context.Context, accountID uuid.UUID, period string) (*ports.WithdrawalStats, error) {
	var since *time.Time

	switch period {
	case "day":
		t := s.now().AddDate(0, 0, -1)
		since = &t
	case "week":
		t := s.now().AddDate(0, 0, -7)
		since = &t
	case "month":
		t := s.now().AddDate(0, -1, 0)
		since = &t
	case "all", "":
	default:
		return nil, apperror.Validation("invalid period: must be day, week, month, or all")
	}

	stats, err := s.withdrawals.GetStats(ctx, accountID, since)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return stats, nil
}

// ListWithdrawals returns a page of the account's withdrawals, newest first.
func (s *HistoryServiceImpl) ListWithdrawals(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.Status != nil {
		switch *params.Status {
		case domain.WithdrawalStatusSubmitted, domain.WithdrawalStatusRejected:
		default:
			return nil, 0, apperror.Validation("invalid status: must be SUBMITTED or REJECTED")
		}
	}

	items, total, err := s.withdrawals.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return items, total, nil
}
