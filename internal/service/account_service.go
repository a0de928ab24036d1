package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// initialFundingReference is the idempotency reference of the sign-up credit.
const initialFundingReference = "initial"

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	accounts       ports.AccountRepository
	ledger         ports.LedgerService
	initialFunding *big.Int
	log            zerolog.Logger
}

// NewAccountService creates a new AccountServiceImpl. A positive
// initialFunding is credited to every new account.
func NewAccountService(accounts ports.AccountRepository, ledger ports.LedgerService, initialFunding *big.Int, log zerolog.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{
		accounts:       accounts,
		ledger:         ledger,
		initialFunding: initialFunding,
		log:            log,
	}
}

// Register creates a new account and credits the initial funding.
func (s *AccountServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.UserAccount, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperror.Validation("username is required")
	}
	if req.WalletAddress != "" && !common.IsHexAddress(req.WalletAddress) {
		return nil, apperror.Validation("wallet_address is not a valid address")
	}

	existing, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, apperror.Validation("username already exists")
	}

	account := &domain.UserAccount{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       strings.TrimSpace(req.Email),
		Status:      domain.AccountStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if account.DisplayName == "" {
		account.DisplayName = username
	}
	if req.WalletAddress != "" {
		account.WalletAddress = common.HexToAddress(req.WalletAddress).Hex()
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create account: %w", err))
	}

	// Funding is idempotent by reference, so a failed credit can be replayed
	// through the fund endpoint with the same reference.
	if s.initialFunding != nil && s.initialFunding.Sign() > 0 {
		if _, err := s.ledger.Fund(ctx, account.ID, s.initialFunding, initialFundingReference); err != nil {
			s.log.Warn().Err(err).Str("account_id", account.ID.String()).Msg("initial funding failed")
		}
	}

	s.log.Info().
		Str("account_id", account.ID.String()).
		Str("username", account.Username).
		Msg("account registered")

	return account, nil
}

// GetProfile returns the account together with its current balance.
func (s *AccountServiceImpl) GetProfile(ctx context.Context, accountID uuid.UUID) (*ports.AccountProfile, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &ports.AccountProfile{Account: account, Balance: balance}, nil
}
