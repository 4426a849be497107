package service

import (
	"context"
	"fmt"

	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WalletLedgerImpl implements ports.WalletLedger on top of the wallet
// repository. Debit takes the row lock; the invariant that a balance never
// goes negative is enforced here, after the lock, never by clamping.
type WalletLedgerImpl struct {
	walletRepo ports.WalletRepository
	log        zerolog.Logger
}

// NewWalletLedger creates a new WalletLedgerImpl.
func NewWalletLedger(walletRepo ports.WalletRepository, log zerolog.Logger) *WalletLedgerImpl {
	return &WalletLedgerImpl{walletRepo: walletRepo, log: log}
}

// Debit decrements a user's balance inside the caller's transaction.
func (s *WalletLedgerImpl) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperror.ErrInvalidAmount()
	}

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return 0, apperror.ErrInsufficientFunds(amount, 0)
	}
	if wallet.Balance < amount {
		return 0, apperror.ErrInsufficientFunds(amount, wallet.Balance)
	}

	newBalance := wallet.Balance - amount
	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
	}

	s.log.Debug().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Int64("new_balance", newBalance).
		Msg("wallet debited")

	return newBalance, nil
}

// Credit increments a user's balance, creating the wallet row if the user
// has never held funds.
func (s *WalletLedgerImpl) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperror.ErrInvalidAmount()
	}

	newBalance, err := s.walletRepo.AddBalance(ctx, tx, userID, amount)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("credit wallet: %w", err))
	}

	s.log.Debug().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Int64("new_balance", newBalance).
		Msg("wallet credited")

	return newBalance, nil
}

// Balance returns the current balance without locking. Users without a
// wallet row read as zero.
func (s *WalletLedgerImpl) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return 0, nil
	}
	return wallet.Balance, nil
}
