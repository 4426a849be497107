package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's stored balance in whole currency units.
// The balance is mutated only through the wallet ledger's transactional
// debit/credit operations and is never observed negative.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
