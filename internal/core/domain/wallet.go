package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a payer's internal currency wallet with encrypted balance.
type Wallet struct {
	ID               uuid.UUID `json:"id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	Currency         string    `json:"currency"`
	EncryptedBalance string    `json:"-"` // AES-256 encrypted, never expose raw
	Hold             int64     `json:"hold"` // Minor units earmarked, not spendable
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WalletSource is the advisory available balance of one external rail for a
// payer. Reads are read-then-act; the rail itself is the authority on
// sufficiency at execution time.
type WalletSource struct {
	ID        uuid.UUID     `json:"id"`
	OwnerID   uuid.UUID     `json:"owner_id"`
	Rail      FundingSource `json:"rail"`
	Currency  string        `json:"currency"`
	Balance   int64         `json:"balance"` // Minor units
	Hold      int64         `json:"hold"`
	Active    bool          `json:"active"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Available returns balance minus hold, floored at zero.
func (s *WalletSource) Available() int64 {
	if avail := s.Balance - s.Hold; avail > 0 {
		return avail
	}
	return 0
}
