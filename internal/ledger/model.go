package ledger

import (
	"time"

	"liyaqa/internal/money"
)

// Source identifies which entitlement bucket a charge was drawn from.
type Source string

const (
	SourceSubscription Source = "subscription"
	SourceClassPack    Source = "class_pack"
	SourceWallet       Source = "wallet"
)

func (s Source) Valid() bool {
	switch s {
	case SourceSubscription, SourceClassPack, SourceWallet:
		return true
	}
	return false
}

type ClassPack struct {
	ID                int       `db:"id" json:"id"`
	TenantID          int       `db:"tenant_id" json:"-"`
	MemberID          int       `db:"member_id" json:"member_id"`
	PackName          string    `db:"pack_name" json:"pack_name"`
	SessionsRemaining int       `db:"sessions_remaining" json:"sessions_remaining"`
	ExpiresAt         time.Time `db:"expires_at" json:"expires_at"`
	PriceCents        int64     `db:"price_cents" json:"price_cents"`
	Currency          string    `db:"currency" json:"currency"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (p *ClassPack) Usable(at time.Time) bool {
	return p.SessionsRemaining > 0 && p.ExpiresAt.After(at)
}

type Wallet struct {
	ID           int       `db:"id" json:"id"`
	TenantID     int       `db:"tenant_id" json:"-"`
	MemberID     int       `db:"member_id" json:"member_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (w *Wallet) Balance() money.Money {
	return money.New(w.BalanceCents, w.Currency)
}

// WalletReconciliation compares the cached wallet balance against the sum of
// its signed journal entries. The two agree unless a mutation bypassed the
// journal.
type WalletReconciliation struct {
	MemberID        int   `db:"member_id" json:"member_id"`
	BalanceCents    int64 `db:"balance_cents" json:"balance_cents"`
	JournalSumCents int64 `db:"journal_sum_cents" json:"journal_sum_cents"`
	Consistent      bool  `db:"-" json:"consistent"`
}

type TransactionKind string

const (
	KindDebit  TransactionKind = "debit"
	KindCredit TransactionKind = "credit"
	KindTopUp  TransactionKind = "topup"
)

// WalletTransaction is an append-only journal entry. BalanceAfterCents makes
// the journal auditable without replaying it.
type WalletTransaction struct {
	ID                int             `db:"id" json:"id"`
	TenantID          int             `db:"tenant_id" json:"-"`
	WalletID          int             `db:"wallet_id" json:"wallet_id"`
	Kind              TransactionKind `db:"kind" json:"kind"`
	AmountCents       int64           `db:"amount_cents" json:"amount_cents"`
	BalanceAfterCents int64           `db:"balance_after_cents" json:"balance_after_cents"`
	Reference         string          `db:"reference" json:"reference"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// ChargeReceipt records one settled debit. The (tenant_id, idempotency_key)
// pair is unique, which is what makes retried debits safe.
type ChargeReceipt struct {
	ID             int       `db:"id" json:"id"`
	TenantID       int       `db:"tenant_id" json:"-"`
	MemberID       int       `db:"member_id" json:"member_id"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Source         Source    `db:"source" json:"source"`
	SubscriptionID *int      `db:"subscription_id" json:"subscription_id,omitempty"`
	PackID         *int      `db:"pack_id" json:"pack_id,omitempty"`
	AmountCents    int64     `db:"amount_cents" json:"amount_cents"`
	Currency       string    `db:"currency" json:"currency"`
	Reversed       bool      `db:"reversed" json:"reversed"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// DebitCommand describes one charge against a member's entitlements. Exactly
// one of SubscriptionID or PackID is set for those sources; wallet debits
// carry neither.
type DebitCommand struct {
	MemberID       int
	IdempotencyKey string
	Source         Source
	SubscriptionID *int
	PackID         *int
	Price          money.Money
	Reference      string
}

type TopUpRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,min=1"`
	Currency    string `json:"currency" binding:"required"`
}

type GrantPackRequest struct {
	MemberID     int    `json:"member_id" binding:"required"`
	PackName     string `json:"pack_name" binding:"required"`
	Sessions     int    `json:"sessions" binding:"required,min=1"`
	ValidityDays int    `json:"validity_days" binding:"required,min=1"`
	PriceCents   int64  `json:"price_cents" binding:"required,min=0"`
	Currency     string `json:"currency" binding:"required"`
}
