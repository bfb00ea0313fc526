package ledger

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/tenant"
)

// Repository owns every mutation of entitlement balances. The Tx variants
// participate in a caller-managed transaction so the booking orchestrator can
// settle a charge and a seat atomically.
type Repository interface {
	DebitTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) (*ChargeReceipt, error)
	CreditTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, receiptID int) (bool, error)
	GetReceiptByKey(ctx context.Context, scope tenant.Scope, key string) (*ChargeReceipt, error)
	GetReceiptByID(ctx context.Context, scope tenant.Scope, id int) (*ChargeReceipt, error)

	FindEarliestExpiringPack(ctx context.Context, scope tenant.Scope, memberID int, at time.Time) (*ClassPack, error)
	GrantPack(ctx context.Context, scope tenant.Scope, pack *ClassPack) error
	ListPacks(ctx context.Context, scope tenant.Scope, memberID int) ([]ClassPack, error)

	GetWallet(ctx context.Context, scope tenant.Scope, memberID int) (*Wallet, error)
	EnsureWallet(ctx context.Context, scope tenant.Scope, memberID int, currency string) (*Wallet, error)
	TopUp(ctx context.Context, scope tenant.Scope, memberID int, amountCents int64, currency string) (*Wallet, error)
	ListWalletTransactions(ctx context.Context, scope tenant.Scope, memberID int, limit int) ([]WalletTransaction, error)
	ReconcileWallet(ctx context.Context, scope tenant.Scope, memberID int) (*WalletReconciliation, error)
}
