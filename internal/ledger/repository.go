package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/db"
	"liyaqa/internal/tenant"
)

var (
	ErrInsufficientEntitlement = errors.New("entitlement source cannot cover the charge")
	ErrReceiptConflict         = errors.New("idempotency key already used for a different charge")
	ErrReceiptNotFound         = errors.New("charge receipt not found")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrNoUsablePack            = errors.New("member has no usable class pack")
	ErrCurrencyMismatch        = errors.New("wallet currency does not match charge currency")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) Repository {
	return &repository{db: database}
}

// DebitTx settles one charge inside the caller's transaction. A replayed
// idempotency key returns the original receipt without touching balances; a
// key replayed with a different charge is a conflict.
func (r *repository) DebitTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) (*ChargeReceipt, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}
	if !cmd.Source.Valid() {
		return nil, fmt.Errorf("unknown charge source %q", cmd.Source)
	}
	if cmd.IdempotencyKey == "" {
		return nil, errors.New("idempotency key is required")
	}
	if err := cmd.Price.Validate(); err != nil {
		return nil, err
	}

	existing, err := r.receiptByKeyTx(ctx, tx, scope, cmd.IdempotencyKey)
	if err != nil && !errors.Is(err, ErrReceiptNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Source != cmd.Source || existing.AmountCents != cmd.Price.AmountCents {
			return nil, ErrReceiptConflict
		}
		return existing, nil
	}

	switch cmd.Source {
	case SourceSubscription:
		err = r.debitSubscription(ctx, tx, scope, cmd)
	case SourceClassPack:
		err = r.debitPack(ctx, tx, scope, cmd)
	case SourceWallet:
		err = r.debitWallet(ctx, tx, scope, cmd)
	}
	if err != nil {
		return nil, err
	}

	receipt := &ChargeReceipt{
		TenantID:       scope.TenantID,
		MemberID:       cmd.MemberID,
		IdempotencyKey: cmd.IdempotencyKey,
		Source:         cmd.Source,
		SubscriptionID: cmd.SubscriptionID,
		PackID:         cmd.PackID,
		AmountCents:    cmd.Price.AmountCents,
		Currency:       cmd.Price.Currency,
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO charge_receipts (
			tenant_id, member_id, idempotency_key, source,
			subscription_id, pack_id, amount_cents, currency, reversed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, NOW())
		RETURNING id, created_at`,
		scope.TenantID, cmd.MemberID, cmd.IdempotencyKey, cmd.Source,
		cmd.SubscriptionID, cmd.PackID, cmd.Price.AmountCents, cmd.Price.Currency,
	).Scan(&receipt.ID, &receipt.CreatedAt)
	if err != nil {
		// Two transactions raced on the same key. The unique index lets
		// exactly one insert win; the loser surfaces as retryable so the
		// orchestrator re-runs and hits the replay path above.
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("concurrent debit with key %s: %w", cmd.IdempotencyKey, err)
		}
		return nil, fmt.Errorf("failed to record charge receipt: %w", err)
	}
	return receipt, nil
}

func (r *repository) debitSubscription(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) error {
	if cmd.SubscriptionID == nil {
		return errors.New("subscription debit requires a subscription ID")
	}

	// Unlimited plans (NULL classes_remaining) pass the predicate without
	// decrementing.
	result, err := tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET classes_remaining = classes_remaining - 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'active'
		  AND (classes_remaining IS NULL OR classes_remaining > 0)`,
		*cmd.SubscriptionID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to debit subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientEntitlement
	}
	return nil
}

func (r *repository) debitPack(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) error {
	if cmd.PackID == nil {
		return errors.New("class pack debit requires a pack ID")
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE class_packs
		SET sessions_remaining = sessions_remaining - 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		  AND sessions_remaining > 0 AND expires_at > NOW()`,
		*cmd.PackID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to debit class pack: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientEntitlement
	}
	return nil
}

func (r *repository) debitWallet(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) error {
	var wallet Wallet
	err := tx.GetContext(ctx, &wallet, `
		UPDATE wallets
		SET balance_cents = balance_cents - $3, updated_at = NOW()
		WHERE member_id = $1 AND tenant_id = $2
		  AND currency = $4 AND balance_cents >= $3
		RETURNING *`,
		cmd.MemberID, scope.TenantID, cmd.Price.AmountCents, cmd.Price.Currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.classifyWalletMiss(ctx, tx, scope, cmd)
		}
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	return r.journalTx(ctx, tx, scope, &wallet, KindDebit, -cmd.Price.AmountCents, cmd.Reference)
}

// classifyWalletMiss turns a missed conditional UPDATE into the precise
// failure: no wallet, wrong currency, or insufficient funds.
func (r *repository) classifyWalletMiss(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) error {
	var wallet Wallet
	err := tx.GetContext(ctx, &wallet,
		`SELECT * FROM wallets WHERE member_id = $1 AND tenant_id = $2`,
		cmd.MemberID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWalletNotFound
		}
		return fmt.Errorf("failed to inspect wallet: %w", err)
	}
	if wallet.Currency != cmd.Price.Currency {
		return ErrCurrencyMismatch
	}
	return ErrInsufficientEntitlement
}

// CreditTx reverses a settled receipt, restoring the balance it drew from.
// Returns false when the receipt was already reversed; the restore is never
// applied twice.
func (r *repository) CreditTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, receiptID int) (bool, error) {
	if !scope.Valid() {
		return false, tenant.ErrMissingScope
	}

	var receipt ChargeReceipt
	err := tx.GetContext(ctx, &receipt, `
		UPDATE charge_receipts
		SET reversed = TRUE
		WHERE id = $1 AND tenant_id = $2 AND reversed = FALSE
		RETURNING *`,
		receiptID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.classifyCreditMiss(ctx, tx, scope, receiptID)
		}
		return false, fmt.Errorf("failed to reverse receipt: %w", err)
	}

	switch receipt.Source {
	case SourceSubscription:
		// Unlimited plans have nothing to restore.
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET classes_remaining = classes_remaining + 1, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2 AND classes_remaining IS NOT NULL`,
			receipt.SubscriptionID, scope.TenantID)
	case SourceClassPack:
		_, err = tx.ExecContext(ctx, `
			UPDATE class_packs
			SET sessions_remaining = sessions_remaining + 1, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2`,
			receipt.PackID, scope.TenantID)
	case SourceWallet:
		err = r.creditWallet(ctx, tx, scope, &receipt)
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore %s balance: %w", receipt.Source, err)
	}
	return true, nil
}

func (r *repository) classifyCreditMiss(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, receiptID int) (bool, error) {
	var reversed bool
	err := tx.GetContext(ctx, &reversed,
		`SELECT reversed FROM charge_receipts WHERE id = $1 AND tenant_id = $2`,
		receiptID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrReceiptNotFound
		}
		return false, fmt.Errorf("failed to inspect receipt: %w", err)
	}
	if reversed {
		return false, nil
	}
	return false, fmt.Errorf("receipt %d in unexpected state", receiptID)
}

func (r *repository) creditWallet(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, receipt *ChargeReceipt) error {
	var wallet Wallet
	err := tx.GetContext(ctx, &wallet, `
		UPDATE wallets
		SET balance_cents = balance_cents + $3, updated_at = NOW()
		WHERE member_id = $1 AND tenant_id = $2
		RETURNING *`,
		receipt.MemberID, scope.TenantID, receipt.AmountCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWalletNotFound
		}
		return err
	}
	return r.journalTx(ctx, tx, scope, &wallet, KindCredit, receipt.AmountCents, receipt.IdempotencyKey)
}

func (r *repository) journalTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, wallet *Wallet, kind TransactionKind, amountCents int64, reference string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (
			tenant_id, wallet_id, kind, amount_cents, balance_after_cents, reference, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		scope.TenantID, wallet.ID, kind, amountCents, wallet.BalanceCents, reference)
	if err != nil {
		return fmt.Errorf("failed to journal wallet transaction: %w", err)
	}
	return nil
}

func (r *repository) GetReceiptByKey(ctx context.Context, scope tenant.Scope, key string) (*ChargeReceipt, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var receipt ChargeReceipt
	err := r.db.GetContext(ctx, &receipt,
		`SELECT * FROM charge_receipts WHERE idempotency_key = $1 AND tenant_id = $2`,
		key, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &receipt, nil
}

func (r *repository) receiptByKeyTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, key string) (*ChargeReceipt, error) {
	var receipt ChargeReceipt
	err := tx.GetContext(ctx, &receipt,
		`SELECT * FROM charge_receipts WHERE idempotency_key = $1 AND tenant_id = $2`,
		key, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &receipt, nil
}

func (r *repository) GetReceiptByID(ctx context.Context, scope tenant.Scope, id int) (*ChargeReceipt, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var receipt ChargeReceipt
	err := r.db.GetContext(ctx, &receipt,
		`SELECT * FROM charge_receipts WHERE id = $1 AND tenant_id = $2`,
		id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &receipt, nil
}

// FindEarliestExpiringPack picks the usable pack that expires soonest, so
// members burn short-lived credits before long-lived ones.
func (r *repository) FindEarliestExpiringPack(ctx context.Context, scope tenant.Scope, memberID int, at time.Time) (*ClassPack, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var pack ClassPack
	err := r.db.GetContext(ctx, &pack, `
		SELECT * FROM class_packs
		WHERE member_id = $1 AND tenant_id = $2
		  AND sessions_remaining > 0 AND expires_at > $3
		ORDER BY expires_at ASC
		LIMIT 1`,
		memberID, scope.TenantID, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoUsablePack
		}
		return nil, fmt.Errorf("failed to find class pack: %w", err)
	}
	return &pack, nil
}

func (r *repository) GrantPack(ctx context.Context, scope tenant.Scope, pack *ClassPack) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	return r.db.QueryRowxContext(ctx, `
		INSERT INTO class_packs (
			tenant_id, member_id, pack_name, sessions_remaining,
			expires_at, price_cents, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		scope.TenantID, pack.MemberID, pack.PackName, pack.SessionsRemaining,
		pack.ExpiresAt, pack.PriceCents, pack.Currency,
	).Scan(&pack.ID, &pack.CreatedAt, &pack.UpdatedAt)
}

func (r *repository) ListPacks(ctx context.Context, scope tenant.Scope, memberID int) ([]ClassPack, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	packs := []ClassPack{}
	err := r.db.SelectContext(ctx, &packs, `
		SELECT * FROM class_packs
		WHERE member_id = $1 AND tenant_id = $2
		ORDER BY expires_at ASC`,
		memberID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list class packs: %w", err)
	}
	return packs, nil
}

func (r *repository) GetWallet(ctx context.Context, scope tenant.Scope, memberID int) (*Wallet, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var wallet Wallet
	err := r.db.GetContext(ctx, &wallet,
		`SELECT * FROM wallets WHERE member_id = $1 AND tenant_id = $2`,
		memberID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *repository) EnsureWallet(ctx context.Context, scope tenant.Scope, memberID int, currency string) (*Wallet, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var wallet Wallet
	err := r.db.GetContext(ctx, &wallet, `
		INSERT INTO wallets (tenant_id, member_id, balance_cents, currency, created_at, updated_at)
		VALUES ($1, $2, 0, $3, NOW(), NOW())
		ON CONFLICT (tenant_id, member_id) DO UPDATE SET updated_at = wallets.updated_at
		RETURNING *`,
		scope.TenantID, memberID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return &wallet, nil
}

func (r *repository) TopUp(ctx context.Context, scope tenant.Scope, memberID int, amountCents int64, currency string) (*Wallet, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}
	if amountCents <= 0 {
		return nil, errors.New("top-up amount must be positive")
	}

	var wallet Wallet
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &wallet, `
			UPDATE wallets
			SET balance_cents = balance_cents + $3, updated_at = NOW()
			WHERE member_id = $1 AND tenant_id = $2 AND currency = $4
			RETURNING *`,
			memberID, scope.TenantID, amountCents, currency)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("failed to top up wallet: %w", err)
		}
		return r.journalTx(ctx, tx, scope, &wallet, KindTopUp, amountCents, "wallet top-up")
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ReconcileWallet checks the cached balance against the journal.
func (r *repository) ReconcileWallet(ctx context.Context, scope tenant.Scope, memberID int) (*WalletReconciliation, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var rec WalletReconciliation
	err := r.db.GetContext(ctx, &rec, `
		SELECT w.member_id, w.balance_cents,
		       COALESCE(SUM(wt.amount_cents), 0) AS journal_sum_cents
		FROM wallets w
		LEFT JOIN wallet_transactions wt ON wt.wallet_id = w.id
		WHERE w.member_id = $1 AND w.tenant_id = $2
		GROUP BY w.member_id, w.balance_cents`,
		memberID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to reconcile wallet: %w", err)
	}
	rec.Consistent = rec.BalanceCents == rec.JournalSumCents
	return &rec, nil
}

func (r *repository) ListWalletTransactions(ctx context.Context, scope tenant.Scope, memberID int, limit int) ([]WalletTransaction, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	txs := []WalletTransaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT wt.* FROM wallet_transactions wt
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE w.member_id = $1 AND wt.tenant_id = $2
		ORDER BY wt.created_at DESC
		LIMIT $3`,
		memberID, scope.TenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return txs, nil
}
