package ledger

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/logger"
	"liyaqa/internal/metrics"
	"liyaqa/internal/money"
	"liyaqa/internal/tenant"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// DebitTx and CreditTx run inside the caller's transaction; the booking
// orchestrator owns the commit.

func (s *Service) DebitTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd DebitCommand) (*ChargeReceipt, error) {
	receipt, err := s.repo.DebitTx(ctx, tx, scope, cmd)
	if err != nil {
		return nil, err
	}
	metrics.RecordLedgerDebit(string(cmd.Source))
	return receipt, nil
}

func (s *Service) CreditTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, receiptID int) (bool, error) {
	restored, err := s.repo.CreditTx(ctx, tx, scope, receiptID)
	if err != nil {
		return false, err
	}
	if restored {
		receipt, getErr := s.repo.GetReceiptByID(ctx, scope, receiptID)
		source := ""
		if getErr == nil {
			source = string(receipt.Source)
		}
		metrics.RecordLedgerCredit(source)
	}
	return restored, nil
}

func (s *Service) FindEarliestExpiringPack(ctx context.Context, scope tenant.Scope, memberID int, at time.Time) (*ClassPack, error) {
	return s.repo.FindEarliestExpiringPack(ctx, scope, memberID, at)
}

func (s *Service) GetWallet(ctx context.Context, scope tenant.Scope, memberID int) (*Wallet, error) {
	return s.repo.GetWallet(ctx, scope, memberID)
}

func (s *Service) TopUp(ctx context.Context, scope tenant.Scope, memberID int, amount money.Money) (*Wallet, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.EnsureWallet(ctx, scope, memberID, amount.Currency); err != nil {
		return nil, err
	}
	wallet, err := s.repo.TopUp(ctx, scope, memberID, amount.AmountCents, amount.Currency)
	if err != nil {
		return nil, err
	}
	metrics.RecordWalletTopUp()
	logger.Info("wallet topped up", "member_id", memberID, "amount_cents", amount.AmountCents)
	return wallet, nil
}

func (s *Service) GrantPack(ctx context.Context, scope tenant.Scope, req GrantPackRequest) (*ClassPack, error) {
	pack := &ClassPack{
		TenantID:          scope.TenantID,
		MemberID:          req.MemberID,
		PackName:          req.PackName,
		SessionsRemaining: req.Sessions,
		ExpiresAt:         time.Now().UTC().AddDate(0, 0, req.ValidityDays),
		PriceCents:        req.PriceCents,
		Currency:          req.Currency,
	}
	if err := s.repo.GrantPack(ctx, scope, pack); err != nil {
		return nil, err
	}
	logger.Info("class pack granted", "member_id", req.MemberID, "pack", req.PackName, "sessions", req.Sessions)
	return pack, nil
}

func (s *Service) ListPacks(ctx context.Context, scope tenant.Scope, memberID int) ([]ClassPack, error) {
	return s.repo.ListPacks(ctx, scope, memberID)
}

func (s *Service) ListWalletTransactions(ctx context.Context, scope tenant.Scope, memberID, limit int) ([]WalletTransaction, error) {
	return s.repo.ListWalletTransactions(ctx, scope, memberID, limit)
}

func (s *Service) ReconcileWallet(ctx context.Context, scope tenant.Scope, memberID int) (*WalletReconciliation, error) {
	rec, err := s.repo.ReconcileWallet(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		logger.Error("wallet balance diverged from journal",
			"member_id", memberID,
			"balance_cents", rec.BalanceCents,
			"journal_sum_cents", rec.JournalSumCents)
	}
	return rec, nil
}
