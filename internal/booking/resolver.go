package booking

import (
	"errors"
	"fmt"
	"time"

	"liyaqa/internal/ledger"
	"liyaqa/internal/money"
	"liyaqa/internal/schedule"
	"liyaqa/internal/subscription"
)

var ErrNoEntitlement = errors.New("no entitlement source can cover this booking")

// EntitlementSnapshot is what the resolver sees: the member's best candidate
// from each source, loaded before the booking transaction begins. Nil fields
// mean the member has nothing from that source.
type EntitlementSnapshot struct {
	Subscription *subscription.Subscription
	Pack         *ledger.ClassPack
	Wallet       *ledger.Wallet
}

// ChargePlan is the resolver's decision: where the debit lands and at what
// price. Subscription and pack charges are zero-priced; only wallet charges
// carry money.
type ChargePlan struct {
	Source         ledger.Source
	SubscriptionID *int
	PackID         *int
	Price          money.Money
}

// Rejection explains why every source was passed over.
type Rejection struct {
	Reasons map[ledger.Source]string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%v: %v", ErrNoEntitlement, r.Reasons)
}

func (r *Rejection) Unwrap() error {
	return ErrNoEntitlement
}

// Resolve picks the entitlement source for one booking. It is a pure
// decision over the snapshot: subscription first, then the soonest-expiring
// class pack, then the wallet at the drop-in price. It never mutates
// anything; settlement happens in the ledger under the booking transaction.
func Resolve(snap EntitlementSnapshot, detail *schedule.SessionDetail, taxRateBps int64, now time.Time) (*ChargePlan, error) {
	rejection := &Rejection{Reasons: map[ledger.Source]string{}}

	if detail.PricingModel == schedule.PricingIncluded {
		plan, reason := trySubscription(snap.Subscription, detail.StartsAt)
		if plan != nil {
			return plan, nil
		}
		rejection.Reasons[ledger.SourceSubscription] = reason

		plan, reason = tryPack(snap.Pack, now)
		if plan != nil {
			return plan, nil
		}
		rejection.Reasons[ledger.SourceClassPack] = reason
	} else {
		rejection.Reasons[ledger.SourceSubscription] = "class is drop-in only"
		rejection.Reasons[ledger.SourceClassPack] = "class is drop-in only"
	}

	price := money.NewWithTax(detail.DropInPriceCents, detail.Currency, taxRateBps).WithTax()
	plan, reason := tryWallet(snap.Wallet, price)
	if plan != nil {
		return plan, nil
	}
	rejection.Reasons[ledger.SourceWallet] = reason

	return nil, rejection
}

func trySubscription(sub *subscription.Subscription, sessionStart time.Time) (*ChargePlan, string) {
	if sub == nil {
		return nil, "no active subscription"
	}
	if sub.Status != subscription.StatusActive {
		return nil, fmt.Sprintf("subscription is %s", sub.Status)
	}
	if sub.EndDate.Before(sessionStart) {
		return nil, "subscription ends before the session starts"
	}
	if !sub.HasClassesAvailable() {
		return nil, "no classes remaining on plan"
	}
	id := sub.ID
	return &ChargePlan{
		Source:         ledger.SourceSubscription,
		SubscriptionID: &id,
		Price:          money.Zero(sub.Currency),
	}, ""
}

func tryPack(pack *ledger.ClassPack, now time.Time) (*ChargePlan, string) {
	if pack == nil {
		return nil, "no class pack"
	}
	if !pack.Usable(now) {
		return nil, "class pack is depleted or expired"
	}
	id := pack.ID
	return &ChargePlan{
		Source: ledger.SourceClassPack,
		PackID: &id,
		Price:  money.Zero(pack.Currency),
	}, ""
}

func tryWallet(wallet *ledger.Wallet, price money.Money) (*ChargePlan, string) {
	if wallet == nil {
		return nil, "no wallet"
	}
	if wallet.Currency != price.Currency {
		return nil, "wallet currency does not match class price"
	}
	if wallet.BalanceCents < price.AmountCents {
		return nil, "insufficient wallet balance"
	}
	return &ChargePlan{
		Source: ledger.SourceWallet,
		Price:  price,
	}, ""
}

// Options expands the same decision into a preview of every source, for the
// booking options endpoint. The selected option mirrors what Resolve would
// pick.
func Options(snap EntitlementSnapshot, detail *schedule.SessionDetail, taxRateBps int64, now time.Time) []ChargeOption {
	options := make([]ChargeOption, 0, 3)
	price := money.NewWithTax(detail.DropInPriceCents, detail.Currency, taxRateBps).WithTax()

	if detail.PricingModel == schedule.PricingIncluded {
		plan, reason := trySubscription(snap.Subscription, detail.StartsAt)
		options = append(options, toOption(ledger.SourceSubscription, plan, reason, detail.Currency))

		packPlan, packReason := tryPack(snap.Pack, now)
		options = append(options, toOption(ledger.SourceClassPack, packPlan, packReason, detail.Currency))
	}

	walletPlan, walletReason := tryWallet(snap.Wallet, price)
	walletOption := toOption(ledger.SourceWallet, walletPlan, walletReason, price.Currency)
	walletOption.AmountCents = price.AmountCents
	options = append(options, walletOption)

	return options
}

func toOption(source ledger.Source, plan *ChargePlan, reason, currency string) ChargeOption {
	opt := ChargeOption{Source: source, Currency: currency}
	if plan != nil {
		opt.Eligible = true
		opt.AmountCents = plan.Price.AmountCents
	} else {
		opt.Reason = reason
	}
	return opt
}
