package money

import (
	"errors"
	"fmt"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrEmptyCurrency    = errors.New("currency is required")
)

// Money is an immutable amount in minor units (cents, halalas) with an
// optional tax rate in basis points. 1500 bps = 15% VAT.
type Money struct {
	AmountCents int64  `db:"amount_cents" json:"amount_cents"`
	Currency    string `db:"currency" json:"currency"`
	TaxRateBps  int64  `db:"tax_rate_bps" json:"tax_rate_bps,omitempty"`
}

func New(amountCents int64, currency string) Money {
	return Money{AmountCents: amountCents, Currency: currency}
}

func NewWithTax(amountCents int64, currency string, taxRateBps int64) Money {
	return Money{AmountCents: amountCents, Currency: currency, TaxRateBps: taxRateBps}
}

func Zero(currency string) Money {
	return Money{AmountCents: 0, Currency: currency}
}

func (m Money) Validate() error {
	if m.Currency == "" {
		return ErrEmptyCurrency
	}
	if m.AmountCents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (m Money) IsZero() bool {
	return m.AmountCents == 0
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{AmountCents: m.AmountCents + other.AmountCents, Currency: m.Currency, TaxRateBps: m.TaxRateBps}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{AmountCents: m.AmountCents - other.AmountCents, Currency: m.Currency, TaxRateBps: m.TaxRateBps}, nil
}

// TaxAmount returns the tax portion implied by the rate, rounded half up.
func (m Money) TaxAmount() Money {
	tax := (m.AmountCents*m.TaxRateBps + 5000) / 10000
	return Money{AmountCents: tax, Currency: m.Currency}
}

// WithTax returns the gross amount including the tax rate.
func (m Money) WithTax() Money {
	return Money{AmountCents: m.AmountCents + m.TaxAmount().AmountCents, Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.AmountCents/100, m.AmountCents%100, m.Currency)
}
