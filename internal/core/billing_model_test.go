package core_test

import (
	"testing"
	"time"

	"salesledger/internal/core"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestOutstanding(t *testing.T) {
	inv := &core.Invoice{AmountDue: d("210"), PaidAmount: d("0")}

	credit := &core.Credit{Amount: d("210"), PayedAmount: d("50")}
	if got := core.Outstanding(inv, credit); got.StringFixed(2) != "160.00" {
		t.Errorf("outstanding = %s, want 160.00", got.StringFixed(2))
	}

	// Overpayment clamps at zero.
	credit.PayedAmount = d("300")
	if got := core.Outstanding(inv, credit); !got.IsZero() {
		t.Errorf("outstanding = %s, want 0", got)
	}

	// Without a credit the invoice's own figures are used.
	inv.PaidAmount = d("40")
	if got := core.Outstanding(inv, nil); got.StringFixed(2) != "170.00" {
		t.Errorf("outstanding = %s, want 170.00", got.StringFixed(2))
	}
}

func TestCreditStatusAt(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 10)
	past := now.AddDate(0, 0, -10)

	c := &core.Credit{Amount: d("210"), PayedAmount: d("0"), ExpiredAt: &future}
	if got := c.StatusAt(now); got != core.CreditStatusActive {
		t.Errorf("status = %s, want active", got)
	}

	c.ExpiredAt = &past
	if got := c.StatusAt(now); got != core.CreditStatusExpired {
		t.Errorf("status = %s, want expired", got)
	}

	// Fully paid wins over expiry.
	c.PayedAmount = d("210")
	if got := c.StatusAt(now); got != core.CreditStatusPaid {
		t.Errorf("status = %s, want paid", got)
	}

	// Overpaid still reads paid.
	c.PayedAmount = d("250")
	if got := c.StatusAt(now); got != core.CreditStatusPaid {
		t.Errorf("status = %s, want paid", got)
	}
}

func TestFormatNumber(t *testing.T) {
	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := core.FormatNumber(core.DocSalesOrder, day, 7); got != "SO-20260305-007" {
		t.Errorf("got %q, want SO-20260305-007", got)
	}
	// Sequence widens past three digits instead of truncating.
	if got := core.FormatNumber(core.DocInvoice, day, 1234); got != "INV-20260305-1234" {
		t.Errorf("got %q, want INV-20260305-1234", got)
	}
}

func TestKindOf(t *testing.T) {
	err := core.Errf(core.KindCreditBlocked, "customer blocked")
	if got := core.KindOf(err); got != core.KindCreditBlocked {
		t.Errorf("kind = %s, want credit_blocked", got)
	}
	if got := core.KindOf(nil); got != "" {
		t.Errorf("kind of nil = %q, want empty", got)
	}
}
