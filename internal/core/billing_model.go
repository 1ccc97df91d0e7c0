package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice bills a sales order one-to-one. AmountDue is frozen at creation
// time; PaidAmount is derived from payments via the credit.
type Invoice struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	SalesOrderID uuid.UUID       `json:"sales_order_id"`
	InvoiceNo    string          `json:"invoice_no"`
	IssueDate    time.Time       `json:"issue_date"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	AmountDue    decimal.Decimal `json:"amount_due"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Status       InvoiceStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

type CreditStatus string

const (
	CreditStatusActive  CreditStatus = "active"
	CreditStatusPaid    CreditStatus = "paid"
	CreditStatusExpired CreditStatus = "expired"
)

// Credit is the short-term receivable line opened against an invoice. Amount
// is frozen at creation; PayedAmount is re-aggregated from the invoice's
// payments on every payment write.
type Credit struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	PayedAmount decimal.Decimal `json:"payed_amount"`
	ExpiredAt   *time.Time      `json:"expired_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RemainingAmount is amount − payed_amount. May be negative on overpayment.
func (c *Credit) RemainingAmount() decimal.Decimal {
	return c.Amount.Sub(c.PayedAmount)
}

// StatusAt derives the credit status at a point in time: paid once nothing
// remains, expired once past expired_at with a remainder, active otherwise.
func (c *Credit) StatusAt(now time.Time) CreditStatus {
	if c.RemainingAmount().LessThanOrEqual(decimal.Zero) {
		return CreditStatusPaid
	}
	if c.ExpiredAt != nil && now.After(*c.ExpiredAt) {
		return CreditStatusExpired
	}
	return CreditStatusActive
}

// Outstanding is the unpaid remainder owed on an invoice, clamped at zero.
// It is always computed from current credit/payment state, never cached.
func Outstanding(inv *Invoice, credit *Credit) decimal.Decimal {
	var remaining decimal.Decimal
	if credit != nil {
		remaining = credit.Amount.Sub(credit.PayedAmount)
	} else {
		remaining = inv.AmountDue.Sub(inv.PaidAmount)
	}
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

type PaymentMode string

const (
	PaymentModeCash PaymentMode = "cash"
	PaymentModeBank PaymentMode = "bank"
)

type Payment struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidOn    time.Time       `json:"paid_on"`
	Mode      PaymentMode     `json:"mode"`
	CreatedAt time.Time       `json:"created_at"`
}

// Route carries a business number only; GPS tracking lives outside the core.
type Route struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	RouteNumber   string    `json:"route_number"`
	SalespersonID uuid.UUID `json:"salesperson_id"`
	Name          string    `json:"name"`
	Date          time.Time `json:"date"`
	CreatedAt     time.Time `json:"created_at"`
}

type RouteVisit struct {
	ID         uuid.UUID `json:"id"`
	RouteID    uuid.UUID `json:"route_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
