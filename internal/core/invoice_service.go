package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InvoiceService issues invoices against sales orders and manages the credit
// line opened alongside each invoice. An order carries at most one invoice;
// the invoice's amount due is frozen from the order's grand total at issue
// time and later order edits are blocked by the invoiced status.
type InvoiceService interface {
	// CreateInvoice issues the invoice, opens the matching credit, and moves
	// the order to invoiced, all in one transaction. A nil dueDate falls back
	// to issueDate plus the customer's credit terms; a nil amountDue bills the
	// order's grand total.
	CreateInvoice(ctx context.Context, actor Actor, salesOrderID uuid.UUID, issueDate time.Time, dueDate *time.Time, amountDue *decimal.Decimal) (*Invoice, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, invoiceNo string) (*Invoice, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, status *InvoiceStatus) ([]Invoice, error)
	GetCreditForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Credit, error)

	// OutstandingAmount is the unpaid remainder on the invoice, clamped at
	// zero, always derived from the credit's live figures.
	OutstandingAmount(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error)
	// UpdatePaymentStatus re-derives paid amounts and status from the payment
	// rows. Safe to call repeatedly; a second call with no intervening writes
	// changes nothing.
	UpdatePaymentStatus(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*Invoice, error)
	// ExtendCredit pushes the credit's expiry out by additionalDays, restoring
	// a delinquent customer's ability to order.
	ExtendCredit(ctx context.Context, actor Actor, creditID uuid.UUID, additionalDays int) (*Credit, error)
	CancelInvoice(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*Invoice, error)
}

type invoiceService struct {
	pool      *pgxpool.Pool
	numbering NumberingService
	recorder  Recorder
}

func NewInvoiceService(pool *pgxpool.Pool, numbering NumberingService, recorder Recorder) InvoiceService {
	return &invoiceService{pool: pool, numbering: numbering, recorder: recorder}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, actor Actor, salesOrderID uuid.UUID, issueDate time.Time, dueDate *time.Time, amountDue *decimal.Decimal) (*Invoice, error) {
	if amountDue != nil && !amountDue.IsPositive() {
		return nil, Errf(KindInvalidArgument, "amount due must be positive, got %s", amountDue)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockSalesOrderTx(ctx, tx, actor.TenantID, salesOrderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status == OrderStatusCancelled {
		return nil, Errf(KindInvalidState, "order %s is cancelled and cannot be invoiced", hdr.OrderNumber)
	}
	if hdr.Status == OrderStatusInvoiced {
		return nil, Errf(KindAlreadyExists, "order %s is already invoiced", hdr.OrderNumber)
	}

	var grandTotal decimal.Decimal
	var creditExpireDays int
	err = tx.QueryRow(ctx, `
		SELECT so.grand_total, c.credit_expire_days
		FROM sales_orders so
		JOIN customers c ON c.id = so.customer_id
		WHERE so.id = $1
	`, salesOrderID).Scan(&grandTotal, &creditExpireDays)
	if err != nil {
		return nil, fmt.Errorf("failed to read order totals: %w", err)
	}

	invoiceNo, err := s.numbering.NextNumberTx(ctx, tx, actor.TenantID, DocInvoice, issueDate)
	if err != nil {
		return nil, err
	}

	billed := grandTotal
	if amountDue != nil {
		billed = *amountDue
	}
	expiredAt := issueDate.AddDate(0, 0, creditExpireDays)
	if dueDate != nil {
		expiredAt = *dueDate
	}

	var invoiceID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (tenant_id, sales_order_id, invoice_no, issue_date, due_date, amount_due, paid_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 'draft')
		RETURNING id
	`, actor.TenantID, salesOrderID, invoiceNo, issueDate, dueDate, billed).Scan(&invoiceID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Errf(KindAlreadyExists, "order %s is already invoiced", hdr.OrderNumber)
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	var creditID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO credits (tenant_id, invoice_id, amount, payed_amount, expired_at)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING id
	`, actor.TenantID, invoiceID, billed, expiredAt).Scan(&creditID)
	if err != nil {
		return nil, fmt.Errorf("failed to open credit for invoice %s: %w", invoiceNo, err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE sales_orders SET status = 'invoiced', updated_at = now() WHERE id = $1",
		salesOrderID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark order %s invoiced: %w", hdr.OrderNumber, err)
	}

	// The credit now exists, so the settle pass moves the fresh invoice from
	// draft to sent.
	if err := updatePaymentStatusTx(ctx, tx, invoiceID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice creation: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("invoice", invoiceID, ActionCreate, nil, map[string]any{
		"invoice_no":     invoiceNo,
		"sales_order_id": salesOrderID.String(),
		"amount_due":     billed.StringFixed(2),
	})
	buf.add("credit", creditID, ActionCreate, nil, map[string]any{
		"invoice_id": invoiceID.String(),
		"amount":     billed.StringFixed(2),
		"expired_at": expiredAt.Format(time.RFC3339),
	})
	buf.flush(ctx, s.recorder)

	return s.GetInvoice(ctx, actor.TenantID, invoiceID)
}

// updatePaymentStatusTx is the single settle pass shared by invoice and
// payment writes. It re-aggregates the invoice's payments from scratch,
// mirrors the sum onto the invoice and its credit, and re-derives the status:
// fully covered means paid, any payment or an open credit means sent, and a
// bare invoice stays draft. Cancelled invoices are left untouched.
func updatePaymentStatusTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error {
	var amountDue decimal.Decimal
	var status InvoiceStatus
	err := tx.QueryRow(ctx,
		"SELECT amount_due, status FROM invoices WHERE id = $1 FOR UPDATE",
		invoiceID,
	).Scan(&amountDue, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Errf(KindNotFound, "invoice %s not found", invoiceID)
		}
		return fmt.Errorf("failed to lock invoice %s: %w", invoiceID, err)
	}
	if status == InvoiceStatusCancelled {
		return nil
	}

	var paid decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1",
		invoiceID,
	).Scan(&paid)
	if err != nil {
		return fmt.Errorf("failed to aggregate payments for invoice %s: %w", invoiceID, err)
	}

	var hasCredit bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM credits WHERE invoice_id = $1)",
		invoiceID,
	).Scan(&hasCredit)
	if err != nil {
		return fmt.Errorf("failed to check credit for invoice %s: %w", invoiceID, err)
	}

	newStatus := InvoiceStatusDraft
	switch {
	case amountDue.Sub(paid).LessThanOrEqual(decimal.Zero):
		newStatus = InvoiceStatusPaid
	case paid.IsPositive() || hasCredit:
		newStatus = InvoiceStatusSent
	}

	if _, err := tx.Exec(ctx,
		"UPDATE invoices SET paid_amount = $1, status = $2, updated_at = now() WHERE id = $3",
		paid, newStatus, invoiceID,
	); err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", invoiceID, err)
	}
	if hasCredit {
		if _, err := tx.Exec(ctx,
			"UPDATE credits SET payed_amount = $1, updated_at = now() WHERE invoice_id = $2",
			paid, invoiceID,
		); err != nil {
			return fmt.Errorf("failed to update credit for invoice %s: %w", invoiceID, err)
		}
	}
	return nil
}

func (s *invoiceService) UpdatePaymentStatus(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Tenant scoping happens here; the settle pass itself works by id.
	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1 AND tenant_id = $2)",
		invoiceID, actor.TenantID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check invoice: %w", err)
	}
	if !exists {
		return nil, Errf(KindNotFound, "invoice %s not found", invoiceID)
	}

	if err := updatePaymentStatusTx(ctx, tx, invoiceID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment status update: %w", err)
	}
	return s.GetInvoice(ctx, actor.TenantID, invoiceID)
}

func (s *invoiceService) ExtendCredit(ctx context.Context, actor Actor, creditID uuid.UUID, additionalDays int) (*Credit, error) {
	if additionalDays <= 0 {
		return nil, Errf(KindInvalidArgument, "additional days must be positive, got %d", additionalDays)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var c Credit
	err = tx.QueryRow(ctx, `
		SELECT id, tenant_id, invoice_id, amount, payed_amount, expired_at, created_at
		FROM credits
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, creditID, actor.TenantID).Scan(
		&c.ID, &c.TenantID, &c.InvoiceID, &c.Amount, &c.PayedAmount, &c.ExpiredAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "credit %s not found", creditID)
		}
		return nil, fmt.Errorf("failed to lock credit %s: %w", creditID, err)
	}

	// Extension is anchored on the current expiry when one exists, so an
	// already-expired credit moves forward from its old deadline, not from
	// today.
	base := time.Now().UTC()
	if c.ExpiredAt != nil {
		base = *c.ExpiredAt
	}
	newExpiry := base.AddDate(0, 0, additionalDays)

	if _, err := tx.Exec(ctx,
		"UPDATE credits SET expired_at = $1, updated_at = now() WHERE id = $2",
		newExpiry, creditID,
	); err != nil {
		return nil, fmt.Errorf("failed to extend credit %s: %w", creditID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit credit extension: %w", err)
	}

	buf := newEventBuffer(actor)
	before := map[string]any{}
	if c.ExpiredAt != nil {
		before["expired_at"] = c.ExpiredAt.Format(time.RFC3339)
	}
	buf.add("credit", creditID, ActionUpdate, before, map[string]any{
		"expired_at": newExpiry.Format(time.RFC3339),
	})
	buf.flush(ctx, s.recorder)

	c.ExpiredAt = &newExpiry
	return &c, nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceNo string
	var status InvoiceStatus
	err = tx.QueryRow(ctx,
		"SELECT invoice_no, status FROM invoices WHERE id = $1 AND tenant_id = $2 FOR UPDATE",
		invoiceID, actor.TenantID,
	).Scan(&invoiceNo, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "invoice %s not found", invoiceID)
		}
		return nil, fmt.Errorf("failed to lock invoice %s: %w", invoiceID, err)
	}
	if status == InvoiceStatusPaid {
		return nil, Errf(KindInvalidState, "invoice %s is paid and cannot be cancelled", invoiceNo)
	}
	if status == InvoiceStatusCancelled {
		return nil, Errf(KindInvalidState, "invoice %s is already cancelled", invoiceNo)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE invoices SET status = 'cancelled', updated_at = now() WHERE id = $1",
		invoiceID,
	); err != nil {
		return nil, fmt.Errorf("failed to cancel invoice %s: %w", invoiceNo, err)
	}
	// The credit dies with the invoice so it can no longer block the customer.
	if _, err := tx.Exec(ctx, "DELETE FROM credits WHERE invoice_id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to close credit for invoice %s: %w", invoiceNo, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice cancellation: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("invoice", invoiceID, ActionUpdate,
		map[string]any{"status": string(status)},
		map[string]any{"status": string(InvoiceStatusCancelled)},
	)
	buf.flush(ctx, s.recorder)

	return s.GetInvoice(ctx, actor.TenantID, invoiceID)
}

func (s *invoiceService) OutstandingAmount(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	inv, err := s.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	credit, err := s.GetCreditForInvoice(ctx, tenantID, invoiceID)
	if err != nil && KindOf(err) != KindNotFound {
		return decimal.Zero, err
	}
	return Outstanding(inv, credit), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Invoice, error) {
	var inv Invoice
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, sales_order_id, invoice_no, issue_date, due_date,
		       amount_due, paid_amount, status, created_at
		FROM invoices
		WHERE id = $1 AND tenant_id = $2
	`, invoiceID, tenantID).Scan(
		&inv.ID, &inv.TenantID, &inv.SalesOrderID, &inv.InvoiceNo, &inv.IssueDate, &inv.DueDate,
		&inv.AmountDue, &inv.PaidAmount, &inv.Status, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "invoice %s not found", invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", invoiceID, err)
	}
	return &inv, nil
}

func (s *invoiceService) GetInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, invoiceNo string) (*Invoice, error) {
	var invoiceID uuid.UUID
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM invoices WHERE tenant_id = $1 AND invoice_no = $2",
		tenantID, invoiceNo,
	).Scan(&invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "invoice %s not found", invoiceNo)
		}
		return nil, fmt.Errorf("failed to lookup invoice by number: %w", err)
	}
	return s.GetInvoice(ctx, tenantID, invoiceID)
}

func (s *invoiceService) ListInvoices(ctx context.Context, tenantID uuid.UUID, status *InvoiceStatus) ([]Invoice, error) {
	query := `
		SELECT id, tenant_id, sales_order_id, invoice_no, issue_date, due_date,
		       amount_due, paid_amount, status, created_at
		FROM invoices
		WHERE tenant_id = $1
	`
	args := []any{tenantID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.TenantID, &inv.SalesOrderID, &inv.InvoiceNo, &inv.IssueDate, &inv.DueDate,
			&inv.AmountDue, &inv.PaidAmount, &inv.Status, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *invoiceService) GetCreditForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Credit, error) {
	var c Credit
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, invoice_id, amount, payed_amount, expired_at, created_at
		FROM credits
		WHERE invoice_id = $1 AND tenant_id = $2
	`, invoiceID, tenantID).Scan(
		&c.ID, &c.TenantID, &c.InvoiceID, &c.Amount, &c.PayedAmount, &c.ExpiredAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "no credit for invoice %s", invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch credit for invoice %s: %w", invoiceID, err)
	}
	return &c, nil
}
