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

// PaymentService records and removes payments against invoices. Every write
// ends with the shared settle pass, so the invoice's paid amount and status
// and the credit's payed amount are always a pure function of the surviving
// payment rows.
type PaymentService interface {
	RecordPayment(ctx context.Context, actor Actor, invoiceID uuid.UUID, amount decimal.Decimal, paidOn time.Time, mode PaymentMode) (*Payment, error)
	// DeletePayment removes a payment and re-settles, which can move a paid
	// invoice back to sent.
	DeletePayment(ctx context.Context, actor Actor, paymentID uuid.UUID) error
	ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error)
}

type paymentService struct {
	pool     *pgxpool.Pool
	recorder Recorder
}

func NewPaymentService(pool *pgxpool.Pool, recorder Recorder) PaymentService {
	return &paymentService{pool: pool, recorder: recorder}
}

func (s *paymentService) RecordPayment(ctx context.Context, actor Actor, invoiceID uuid.UUID, amount decimal.Decimal, paidOn time.Time, mode PaymentMode) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, Errf(KindInvalidArgument, "payment amount must be positive, got %s", amount)
	}
	if mode != PaymentModeCash && mode != PaymentModeBank {
		return nil, Errf(KindInvalidArgument, "unknown payment mode %q", mode)
	}

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
	if status == InvoiceStatusDraft || status == InvoiceStatusCancelled {
		return nil, Errf(KindInvalidState, "invoice %s cannot accept payments: status is %s", invoiceNo, status)
	}

	var p Payment
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (tenant_id, invoice_id, amount, paid_on, mode)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, invoice_id, amount, paid_on, mode, created_at
	`, actor.TenantID, invoiceID, amount, paidOn, mode).Scan(
		&p.ID, &p.TenantID, &p.InvoiceID, &p.Amount, &p.PaidOn, &p.Mode, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := updatePaymentStatusTx(ctx, tx, invoiceID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("payment", p.ID, ActionCreate, nil, map[string]any{
		"invoice_id": invoiceID.String(),
		"amount":     amount.StringFixed(2),
		"mode":       string(mode),
	})
	buf.flush(ctx, s.recorder)
	return &p, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, actor Actor, paymentID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceID uuid.UUID
	var amount decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT invoice_id, amount FROM payments WHERE id = $1 AND tenant_id = $2",
		paymentID, actor.TenantID,
	).Scan(&invoiceID, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Errf(KindNotFound, "payment %s not found", paymentID)
		}
		return fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM payments WHERE id = $1", paymentID); err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", paymentID, err)
	}

	if err := updatePaymentStatusTx(ctx, tx, invoiceID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment deletion: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("payment", paymentID, ActionDelete, map[string]any{
		"invoice_id": invoiceID.String(),
		"amount":     amount.StringFixed(2),
	}, nil)
	buf.flush(ctx, s.recorder)
	return nil
}

func (s *paymentService) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, invoice_id, amount, paid_on, mode, created_at
		FROM payments
		WHERE invoice_id = $1 AND tenant_id = $2
		ORDER BY paid_on, created_at
	`, invoiceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.TenantID, &p.InvoiceID, &p.Amount, &p.PaidOn, &p.Mode, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
