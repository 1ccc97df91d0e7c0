package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// defaultCreditExpireDays is used when a customer is created without explicit
// credit terms.
const defaultCreditExpireDays = 30

// CustomerService manages customer and supplier master data and exposes the
// delinquent-credit gate consulted before new sales orders.
type CustomerService interface {
	CreateCustomer(ctx context.Context, actor Actor, name, email, phone, address string, creditExpireDays int) (*Customer, error)
	GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*Customer, error)
	ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]Customer, error)

	// CanOrder is false iff the customer has at least one credit that is both
	// past its expiry and not fully paid.
	CanOrder(ctx context.Context, tenantID, customerID uuid.UUID) (bool, error)
	// CustomerBalance is Σ amount_due − Σ paid_amount over the customer's
	// non-draft, non-cancelled invoices.
	CustomerBalance(ctx context.Context, tenantID, customerID uuid.UUID) (decimal.Decimal, error)

	CreateSupplier(ctx context.Context, actor Actor, name, email, phone, address string) (*Supplier, error)
	GetSupplier(ctx context.Context, tenantID, supplierID uuid.UUID) (*Supplier, error)
}

type customerService struct {
	pool     *pgxpool.Pool
	recorder Recorder
}

func NewCustomerService(pool *pgxpool.Pool, recorder Recorder) CustomerService {
	return &customerService{pool: pool, recorder: recorder}
}

func (s *customerService) CreateCustomer(ctx context.Context, actor Actor, name, email, phone, address string, creditExpireDays int) (*Customer, error) {
	if name == "" {
		return nil, Errf(KindInvalidArgument, "customer name is required")
	}
	if creditExpireDays < 0 {
		return nil, Errf(KindInvalidArgument, "credit expire days cannot be negative, got %d", creditExpireDays)
	}
	if creditExpireDays == 0 {
		creditExpireDays = defaultCreditExpireDays
	}

	var c Customer
	err := s.pool.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, name, email, phone, address, credit_expire_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, name, email, phone, address, credit_expire_days, created_at
	`, actor.TenantID, name, email, phone, address, creditExpireDays).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreditExpireDays, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("customer", c.ID, ActionCreate, nil, map[string]any{"name": c.Name, "credit_expire_days": c.CreditExpireDays})
	buf.flush(ctx, s.recorder)
	return &c, nil
}

func (s *customerService) GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*Customer, error) {
	var c Customer
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, phone, address, credit_expire_days, created_at
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`, customerID, tenantID).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreditExpireDays, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "customer %s not found", customerID)
		}
		return nil, fmt.Errorf("failed to fetch customer %s: %w", customerID, err)
	}
	return &c, nil
}

func (s *customerService) ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, email, phone, address, credit_expire_days, created_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreditExpireDays, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *customerService) CanOrder(ctx context.Context, tenantID, customerID uuid.UUID) (bool, error) {
	return canOrderQ(ctx, s.pool, tenantID, customerID)
}

// canOrderQ runs the delinquency check against a pool or an open transaction,
// so CreateSalesOrder can enforce the gate inside its own tx.
func canOrderQ(ctx context.Context, q pgxQuerier, tenantID, customerID uuid.UUID) (bool, error) {
	var blocked bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM credits cr
			JOIN invoices inv ON inv.id = cr.invoice_id
			JOIN sales_orders so ON so.id = inv.sales_order_id
			WHERE so.customer_id = $1
			  AND so.tenant_id = $2
			  AND cr.expired_at IS NOT NULL
			  AND cr.expired_at < now()
			  AND cr.payed_amount < cr.amount
		)
	`, customerID, tenantID).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("failed to check customer credit standing: %w", err)
	}
	return !blocked, nil
}

func (s *customerService) CustomerBalance(ctx context.Context, tenantID, customerID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(inv.amount_due), 0) - COALESCE(SUM(inv.paid_amount), 0)
		FROM invoices inv
		JOIN sales_orders so ON so.id = inv.sales_order_id
		WHERE so.customer_id = $1
		  AND inv.tenant_id = $2
		  AND inv.status NOT IN ('draft', 'cancelled')
	`, customerID, tenantID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute customer balance: %w", err)
	}
	return balance, nil
}

func (s *customerService) CreateSupplier(ctx context.Context, actor Actor, name, email, phone, address string) (*Supplier, error) {
	if name == "" {
		return nil, Errf(KindInvalidArgument, "supplier name is required")
	}

	var sup Supplier
	err := s.pool.QueryRow(ctx, `
		INSERT INTO suppliers (tenant_id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, name, email, phone, address, created_at
	`, actor.TenantID, name, email, phone, address).Scan(
		&sup.ID, &sup.TenantID, &sup.Name, &sup.Email, &sup.Phone, &sup.Address, &sup.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("supplier", sup.ID, ActionCreate, nil, map[string]any{"name": sup.Name})
	buf.flush(ctx, s.recorder)
	return &sup, nil
}

func (s *customerService) GetSupplier(ctx context.Context, tenantID, supplierID uuid.UUID) (*Supplier, error) {
	var sup Supplier
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, phone, address, created_at
		FROM suppliers
		WHERE id = $1 AND tenant_id = $2
	`, supplierID, tenantID).Scan(
		&sup.ID, &sup.TenantID, &sup.Name, &sup.Email, &sup.Phone, &sup.Address, &sup.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "supplier %s not found", supplierID)
		}
		return nil, fmt.Errorf("failed to fetch supplier %s: %w", supplierID, err)
	}
	return &sup, nil
}
