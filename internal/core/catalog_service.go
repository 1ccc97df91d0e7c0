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

// CatalogService manages VAT categories and products, the static reference
// data everything else prices against.
type CatalogService interface {
	CreateVATCategory(ctx context.Context, actor Actor, category string, rate decimal.Decimal) (*VATSetting, error)
	ListVATCategories(ctx context.Context, tenantID uuid.UUID) ([]VATSetting, error)

	CreateProduct(ctx context.Context, actor Actor, code, name string, unitPrice, unitCost decimal.Decimal, vatCategoryID uuid.UUID, stock int64) (*Product, error)
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context, tenantID uuid.UUID) ([]Product, error)
	DeactivateProduct(ctx context.Context, actor Actor, productID uuid.UUID) error
}

type catalogService struct {
	pool     *pgxpool.Pool
	recorder Recorder
}

func NewCatalogService(pool *pgxpool.Pool, recorder Recorder) CatalogService {
	return &catalogService{pool: pool, recorder: recorder}
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared
// query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *catalogService) CreateVATCategory(ctx context.Context, actor Actor, category string, rate decimal.Decimal) (*VATSetting, error) {
	if category == "" {
		return nil, Errf(KindInvalidArgument, "vat category label is required")
	}
	if rate.IsNegative() {
		return nil, Errf(KindInvalidArgument, "vat rate cannot be negative, got %s", rate)
	}

	var v VATSetting
	err := s.pool.QueryRow(ctx, `
		INSERT INTO vat_settings (tenant_id, category, rate)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, category, rate
	`, actor.TenantID, category, rate).Scan(&v.ID, &v.TenantID, &v.Category, &v.Rate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Errf(KindAlreadyExists, "vat category %q already exists", category)
		}
		return nil, fmt.Errorf("failed to create vat category: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("vat_setting", v.ID, ActionCreate, nil, map[string]any{"category": v.Category, "rate": v.Rate.String()})
	buf.flush(ctx, s.recorder)
	return &v, nil
}

func (s *catalogService) ListVATCategories(ctx context.Context, tenantID uuid.UUID) ([]VATSetting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, category, rate
		FROM vat_settings
		WHERE tenant_id = $1
		ORDER BY category
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vat categories: %w", err)
	}
	defer rows.Close()

	var settings []VATSetting
	for rows.Next() {
		var v VATSetting
		if err := rows.Scan(&v.ID, &v.TenantID, &v.Category, &v.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan vat category: %w", err)
		}
		settings = append(settings, v)
	}
	return settings, rows.Err()
}

func (s *catalogService) CreateProduct(ctx context.Context, actor Actor, code, name string, unitPrice, unitCost decimal.Decimal, vatCategoryID uuid.UUID, stock int64) (*Product, error) {
	if code == "" {
		return nil, Errf(KindInvalidArgument, "product code is required")
	}
	if unitPrice.IsNegative() {
		return nil, Errf(KindInvalidArgument, "unit price cannot be negative, got %s", unitPrice)
	}
	if unitCost.IsNegative() {
		return nil, Errf(KindInvalidArgument, "unit cost cannot be negative, got %s", unitCost)
	}

	// VAT category must belong to the same tenant.
	var rate decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT rate FROM vat_settings WHERE id = $1 AND tenant_id = $2",
		vatCategoryID, actor.TenantID,
	).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "vat category %s not found", vatCategoryID)
		}
		return nil, fmt.Errorf("failed to resolve vat category: %w", err)
	}

	var p Product
	err = s.pool.QueryRow(ctx, `
		INSERT INTO products (tenant_id, code, name, unit_price, unit_cost, vat_category_id, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, code, name, unit_price, unit_cost, vat_category_id, stock, is_active, created_at
	`, actor.TenantID, code, name, unitPrice, unitCost, vatCategoryID, stock).Scan(
		&p.ID, &p.TenantID, &p.Code, &p.Name, &p.UnitPrice, &p.UnitCost,
		&p.VATCategoryID, &p.Stock, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Errf(KindAlreadyExists, "product code %q already exists", code)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	p.VATRate = rate

	buf := newEventBuffer(actor)
	buf.add("product", p.ID, ActionCreate, nil, map[string]any{
		"code": p.Code, "name": p.Name, "unit_price": p.UnitPrice.String(), "stock": p.Stock,
	})
	buf.flush(ctx, s.recorder)
	return &p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.tenant_id, p.code, p.name, p.unit_price, p.unit_cost,
		       p.vat_category_id, v.rate, p.stock, p.is_active, p.created_at
		FROM products p
		JOIN vat_settings v ON v.id = p.vat_category_id
		WHERE p.id = $1 AND p.tenant_id = $2
	`, productID, tenantID).Scan(
		&p.ID, &p.TenantID, &p.Code, &p.Name, &p.UnitPrice, &p.UnitCost,
		&p.VATCategoryID, &p.VATRate, &p.Stock, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "product %s not found", productID)
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", productID, err)
	}
	return &p, nil
}

func (s *catalogService) ListProducts(ctx context.Context, tenantID uuid.UUID) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.tenant_id, p.code, p.name, p.unit_price, p.unit_cost,
		       p.vat_category_id, v.rate, p.stock, p.is_active, p.created_at
		FROM products p
		JOIN vat_settings v ON v.id = p.vat_category_id
		WHERE p.tenant_id = $1 AND p.is_active = true
		ORDER BY p.code
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Code, &p.Name, &p.UnitPrice, &p.UnitCost,
			&p.VATCategoryID, &p.VATRate, &p.Stock, &p.IsActive, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *catalogService) DeactivateProduct(ctx context.Context, actor Actor, productID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE products SET is_active = false, updated_at = now() WHERE id = $1 AND tenant_id = $2",
		productID, actor.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate product %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return Errf(KindNotFound, "product %s not found", productID)
	}

	buf := newEventBuffer(actor)
	buf.add("product", productID, ActionUpdate, map[string]any{"is_active": true}, map[string]any{"is_active": false})
	buf.flush(ctx, s.recorder)
	return nil
}

// lockedProduct is a product row pinned with FOR UPDATE for a stock mutation.
type lockedProduct struct {
	ID        uuid.UUID
	Code      string
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
	Stock     int64
	IsActive  bool
}

// lockProductTx takes a row lock on the product so concurrent stock deltas
// serialize instead of losing updates.
func lockProductTx(ctx context.Context, tx pgx.Tx, tenantID, productID uuid.UUID) (*lockedProduct, error) {
	var p lockedProduct
	err := tx.QueryRow(ctx, `
		SELECT id, code, unit_price, unit_cost, stock, is_active
		FROM products
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, productID, tenantID).Scan(&p.ID, &p.Code, &p.UnitPrice, &p.UnitCost, &p.Stock, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "product %s not found", productID)
		}
		return nil, fmt.Errorf("failed to lock product %s: %w", productID, err)
	}
	return &p, nil
}

// applyStockDeltaTx writes the new stock level for a product already locked
// by lockProductTx. Stock is never allowed below zero: oversell is rejected.
func applyStockDeltaTx(ctx context.Context, tx pgx.Tx, buf *eventBuffer, p *lockedProduct, delta int64) error {
	if delta == 0 {
		return nil
	}
	newStock := p.Stock + delta
	if newStock < 0 {
		return Errf(KindInvalidState, "insufficient stock for product %s: have %d, need %d", p.Code, p.Stock, -delta)
	}
	_, err := tx.Exec(ctx,
		"UPDATE products SET stock = $1, updated_at = now() WHERE id = $2",
		newStock, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock for product %s: %w", p.Code, err)
	}
	buf.add("product", p.ID, ActionUpdate,
		map[string]any{"stock": p.Stock},
		map[string]any{"stock": newStock},
	)
	p.Stock = newStock
	return nil
}
