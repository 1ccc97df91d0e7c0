package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseService manages purchase orders. Lines add to stock as they are
// written, the mirror image of the sales side, so the same lock and delta
// helpers apply with the sign flipped.
type PurchaseService interface {
	CreatePurchaseOrder(ctx context.Context, actor Actor, supplierID uuid.UUID, orderDate time.Time, pricesIncludeVAT bool, lines []PurchaseLineInput) (*PurchaseOrder, error)
	AddOrUpdateLineItem(ctx context.Context, actor Actor, orderID uuid.UUID, in PurchaseLineInput) (*PurchaseOrder, error)
	DeleteLineItem(ctx context.Context, actor Actor, orderID, productID uuid.UUID) (*PurchaseOrder, error)
	ConfirmPurchaseOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*PurchaseOrder, error)
	// CancelPurchaseOrder reverses the stock the order's lines added. If the
	// goods were already sold on, the reversal fails rather than drive stock
	// negative.
	CancelPurchaseOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*PurchaseOrder, error)

	GetPurchaseOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, tenantID uuid.UUID, status *PurchaseOrderStatus) ([]PurchaseOrder, error)
}

type purchaseService struct {
	pool      *pgxpool.Pool
	numbering NumberingService
	recorder  Recorder
}

func NewPurchaseService(pool *pgxpool.Pool, numbering NumberingService, recorder Recorder) PurchaseService {
	return &purchaseService{pool: pool, numbering: numbering, recorder: recorder}
}

func (s *purchaseService) CreatePurchaseOrder(ctx context.Context, actor Actor, supplierID uuid.UUID, orderDate time.Time, pricesIncludeVAT bool, lines []PurchaseLineInput) (*PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var supplierName string
	err = tx.QueryRow(ctx,
		"SELECT name FROM suppliers WHERE id = $1 AND tenant_id = $2",
		supplierID, actor.TenantID,
	).Scan(&supplierName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "supplier %s not found", supplierID)
		}
		return nil, fmt.Errorf("failed to resolve supplier: %w", err)
	}

	orderNumber, err := s.numbering.NextNumberTx(ctx, tx, actor.TenantID, DocPurchaseOrder, orderDate)
	if err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (tenant_id, order_number, supplier_id, order_date, status, prices_include_vat)
		VALUES ($1, $2, $3, $4, 'draft', $5)
		RETURNING id
	`, actor.TenantID, orderNumber, supplierID, orderDate, pricesIncludeVAT).Scan(&orderID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Errf(KindConflict, "order number %s already taken", orderNumber)
		}
		return nil, fmt.Errorf("failed to insert purchase order: %w", err)
	}

	buf := newEventBuffer(actor)
	for i, in := range lines {
		if err := s.applyLineTx(ctx, tx, buf, actor.TenantID, orderID, in); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	if err := s.recomputeTotalsTx(ctx, tx, orderID, pricesIncludeVAT); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase order creation: %w", err)
	}

	buf.add("purchase_order", orderID, ActionCreate, nil, map[string]any{
		"order_number": orderNumber,
		"supplier_id":  supplierID.String(),
	})
	buf.flush(ctx, s.recorder)

	return s.GetPurchaseOrder(ctx, actor.TenantID, orderID)
}

func (s *purchaseService) AddOrUpdateLineItem(ctx context.Context, actor Actor, orderID uuid.UUID, in PurchaseLineInput) (*PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockPurchaseOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != PurchaseStatusDraft && hdr.Status != PurchaseStatusConfirmed {
		return nil, Errf(KindInvalidState, "purchase order %s cannot be modified: status is %s", hdr.OrderNumber, hdr.Status)
	}

	buf := newEventBuffer(actor)
	if err := s.applyLineTx(ctx, tx, buf, actor.TenantID, orderID, in); err != nil {
		return nil, err
	}
	if err := s.recomputeTotalsTx(ctx, tx, orderID, hdr.PricesIncludeVAT); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase line: %w", err)
	}
	buf.flush(ctx, s.recorder)

	return s.GetPurchaseOrder(ctx, actor.TenantID, orderID)
}

func (s *purchaseService) DeleteLineItem(ctx context.Context, actor Actor, orderID, productID uuid.UUID) (*PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockPurchaseOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != PurchaseStatusDraft && hdr.Status != PurchaseStatusConfirmed {
		return nil, Errf(KindInvalidState, "purchase order %s cannot be modified: status is %s", hdr.OrderNumber, hdr.Status)
	}

	var lineID uuid.UUID
	var qty int64
	err = tx.QueryRow(ctx,
		"SELECT id, quantity FROM purchase_order_line_items WHERE order_id = $1 AND product_id = $2",
		orderID, productID,
	).Scan(&lineID, &qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "purchase order %s has no line for product %s", hdr.OrderNumber, productID)
		}
		return nil, fmt.Errorf("failed to fetch purchase line: %w", err)
	}

	buf := newEventBuffer(actor)

	prod, err := lockProductTx(ctx, tx, actor.TenantID, productID)
	if err != nil {
		return nil, err
	}
	if err := applyStockDeltaTx(ctx, tx, buf, prod, -qty); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM purchase_order_line_items WHERE id = $1", lineID); err != nil {
		return nil, fmt.Errorf("failed to delete purchase line: %w", err)
	}
	buf.add("purchase_order_line_item", lineID, ActionDelete, map[string]any{"product_id": productID.String(), "quantity": qty}, nil)

	if err := s.recomputeTotalsTx(ctx, tx, orderID, hdr.PricesIncludeVAT); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase line deletion: %w", err)
	}
	buf.flush(ctx, s.recorder)

	return s.GetPurchaseOrder(ctx, actor.TenantID, orderID)
}

func (s *purchaseService) ConfirmPurchaseOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*PurchaseOrder, error) {
	return s.transition(ctx, actor, orderID, PurchaseStatusConfirmed, []PurchaseOrderStatus{PurchaseStatusDraft})
}

func (s *purchaseService) ReceivePurchaseOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*PurchaseOrder, error) {
	return s.transition(ctx, actor, orderID, PurchaseStatusReceived, []PurchaseOrderStatus{PurchaseStatusConfirmed})
}

func (s *purchaseService) transition(ctx context.Context, actor Actor, orderID uuid.UUID, to PurchaseOrderStatus, from []PurchaseOrderStatus) (*PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockPurchaseOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, f := range from {
		if hdr.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, Errf(KindInvalidState, "purchase order %s cannot move to %s: status is %s", hdr.OrderNumber, to, hdr.Status)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE purchase_orders SET status = $1, updated_at = now() WHERE id = $2",
		to, orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to update purchase order %s: %w", hdr.OrderNumber, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase order transition: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("purchase_order", orderID, ActionUpdate,
		map[string]any{"status": string(hdr.Status)},
		map[string]any{"status": string(to)},
	)
	buf.flush(ctx, s.recorder)

	return s.GetPurchaseOrder(ctx, actor.TenantID, orderID)
}

func (s *purchaseService) CancelPurchaseOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockPurchaseOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != PurchaseStatusDraft && hdr.Status != PurchaseStatusConfirmed {
		return nil, Errf(KindInvalidState, "purchase order %s cannot be cancelled: status is %s", hdr.OrderNumber, hdr.Status)
	}

	buf := newEventBuffer(actor)

	rows, err := tx.Query(ctx,
		"SELECT product_id, quantity FROM purchase_order_line_items WHERE order_id = $1",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lines for cancellation: %w", err)
	}
	type lineQty struct {
		productID uuid.UUID
		qty       int64
	}
	var lines []lineQty
	for rows.Next() {
		var l lineQty
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines: %w", err)
	}

	for _, l := range lines {
		prod, err := lockProductTx(ctx, tx, actor.TenantID, l.productID)
		if err != nil {
			return nil, err
		}
		if err := applyStockDeltaTx(ctx, tx, buf, prod, -l.qty); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE purchase_orders SET status = 'cancelled', updated_at = now() WHERE id = $1",
		orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to cancel purchase order %s: %w", hdr.OrderNumber, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase order cancellation: %w", err)
	}

	buf.add("purchase_order", orderID, ActionUpdate,
		map[string]any{"status": string(hdr.Status)},
		map[string]any{"status": string(PurchaseStatusCancelled)},
	)
	buf.flush(ctx, s.recorder)

	return s.GetPurchaseOrder(ctx, actor.TenantID, orderID)
}

func (s *purchaseService) applyLineTx(ctx context.Context, tx pgx.Tx, buf *eventBuffer, tenantID, orderID uuid.UUID, in PurchaseLineInput) error {
	if in.Quantity <= 0 {
		return Errf(KindInvalidArgument, "quantity must be positive, got %d", in.Quantity)
	}
	if in.Discount.IsNegative() || in.Discount.GreaterThan(hundred) {
		return Errf(KindInvalidArgument, "discount must be between 0 and 100, got %s", in.Discount)
	}

	prod, err := lockProductTx(ctx, tx, tenantID, in.ProductID)
	if err != nil {
		return err
	}
	if !prod.IsActive {
		return Errf(KindInvalidState, "product %s is inactive", prod.Code)
	}

	cost := in.UnitCost
	if cost.IsZero() {
		cost = prod.UnitCost
	}
	total := lineTotal(cost, in.Quantity, in.Discount)

	var oldQty int64
	err = tx.QueryRow(ctx,
		"SELECT quantity FROM purchase_order_line_items WHERE order_id = $1 AND product_id = $2",
		orderID, in.ProductID,
	).Scan(&oldQty)
	isNew := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !isNew {
		return fmt.Errorf("failed to fetch existing purchase line: %w", err)
	}

	// Purchases add to stock.
	if err := applyStockDeltaTx(ctx, tx, buf, prod, in.Quantity-oldQty); err != nil {
		return err
	}

	var lineID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_order_line_items (order_id, product_id, quantity, unit_cost, discount, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET quantity = $3, unit_cost = $4, discount = $5, line_total = $6
		RETURNING id
	`, orderID, in.ProductID, in.Quantity, cost, in.Discount, total).Scan(&lineID)
	if err != nil {
		return fmt.Errorf("failed to upsert purchase line: %w", err)
	}

	action := ActionUpdate
	var before map[string]any
	if isNew {
		action = ActionCreate
	} else {
		before = map[string]any{"quantity": oldQty}
	}
	buf.add("purchase_order_line_item", lineID, action, before, map[string]any{
		"product_id": in.ProductID.String(),
		"quantity":   in.Quantity,
		"line_total": total.StringFixed(2),
	})
	return nil
}

func (s *purchaseService) recomputeTotalsTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, inclusive bool) error {
	rows, err := tx.Query(ctx, `
		SELECT li.line_total, li.quantity, v.rate, p.unit_cost
		FROM purchase_order_line_items li
		JOIN products p ON p.id = li.product_id
		JOIN vat_settings v ON v.id = p.vat_category_id
		WHERE li.order_id = $1
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to query purchase lines for totals: %w", err)
	}
	defer rows.Close()

	var lines []totalLine
	for rows.Next() {
		var l totalLine
		if err := rows.Scan(&l.Gross, &l.Quantity, &l.VATRate, &l.UnitCost); err != nil {
			return fmt.Errorf("failed to scan totals line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating totals lines: %w", err)
	}

	t := computeTotals(lines, inclusive)
	_, err = tx.Exec(ctx, `
		UPDATE purchase_orders
		SET subtotal = $1, vat_total = $2, grand_total = $3, updated_at = now()
		WHERE id = $4
	`, t.Subtotal, t.VATTotal, t.GrandTotal, orderID)
	if err != nil {
		return fmt.Errorf("failed to update purchase totals: %w", err)
	}
	return nil
}

type purchaseOrderHeader struct {
	ID               uuid.UUID
	OrderNumber      string
	SupplierID       uuid.UUID
	Status           PurchaseOrderStatus
	PricesIncludeVAT bool
}

func lockPurchaseOrderTx(ctx context.Context, tx pgx.Tx, tenantID, orderID uuid.UUID) (*purchaseOrderHeader, error) {
	var h purchaseOrderHeader
	err := tx.QueryRow(ctx, `
		SELECT id, order_number, supplier_id, status, prices_include_vat
		FROM purchase_orders
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, orderID, tenantID).Scan(&h.ID, &h.OrderNumber, &h.SupplierID, &h.Status, &h.PricesIncludeVAT)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "purchase order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to lock purchase order %s: %w", orderID, err)
	}
	return &h, nil
}

func (s *purchaseService) GetPurchaseOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*PurchaseOrder, error) {
	var o PurchaseOrder
	err := s.pool.QueryRow(ctx, `
		SELECT po.id, po.tenant_id, po.order_number, po.supplier_id, sup.name,
		       po.order_date, po.status, po.prices_include_vat,
		       po.subtotal, po.vat_total, po.grand_total, po.created_at
		FROM purchase_orders po
		JOIN suppliers sup ON sup.id = po.supplier_id
		WHERE po.id = $1 AND po.tenant_id = $2
	`, orderID, tenantID).Scan(
		&o.ID, &o.TenantID, &o.OrderNumber, &o.SupplierID, &o.SupplierName,
		&o.OrderDate, &o.Status, &o.PricesIncludeVAT,
		&o.Subtotal, &o.VATTotal, &o.GrandTotal, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "purchase order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to fetch purchase order %s: %w", orderID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT li.id, li.order_id, li.product_id, p.code, p.name, v.rate,
		       li.quantity, li.unit_cost, li.discount, li.line_total
		FROM purchase_order_line_items li
		JOIN products p ON p.id = li.product_id
		JOIN vat_settings v ON v.id = p.vat_category_id
		WHERE li.order_id = $1
		ORDER BY p.code
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l PurchaseOrderLineItem
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.ProductCode, &l.ProductName, &l.VATRate,
			&l.Quantity, &l.UnitCost, &l.Discount, &l.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *purchaseService) ListPurchaseOrders(ctx context.Context, tenantID uuid.UUID, status *PurchaseOrderStatus) ([]PurchaseOrder, error) {
	query := `
		SELECT po.id, po.tenant_id, po.order_number, po.supplier_id, sup.name,
		       po.order_date, po.status, po.prices_include_vat,
		       po.subtotal, po.vat_total, po.grand_total, po.created_at
		FROM purchase_orders po
		JOIN suppliers sup ON sup.id = po.supplier_id
		WHERE po.tenant_id = $1
	`
	args := []any{tenantID}
	if status != nil {
		query += " AND po.status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY po.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase orders: %w", err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		var o PurchaseOrder
		if err := rows.Scan(
			&o.ID, &o.TenantID, &o.OrderNumber, &o.SupplierID, &o.SupplierName,
			&o.OrderDate, &o.Status, &o.PricesIncludeVAT,
			&o.Subtotal, &o.VATTotal, &o.GrandTotal, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
