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

// OrderService manages the sales order lifecycle. Every line mutation runs as
// one transaction: line write, stock delta under a product row lock, then a
// full recompute of the parent order's cached totals. There are no save
// hooks; this orchestration is the only write path.
type OrderService interface {
	// CreateSalesOrder opens a draft order. Customers with expired, unpaid
	// credit are rejected with KindCreditBlocked.
	CreateSalesOrder(ctx context.Context, actor Actor, customerID uuid.UUID, orderDate time.Time, pricesIncludeVAT bool, lines []LineItemInput) (*SalesOrder, error)
	AddOrUpdateLineItem(ctx context.Context, actor Actor, orderID uuid.UUID, in LineItemInput) (*SalesOrder, error)
	// DeleteLineItem removes a line and reverses its stock decrement.
	DeleteLineItem(ctx context.Context, actor Actor, orderID, productID uuid.UUID) (*SalesOrder, error)
	ConfirmOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*SalesOrder, error)
	// CancelOrder cancels a draft or confirmed order and restores the stock
	// its lines had taken. Invoiced orders cannot be cancelled.
	CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*SalesOrder, error)

	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*SalesOrder, error)
	GetOrderByNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*SalesOrder, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID, status *OrderStatus) ([]SalesOrder, error)
}

type orderService struct {
	pool      *pgxpool.Pool
	numbering NumberingService
	recorder  Recorder
}

func NewOrderService(pool *pgxpool.Pool, numbering NumberingService, recorder Recorder) OrderService {
	return &orderService{pool: pool, numbering: numbering, recorder: recorder}
}

func (s *orderService) CreateSalesOrder(ctx context.Context, actor Actor, customerID uuid.UUID, orderDate time.Time, pricesIncludeVAT bool, lines []LineItemInput) (*SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerName string
	err = tx.QueryRow(ctx,
		"SELECT name FROM customers WHERE id = $1 AND tenant_id = $2",
		customerID, actor.TenantID,
	).Scan(&customerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "customer %s not found", customerID)
		}
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	ok, err := canOrderQ(ctx, tx, actor.TenantID, customerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Errf(KindCreditBlocked, "customer %s has expired unpaid credit and cannot place orders", customerName)
	}

	orderNumber, err := s.numbering.NextNumberTx(ctx, tx, actor.TenantID, DocSalesOrder, orderDate)
	if err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO sales_orders (tenant_id, order_number, customer_id, salesperson_id, order_date, status, prices_include_vat)
		VALUES ($1, $2, $3, $4, $5, 'draft', $6)
		RETURNING id
	`, actor.TenantID, orderNumber, customerID, actor.UserID, orderDate, pricesIncludeVAT).Scan(&orderID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Errf(KindConflict, "order number %s already taken", orderNumber)
		}
		return nil, fmt.Errorf("failed to insert sales order: %w", err)
	}

	buf := newEventBuffer(actor)
	for i, in := range lines {
		if err := s.applyLineTx(ctx, tx, buf, actor.TenantID, orderID, in); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	totals, err := s.recomputeTotalsTx(ctx, tx, orderID, pricesIncludeVAT)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order creation: %w", err)
	}

	buf.add("sales_order", orderID, ActionCreate, nil, map[string]any{
		"order_number": orderNumber,
		"customer_id":  customerID.String(),
		"grand_total":  totals.GrandTotal.StringFixed(2),
	})
	buf.flush(ctx, s.recorder)

	return s.GetOrder(ctx, actor.TenantID, orderID)
}

func (s *orderService) AddOrUpdateLineItem(ctx context.Context, actor Actor, orderID uuid.UUID, in LineItemInput) (*SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockSalesOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != OrderStatusDraft && hdr.Status != OrderStatusConfirmed {
		return nil, Errf(KindInvalidState, "order %s cannot be modified: status is %s", hdr.OrderNumber, hdr.Status)
	}

	buf := newEventBuffer(actor)
	if err := s.applyLineTx(ctx, tx, buf, actor.TenantID, orderID, in); err != nil {
		return nil, err
	}
	if _, err := s.recomputeTotalsTx(ctx, tx, orderID, hdr.PricesIncludeVAT); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit line item: %w", err)
	}
	buf.flush(ctx, s.recorder)

	return s.GetOrder(ctx, actor.TenantID, orderID)
}

func (s *orderService) DeleteLineItem(ctx context.Context, actor Actor, orderID, productID uuid.UUID) (*SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockSalesOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != OrderStatusDraft && hdr.Status != OrderStatusConfirmed {
		return nil, Errf(KindInvalidState, "order %s cannot be modified: status is %s", hdr.OrderNumber, hdr.Status)
	}

	var lineID uuid.UUID
	var qty int64
	err = tx.QueryRow(ctx,
		"SELECT id, quantity FROM order_line_items WHERE order_id = $1 AND product_id = $2",
		orderID, productID,
	).Scan(&lineID, &qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "order %s has no line for product %s", hdr.OrderNumber, productID)
		}
		return nil, fmt.Errorf("failed to fetch line item: %w", err)
	}

	buf := newEventBuffer(actor)

	// Return the line's quantity to stock before dropping the line.
	prod, err := lockProductTx(ctx, tx, actor.TenantID, productID)
	if err != nil {
		return nil, err
	}
	if err := applyStockDeltaTx(ctx, tx, buf, prod, qty); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM order_line_items WHERE id = $1", lineID); err != nil {
		return nil, fmt.Errorf("failed to delete line item: %w", err)
	}
	buf.add("order_line_item", lineID, ActionDelete, map[string]any{"product_id": productID.String(), "quantity": qty}, nil)

	if _, err := s.recomputeTotalsTx(ctx, tx, orderID, hdr.PricesIncludeVAT); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit line item deletion: %w", err)
	}
	buf.flush(ctx, s.recorder)

	return s.GetOrder(ctx, actor.TenantID, orderID)
}

func (s *orderService) ConfirmOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockSalesOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != OrderStatusDraft {
		return nil, Errf(KindInvalidState, "order %s cannot be confirmed: status is %s", hdr.OrderNumber, hdr.Status)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE sales_orders SET status = 'confirmed', updated_at = now() WHERE id = $1",
		orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to confirm order %s: %w", hdr.OrderNumber, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order confirmation: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("sales_order", orderID, ActionUpdate,
		map[string]any{"status": string(OrderStatusDraft)},
		map[string]any{"status": string(OrderStatusConfirmed)},
	)
	buf.flush(ctx, s.recorder)

	return s.GetOrder(ctx, actor.TenantID, orderID)
}

func (s *orderService) CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	hdr, err := lockSalesOrderTx(ctx, tx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if hdr.Status != OrderStatusDraft && hdr.Status != OrderStatusConfirmed {
		return nil, Errf(KindInvalidState, "order %s cannot be cancelled: status is %s", hdr.OrderNumber, hdr.Status)
	}

	buf := newEventBuffer(actor)

	// Give the lines' quantities back to stock; cancellation must be
	// symmetric with line creation.
	rows, err := tx.Query(ctx,
		"SELECT product_id, quantity FROM order_line_items WHERE order_id = $1",
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
		if err := applyStockDeltaTx(ctx, tx, buf, prod, l.qty); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE sales_orders SET status = 'cancelled', updated_at = now() WHERE id = $1",
		orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", hdr.OrderNumber, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order cancellation: %w", err)
	}

	buf.add("sales_order", orderID, ActionUpdate,
		map[string]any{"status": string(hdr.Status)},
		map[string]any{"status": string(OrderStatusCancelled)},
	)
	buf.flush(ctx, s.recorder)

	return s.GetOrder(ctx, actor.TenantID, orderID)
}

// applyLineTx upserts one line: validates input, locks the product, applies
// the stock delta (new quantity minus old), and writes the computed
// line_total. Caller recomputes the order totals afterwards.
func (s *orderService) applyLineTx(ctx context.Context, tx pgx.Tx, buf *eventBuffer, tenantID, orderID uuid.UUID, in LineItemInput) error {
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

	price := in.UnitPrice
	if price.IsZero() {
		price = prod.UnitPrice
	}
	total := lineTotal(price, in.Quantity, in.Discount)

	var oldQty int64
	err = tx.QueryRow(ctx,
		"SELECT quantity FROM order_line_items WHERE order_id = $1 AND product_id = $2",
		orderID, in.ProductID,
	).Scan(&oldQty)
	isNew := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !isNew {
		return fmt.Errorf("failed to fetch existing line: %w", err)
	}

	// Sales lines consume stock, so the delta is negated.
	if err := applyStockDeltaTx(ctx, tx, buf, prod, -(in.Quantity - oldQty)); err != nil {
		return err
	}

	var lineID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO order_line_items (order_id, product_id, quantity, unit_price, discount, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET quantity = $3, unit_price = $4, discount = $5, line_total = $6
		RETURNING id
	`, orderID, in.ProductID, in.Quantity, price, in.Discount, total).Scan(&lineID)
	if err != nil {
		return fmt.Errorf("failed to upsert line item: %w", err)
	}

	action := ActionUpdate
	var before map[string]any
	if isNew {
		action = ActionCreate
	} else {
		before = map[string]any{"quantity": oldQty}
	}
	buf.add("order_line_item", lineID, action, before, map[string]any{
		"product_id": in.ProductID.String(),
		"quantity":   in.Quantity,
		"line_total": total.StringFixed(2),
	})
	return nil
}

// recomputeTotalsTx re-derives the order's cached subtotal, VAT total, grand
// total and profit from all current lines. Always a full recompute, never
// incremental: the read cost buys idempotence.
func (s *orderService) recomputeTotalsTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, inclusive bool) (orderTotals, error) {
	rows, err := tx.Query(ctx, `
		SELECT li.line_total, li.quantity, v.rate, p.unit_cost
		FROM order_line_items li
		JOIN products p ON p.id = li.product_id
		JOIN vat_settings v ON v.id = p.vat_category_id
		WHERE li.order_id = $1
	`, orderID)
	if err != nil {
		return orderTotals{}, fmt.Errorf("failed to query lines for totals: %w", err)
	}
	defer rows.Close()

	var lines []totalLine
	for rows.Next() {
		var l totalLine
		if err := rows.Scan(&l.Gross, &l.Quantity, &l.VATRate, &l.UnitCost); err != nil {
			return orderTotals{}, fmt.Errorf("failed to scan totals line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return orderTotals{}, fmt.Errorf("error iterating totals lines: %w", err)
	}

	t := computeTotals(lines, inclusive)
	_, err = tx.Exec(ctx, `
		UPDATE sales_orders
		SET subtotal = $1, vat_total = $2, grand_total = $3, profit = $4, updated_at = now()
		WHERE id = $5
	`, t.Subtotal, t.VATTotal, t.GrandTotal, t.Profit, orderID)
	if err != nil {
		return orderTotals{}, fmt.Errorf("failed to update order totals: %w", err)
	}
	return t, nil
}

// salesOrderHeader is the locked header row used for state checks.
type salesOrderHeader struct {
	ID               uuid.UUID
	OrderNumber      string
	CustomerID       uuid.UUID
	Status           OrderStatus
	PricesIncludeVAT bool
}

func lockSalesOrderTx(ctx context.Context, tx pgx.Tx, tenantID, orderID uuid.UUID) (*salesOrderHeader, error) {
	var h salesOrderHeader
	err := tx.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, prices_include_vat
		FROM sales_orders
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, orderID, tenantID).Scan(&h.ID, &h.OrderNumber, &h.CustomerID, &h.Status, &h.PricesIncludeVAT)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "sales order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to lock sales order %s: %w", orderID, err)
	}
	return &h, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *orderService) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*SalesOrder, error) {
	var o SalesOrder
	err := s.pool.QueryRow(ctx, `
		SELECT so.id, so.tenant_id, so.order_number, so.customer_id, c.name,
		       so.salesperson_id, so.order_date, so.status, so.prices_include_vat,
		       so.subtotal, so.vat_total, so.grand_total, so.profit,
		       so.gone_for_delivery, so.created_at
		FROM sales_orders so
		JOIN customers c ON c.id = so.customer_id
		WHERE so.id = $1 AND so.tenant_id = $2
	`, orderID, tenantID).Scan(
		&o.ID, &o.TenantID, &o.OrderNumber, &o.CustomerID, &o.CustomerName,
		&o.SalespersonID, &o.OrderDate, &o.Status, &o.PricesIncludeVAT,
		&o.Subtotal, &o.VATTotal, &o.GrandTotal, &o.Profit,
		&o.GoneForDelivery, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "sales order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to fetch sales order %s: %w", orderID, err)
	}

	lines, err := fetchOrderLinesQ(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*SalesOrder, error) {
	var orderID uuid.UUID
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM sales_orders WHERE tenant_id = $1 AND order_number = $2",
		tenantID, orderNumber,
	).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "sales order %s not found", orderNumber)
		}
		return nil, fmt.Errorf("failed to lookup order by number: %w", err)
	}
	return s.GetOrder(ctx, tenantID, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, tenantID uuid.UUID, status *OrderStatus) ([]SalesOrder, error) {
	query := `
		SELECT so.id, so.tenant_id, so.order_number, so.customer_id, c.name,
		       so.salesperson_id, so.order_date, so.status, so.prices_include_vat,
		       so.subtotal, so.vat_total, so.grand_total, so.profit,
		       so.gone_for_delivery, so.created_at
		FROM sales_orders so
		JOIN customers c ON c.id = so.customer_id
		WHERE so.tenant_id = $1
	`
	args := []any{tenantID}
	if status != nil {
		query += " AND so.status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY so.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales orders: %w", err)
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		var o SalesOrder
		if err := rows.Scan(
			&o.ID, &o.TenantID, &o.OrderNumber, &o.CustomerID, &o.CustomerName,
			&o.SalespersonID, &o.OrderDate, &o.Status, &o.PricesIncludeVAT,
			&o.Subtotal, &o.VATTotal, &o.GrandTotal, &o.Profit,
			&o.GoneForDelivery, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sales order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx (for Query).
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func fetchOrderLinesQ(ctx context.Context, q pgxRowQuerier, orderID uuid.UUID) ([]OrderLineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT li.id, li.order_id, li.product_id, p.code, p.name, v.rate,
		       li.quantity, li.unit_price, li.discount, li.line_total
		FROM order_line_items li
		JOIN products p ON p.id = li.product_id
		JOIN vat_settings v ON v.id = p.vat_category_id
		WHERE li.order_id = $1
		ORDER BY p.code
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLineItem
	for rows.Next() {
		var l OrderLineItem
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.ProductCode, &l.ProductName, &l.VATRate,
			&l.Quantity, &l.UnitPrice, &l.Discount, &l.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
