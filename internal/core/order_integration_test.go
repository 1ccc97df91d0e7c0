package core_test

import (
	"context"
	"testing"
	"time"

	"salesledger/internal/core"

	"github.com/shopspring/decimal"
)

var orderDay = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestOrderService_CreateWithTotals(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	// 2 × Widget A @ 100, 5% VAT exclusive.
	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 2}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	if order.Status != core.OrderStatusDraft {
		t.Errorf("status = %s, want draft", order.Status)
	}
	if order.OrderNumber != "SO-20260301-001" {
		t.Errorf("order number = %q, want SO-20260301-001", order.OrderNumber)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(order.Lines))
	}
	if order.Lines[0].LineTotal.StringFixed(2) != "200.00" {
		t.Errorf("line total = %s, want 200.00", order.Lines[0].LineTotal.StringFixed(2))
	}
	if order.Subtotal.StringFixed(2) != "200.00" {
		t.Errorf("subtotal = %s, want 200.00", order.Subtotal.StringFixed(2))
	}
	if order.VATTotal.StringFixed(2) != "10.00" {
		t.Errorf("vat total = %s, want 10.00", order.VATTotal.StringFixed(2))
	}
	if order.GrandTotal.StringFixed(2) != "210.00" {
		t.Errorf("grand total = %s, want 210.00", order.GrandTotal.StringFixed(2))
	}
	// Profit = 200 − 2×60.
	if order.Profit.StringFixed(2) != "80.00" {
		t.Errorf("profit = %s, want 80.00", order.Profit.StringFixed(2))
	}
	if got := productStock(t, pool, testProductAID); got != 98 {
		t.Errorf("stock after order = %d, want 98", got)
	}
}

func TestOrderService_InclusivePrices(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	// 2 × 105 inclusive of 5% VAT: net 200, vat 10, grand 210.
	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, true,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 2, UnitPrice: dec("105")}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	if order.Subtotal.StringFixed(2) != "200.00" {
		t.Errorf("subtotal = %s, want 200.00", order.Subtotal.StringFixed(2))
	}
	if order.VATTotal.StringFixed(2) != "10.00" {
		t.Errorf("vat total = %s, want 10.00", order.VATTotal.StringFixed(2))
	}
	if order.GrandTotal.StringFixed(2) != "210.00" {
		t.Errorf("grand total = %s, want 210.00", order.GrandTotal.StringFixed(2))
	}
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestOrderService_OversellRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	// Widget B has 10 in stock.
	_, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductBID, Quantity: 11}},
	)
	if err == nil {
		t.Fatal("expected oversell to fail")
	}
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("kind = %s, want invalid_state", core.KindOf(err))
	}
	// The whole creation rolled back: no stock movement, no order row.
	if got := productStock(t, pool, testProductBID); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}
	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM sales_orders").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("sales_orders count = %d, want 0", count)
	}
}

func TestOrderService_LineUpdateAdjustsStockByDelta(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 5}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	if got := productStock(t, pool, testProductAID); got != 95 {
		t.Fatalf("stock = %d, want 95", got)
	}

	// Raising the quantity to 8 consumes only the 3 extra.
	order, err = svc.Orders.AddOrUpdateLineItem(ctx, testActor, order.ID,
		core.LineItemInput{ProductID: testProductAID, Quantity: 8},
	)
	if err != nil {
		t.Fatalf("AddOrUpdateLineItem failed: %v", err)
	}
	if got := productStock(t, pool, testProductAID); got != 92 {
		t.Errorf("stock = %d, want 92", got)
	}
	if len(order.Lines) != 1 || order.Lines[0].Quantity != 8 {
		t.Errorf("expected single line with quantity 8, got %+v", order.Lines)
	}

	// Lowering it returns the difference.
	_, err = svc.Orders.AddOrUpdateLineItem(ctx, testActor, order.ID,
		core.LineItemInput{ProductID: testProductAID, Quantity: 2},
	)
	if err != nil {
		t.Fatalf("AddOrUpdateLineItem failed: %v", err)
	}
	if got := productStock(t, pool, testProductAID); got != 98 {
		t.Errorf("stock = %d, want 98", got)
	}
}

func TestOrderService_DeleteLineRestoresStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{
			{ProductID: testProductAID, Quantity: 2},
			{ProductID: testProductBID, Quantity: 3},
		},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	order, err = svc.Orders.DeleteLineItem(ctx, testActor, order.ID, testProductBID)
	if err != nil {
		t.Fatalf("DeleteLineItem failed: %v", err)
	}
	if got := productStock(t, pool, testProductBID); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected 1 line after delete, got %d", len(order.Lines))
	}
	// Totals recomputed without the deleted line.
	if order.GrandTotal.StringFixed(2) != "210.00" {
		t.Errorf("grand total = %s, want 210.00", order.GrandTotal.StringFixed(2))
	}
}

func TestOrderService_CancelRestoresStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 7}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	order, err = svc.Orders.CancelOrder(ctx, testActor, order.ID)
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if order.Status != core.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", order.Status)
	}
	if got := productStock(t, pool, testProductAID); got != 100 {
		t.Errorf("stock = %d, want 100", got)
	}

	// A cancelled order rejects further line edits.
	_, err = svc.Orders.AddOrUpdateLineItem(ctx, testActor, order.ID,
		core.LineItemInput{ProductID: testProductAID, Quantity: 1},
	)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("kind = %s, want invalid_state", core.KindOf(err))
	}
}

func TestOrderService_ConfirmTransitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 1}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	order, err = svc.Orders.ConfirmOrder(ctx, testActor, order.ID)
	if err != nil {
		t.Fatalf("ConfirmOrder failed: %v", err)
	}
	if order.Status != core.OrderStatusConfirmed {
		t.Errorf("status = %s, want confirmed", order.Status)
	}

	// Confirming twice is rejected.
	_, err = svc.Orders.ConfirmOrder(ctx, testActor, order.ID)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("kind = %s, want invalid_state", core.KindOf(err))
	}

	// Confirmed orders still accept line edits.
	_, err = svc.Orders.AddOrUpdateLineItem(ctx, testActor, order.ID,
		core.LineItemInput{ProductID: testProductBID, Quantity: 1},
	)
	if err != nil {
		t.Errorf("line edit on confirmed order failed: %v", err)
	}
}

func TestOrderService_InputValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	_, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 0}},
	)
	if core.KindOf(err) != core.KindInvalidArgument {
		t.Errorf("zero quantity: kind = %s, want invalid_argument", core.KindOf(err))
	}

	_, err = svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 1, Discount: dec("101")}},
	)
	if core.KindOf(err) != core.KindInvalidArgument {
		t.Errorf("discount > 100: kind = %s, want invalid_argument", core.KindOf(err))
	}
}

func TestOrderService_DiscountAppliedToLineTotal(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 2, Discount: dec("10")}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	if order.Lines[0].LineTotal.StringFixed(2) != "180.00" {
		t.Errorf("line total = %s, want 180.00", order.Lines[0].LineTotal.StringFixed(2))
	}
	if order.GrandTotal.StringFixed(2) != "189.00" {
		t.Errorf("grand total = %s, want 189.00", order.GrandTotal.StringFixed(2))
	}
}

func TestOrderService_GetByNumber(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 1}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	got, err := svc.Orders.GetOrderByNumber(ctx, testTenantID, order.OrderNumber)
	if err != nil {
		t.Fatalf("GetOrderByNumber failed: %v", err)
	}
	if got.ID != order.ID {
		t.Errorf("got order %s, want %s", got.ID, order.ID)
	}

	if _, err := svc.Orders.GetOrderByNumber(ctx, testTenantID, "SO-19990101-001"); core.KindOf(err) != core.KindNotFound {
		t.Errorf("unknown number: kind = %s, want not_found", core.KindOf(err))
	}
}

func TestOrderService_TenantIsolation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 1}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}

	otherActor := core.Actor{UserID: testUser2ID, TenantID: testTenant2ID}
	if _, err := svc.Orders.GetOrder(ctx, otherActor.TenantID, order.ID); core.KindOf(err) != core.KindNotFound {
		t.Errorf("cross-tenant read: kind = %s, want not_found", core.KindOf(err))
	}
	if _, err := svc.Orders.ConfirmOrder(ctx, otherActor, order.ID); core.KindOf(err) != core.KindNotFound {
		t.Errorf("cross-tenant confirm: kind = %s, want not_found", core.KindOf(err))
	}
}
