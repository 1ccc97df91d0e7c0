package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"salesledger/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// createTestOrder seeds one 2×WidgetA order (grand total 210.00) and returns it.
func createTestOrder(t *testing.T, svc testServices) *core.SalesOrder {
	t.Helper()
	order, err := svc.Orders.CreateSalesOrder(context.Background(), testActor, testCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: testProductAID, Quantity: 2}},
	)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	return order
}

func TestInvoiceService_CreateOpensCredit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order := createTestOrder(t, svc)
	issue := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	due := issue.AddDate(0, 0, 14)

	inv, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, issue, &due, nil)
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if inv.InvoiceNo != "INV-20260302-001" {
		t.Errorf("invoice no = %q, want INV-20260302-001", inv.InvoiceNo)
	}
	if inv.AmountDue.StringFixed(2) != "210.00" {
		t.Errorf("amount due = %s, want 210.00", inv.AmountDue.StringFixed(2))
	}
	// A fresh invoice with its credit and no payments reads sent.
	if inv.Status != core.InvoiceStatusSent {
		t.Errorf("status = %s, want sent", inv.Status)
	}

	credit, err := svc.Invoices.GetCreditForInvoice(ctx, testTenantID, inv.ID)
	if err != nil {
		t.Fatalf("GetCreditForInvoice failed: %v", err)
	}
	if credit.Amount.StringFixed(2) != "210.00" {
		t.Errorf("credit amount = %s, want 210.00", credit.Amount.StringFixed(2))
	}
	if credit.ExpiredAt == nil || !credit.ExpiredAt.Equal(due) {
		t.Errorf("credit expiry = %v, want %v", credit.ExpiredAt, due)
	}
	if got := credit.StatusAt(issue); got != core.CreditStatusActive {
		t.Errorf("credit status = %s, want active", got)
	}

	// The order flipped to invoiced and is now frozen.
	got, err := svc.Orders.GetOrder(ctx, testTenantID, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != core.OrderStatusInvoiced {
		t.Errorf("order status = %s, want invoiced", got.Status)
	}
	if _, err := svc.Orders.AddOrUpdateLineItem(ctx, testActor, order.ID,
		core.LineItemInput{ProductID: testProductAID, Quantity: 3},
	); core.KindOf(err) != core.KindInvalidState {
		t.Errorf("line edit on invoiced order: kind = %s, want invalid_state", core.KindOf(err))
	}

	outstanding, err := svc.Invoices.OutstandingAmount(ctx, testTenantID, inv.ID)
	if err != nil {
		t.Fatalf("OutstandingAmount failed: %v", err)
	}
	if outstanding.StringFixed(2) != "210.00" {
		t.Errorf("outstanding = %s, want 210.00", outstanding.StringFixed(2))
	}
}

func TestInvoiceService_DefaultExpiryFromCreditTerms(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order := createTestOrder(t, svc)
	issue := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	inv, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, issue, nil, nil)
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	credit, err := svc.Invoices.GetCreditForInvoice(ctx, testTenantID, inv.ID)
	if err != nil {
		t.Fatalf("GetCreditForInvoice failed: %v", err)
	}
	// Customer's terms are 30 days.
	want := issue.AddDate(0, 0, 30)
	if credit.ExpiredAt == nil || !credit.ExpiredAt.Equal(want) {
		t.Errorf("credit expiry = %v, want %v", credit.ExpiredAt, want)
	}
}

func TestInvoiceService_DuplicateRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order := createTestOrder(t, svc)
	issue := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, issue, nil, nil); err != nil {
		t.Fatalf("first CreateInvoice failed: %v", err)
	}
	_, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, issue, nil, nil)
	if core.KindOf(err) != core.KindAlreadyExists {
		t.Errorf("kind = %s, want already_exists", core.KindOf(err))
	}
}

func TestInvoiceService_CancelledOrderRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order := createTestOrder(t, svc)
	if _, err := svc.Orders.CancelOrder(ctx, testActor, order.ID); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}

	_, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, orderDay, nil, nil)
	if core.KindOf(err) != core.KindInvalidState {
		t.Errorf("kind = %s, want invalid_state", core.KindOf(err))
	}
}

func TestInvoiceService_ExtendCredit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order := createTestOrder(t, svc)
	issue := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	due := issue.AddDate(0, 0, 7)
	inv, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, issue, &due, nil)
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	credit, err := svc.Invoices.GetCreditForInvoice(ctx, testTenantID, inv.ID)
	if err != nil {
		t.Fatalf("GetCreditForInvoice failed: %v", err)
	}

	extended, err := svc.Invoices.ExtendCredit(ctx, testActor, credit.ID, 10)
	if err != nil {
		t.Fatalf("ExtendCredit failed: %v", err)
	}
	want := due.AddDate(0, 0, 10)
	if extended.ExpiredAt == nil || !extended.ExpiredAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", extended.ExpiredAt, want)
	}

	if _, err := svc.Invoices.ExtendCredit(ctx, testActor, credit.ID, 0); core.KindOf(err) != core.KindInvalidArgument {
		t.Errorf("zero days: kind = %s, want invalid_argument", core.KindOf(err))
	}
}

func TestInvoiceService_ConcurrentNumbering(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	const n = 8
	orders := make([]*core.SalesOrder, n)
	for i := range orders {
		orders[i] = createTestOrder(t, svc)
	}

	issue := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	results := make([]*core.Invoice, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Invoices.CreateInvoice(ctx, testActor, orders[i].ID, issue, nil, nil)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("concurrent CreateInvoice %d failed: %v", i, errs[i])
		}
		if seen[results[i].InvoiceNo] {
			t.Errorf("duplicate invoice number %q", results[i].InvoiceNo)
		}
		seen[results[i].InvoiceNo] = true
	}
}

func TestInvoiceService_CancelClearsCredit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	order := createTestOrder(t, svc)
	inv, err := svc.Invoices.CreateInvoice(ctx, testActor, order.ID, orderDay, nil, nil)
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	cancelled, err := svc.Invoices.CancelInvoice(ctx, testActor, inv.ID)
	if err != nil {
		t.Fatalf("CancelInvoice failed: %v", err)
	}
	if cancelled.Status != core.InvoiceStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if _, err := svc.Invoices.GetCreditForInvoice(ctx, testTenantID, inv.ID); core.KindOf(err) != core.KindNotFound {
		t.Errorf("credit after cancel: kind = %s, want not_found", core.KindOf(err))
	}
}

// numbering restarts per tenant: the other tenant's first invoice that day is
// also number 001.
func TestNumbering_PerTenant(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	seedOtherTenantOrderFixtures(t, pool)

	first := createTestOrder(t, svc)
	if first.OrderNumber != "SO-20260301-001" {
		t.Errorf("tenant one order number = %q, want SO-20260301-001", first.OrderNumber)
	}

	otherActor := core.Actor{UserID: testUser2ID, TenantID: testTenant2ID}
	other, err := svc.Orders.CreateSalesOrder(ctx, otherActor, otherCustomerID, orderDay, false,
		[]core.LineItemInput{{ProductID: otherProductID, Quantity: 1}},
	)
	if err != nil {
		t.Fatalf("other tenant CreateSalesOrder failed: %v", err)
	}
	if other.OrderNumber != "SO-20260301-001" {
		t.Errorf("tenant two order number = %q, want SO-20260301-001", other.OrderNumber)
	}
}

var (
	otherCustomerID = uuid.MustParse("77777777-7777-7777-7777-777777777777")
	otherVATID      = uuid.MustParse("66666666-6666-6666-6666-666666666666")
	otherProductID  = uuid.MustParse("55555555-5555-5555-5555-555555555555")
)

func seedOtherTenantOrderFixtures(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO vat_settings (id, tenant_id, category, rate) VALUES
		('66666666-6666-6666-6666-666666666666', '22222222-2222-2222-2222-222222222222', 'standard', 5.00);
		INSERT INTO products (id, tenant_id, code, name, unit_price, unit_cost, vat_category_id, stock) VALUES
		('55555555-5555-5555-5555-555555555555', '22222222-2222-2222-2222-222222222222', 'P001', 'Widget A', 100.00, 60.00, '66666666-6666-6666-6666-666666666666', 100);
		INSERT INTO customers (id, tenant_id, name, credit_expire_days) VALUES
		('77777777-7777-7777-7777-777777777777', '22222222-2222-2222-2222-222222222222', 'Other Shop', 30);
	`)
	if err != nil {
		t.Fatalf("Failed to seed other tenant fixtures: %v", err)
	}
}
