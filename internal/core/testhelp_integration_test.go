package core_test

import (
	"context"
	"os"
	"testing"

	"salesledger/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Fixed fixture IDs so tests can reference seeded rows directly.
var (
	testTenantID   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testTenant2ID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testUserID     = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testUser2ID    = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	testVATStdID   = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	testVATZeroID  = uuid.MustParse("dddddddd-dddd-dddd-dddd-dddddddddddd")
	testProductAID = uuid.MustParse("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee")
	testProductBID = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	testCustomerID = uuid.MustParse("99999999-9999-9999-9999-999999999999")
	testSupplierID = uuid.MustParse("88888888-8888-8888-8888-888888888888")
)

var testActor = core.Actor{UserID: testUserID, TenantID: testTenantID}

// setupTestDB connects to the dedicated test database, wipes it, and seeds the
// baseline fixture: two tenants, a user each, standard (5%) and zero VAT
// categories, two products, a customer and a supplier.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE route_visit_orders, route_visits, routes, payments, credits,
			invoices, order_line_items, sales_orders, purchase_order_line_items,
			purchase_orders, products, vat_settings, customers, suppliers,
			doc_sequences, users, tenants CASCADE;

		INSERT INTO tenants (id, name) VALUES
		('11111111-1111-1111-1111-111111111111', 'Test Distributor'),
		('22222222-2222-2222-2222-222222222222', 'Other Tenant');

		INSERT INTO users (id, tenant_id, name, email) VALUES
		('aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa', '11111111-1111-1111-1111-111111111111', 'Sales Rep', 'rep@test.local'),
		('bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb', '22222222-2222-2222-2222-222222222222', 'Other Rep', 'other@test.local');

		INSERT INTO vat_settings (id, tenant_id, category, rate) VALUES
		('cccccccc-cccc-cccc-cccc-cccccccccccc', '11111111-1111-1111-1111-111111111111', 'standard', 5.00),
		('dddddddd-dddd-dddd-dddd-dddddddddddd', '11111111-1111-1111-1111-111111111111', 'zero', 0.00);

		INSERT INTO products (id, tenant_id, code, name, unit_price, unit_cost, vat_category_id, stock) VALUES
		('eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee', '11111111-1111-1111-1111-111111111111', 'P001', 'Widget A', 100.00, 60.00, 'cccccccc-cccc-cccc-cccc-cccccccccccc', 100),
		('ffffffff-ffff-ffff-ffff-ffffffffffff', '11111111-1111-1111-1111-111111111111', 'P002', 'Widget B', 50.00, 20.00, 'dddddddd-dddd-dddd-dddd-dddddddddddd', 10);

		INSERT INTO customers (id, tenant_id, name, email, credit_expire_days) VALUES
		('99999999-9999-9999-9999-999999999999', '11111111-1111-1111-1111-111111111111', 'Corner Shop', 'shop@test.local', 30);

		INSERT INTO suppliers (id, tenant_id, name) VALUES
		('88888888-8888-8888-8888-888888888888', '11111111-1111-1111-1111-111111111111', 'Wholesale Ltd');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

// testServices bundles freshly constructed services over one pool.
type testServices struct {
	Catalog   core.CatalogService
	Customers core.CustomerService
	Orders    core.OrderService
	Purchases core.PurchaseService
	Invoices  core.InvoiceService
	Payments  core.PaymentService
	Routes    core.RouteService
}

func newTestServices(pool *pgxpool.Pool) testServices {
	numbering := core.NewNumberingService()
	recorder := core.NopRecorder{}
	return testServices{
		Catalog:   core.NewCatalogService(pool, recorder),
		Customers: core.NewCustomerService(pool, recorder),
		Orders:    core.NewOrderService(pool, numbering, recorder),
		Purchases: core.NewPurchaseService(pool, numbering, recorder),
		Invoices:  core.NewInvoiceService(pool, numbering, recorder),
		Payments:  core.NewPaymentService(pool, recorder),
		Routes:    core.NewRouteService(pool, numbering, recorder),
	}
}

func productStock(t *testing.T, pool *pgxpool.Pool, productID uuid.UUID) int64 {
	t.Helper()
	var stock int64
	err := pool.QueryRow(context.Background(),
		"SELECT stock FROM products WHERE id = $1", productID,
	).Scan(&stock)
	if err != nil {
		t.Fatalf("Failed to read stock: %v", err)
	}
	return stock
}
