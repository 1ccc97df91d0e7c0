package main

import (
	"context"
	"net/http"
	"os"

	webAdapter "salesledger/internal/adapters/web"
	"salesledger/internal/config"
	"salesledger/internal/core"
	"salesledger/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	logger := config.NewLogger()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()

	numbering := core.NewNumberingService()
	recorder := core.NopRecorder{}

	svc := webAdapter.Services{
		Catalog:   core.NewCatalogService(pool, recorder),
		Customers: core.NewCustomerService(pool, recorder),
		Orders:    core.NewOrderService(pool, numbering, recorder),
		Purchases: core.NewPurchaseService(pool, numbering, recorder),
		Invoices:  core.NewInvoiceService(pool, numbering, recorder),
		Payments:  core.NewPaymentService(pool, recorder),
		Routes:    core.NewRouteService(pool, numbering, recorder),
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins, logger)

	logger.Infof("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Fatalf("server: %v", err)
	}
}
