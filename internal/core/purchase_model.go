package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseOrderStatus string

const (
	PurchaseStatusDraft     PurchaseOrderStatus = "draft"
	PurchaseStatusConfirmed PurchaseOrderStatus = "confirmed"
	PurchaseStatusReceived  PurchaseOrderStatus = "received"
	PurchaseStatusCancelled PurchaseOrderStatus = "cancelled"
)

// PurchaseOrder mirrors SalesOrder on the buy side: line items increment
// stock instead of decrementing it, and there is no profit figure.
type PurchaseOrder struct {
	ID               uuid.UUID               `json:"id"`
	TenantID         uuid.UUID               `json:"tenant_id"`
	OrderNumber      string                  `json:"order_number"`
	SupplierID       uuid.UUID               `json:"supplier_id"`
	SupplierName     string                  `json:"supplier_name"` // joined from suppliers
	OrderDate        time.Time               `json:"order_date"`
	Status           PurchaseOrderStatus     `json:"status"`
	PricesIncludeVAT bool                    `json:"prices_include_vat"`
	Subtotal         decimal.Decimal         `json:"subtotal"`
	VATTotal         decimal.Decimal         `json:"vat_total"`
	GrandTotal       decimal.Decimal         `json:"grand_total"`
	Lines            []PurchaseOrderLineItem `json:"lines"`
	CreatedAt        time.Time               `json:"created_at"`
}

type PurchaseOrderLineItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductCode string          `json:"product_code"` // joined from products
	ProductName string          `json:"product_name"` // joined from products
	VATRate     decimal.Decimal `json:"vat_rate"`     // joined from vat_settings
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// PurchaseLineInput creates or updates a purchase line. A zero UnitCost means
// "use the product's default unit cost".
type PurchaseLineInput struct {
	ProductID uuid.UUID
	Quantity  int64
	UnitCost  decimal.Decimal
	Discount  decimal.Decimal
}
