package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusInvoiced  OrderStatus = "invoiced"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SalesOrder is a customer order header. Subtotal, VATTotal, GrandTotal and
// Profit are derived caches, recomputed from the line items inside the same
// transaction as every line mutation.
type SalesOrder struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	OrderNumber      string          `json:"order_number"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	CustomerName     string          `json:"customer_name"` // joined from customers
	SalespersonID    uuid.UUID       `json:"salesperson_id"`
	OrderDate        time.Time       `json:"order_date"`
	Status           OrderStatus     `json:"status"`
	PricesIncludeVAT bool            `json:"prices_include_vat"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	VATTotal         decimal.Decimal `json:"vat_total"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	Profit           decimal.Decimal `json:"profit"`
	GoneForDelivery  bool            `json:"gone_for_delivery"`
	Lines            []OrderLineItem `json:"lines"`
	CreatedAt        time.Time       `json:"created_at"`
}

// OrderLineItem is one product line on a sales order, unique per
// (order, product). LineTotal is computed, never accepted from the caller.
type OrderLineItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductCode string          `json:"product_code"` // joined from products
	ProductName string          `json:"product_name"` // joined from products
	VATRate     decimal.Decimal `json:"vat_rate"`     // joined from vat_settings
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"` // percentage 0–100
	LineTotal   decimal.Decimal `json:"line_total"`
}

// LineItemInput is the caller-supplied shape for creating or updating a line.
// A zero UnitPrice means "use the product's default".
type LineItemInput struct {
	ProductID uuid.UUID
	Quantity  int64
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}
