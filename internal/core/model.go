package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor identifies the already-authenticated user a mutation runs as, and the
// tenant every read and write is scoped to. Authentication and role checks
// happen upstream; the core only threads the actor through to domain events
// and tenant filters.
type Actor struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// Tenant is the owning business account. All ledger entities belong to
// exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// VATSetting is a named VAT category ("standard", "zero", "exempt") with its
// percentage rate, owned by a tenant.
type VATSetting struct {
	ID       uuid.UUID       `json:"id"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
}

// Product is catalog reference data. Stock is adjusted at line-item write
// time, never reserved ahead of confirmation.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	VATCategoryID uuid.UUID       `json:"vat_category_id"`
	VATRate       decimal.Decimal `json:"vat_rate"` // joined from vat_settings
	Stock         int64           `json:"stock"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Customer struct {
	ID               uuid.UUID `json:"id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Address          string    `json:"address"`
	CreditExpireDays int       `json:"credit_expire_days"`
	CreatedAt        time.Time `json:"created_at"`
}

type Supplier struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}
