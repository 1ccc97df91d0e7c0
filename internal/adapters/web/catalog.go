package web

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type createVATCategoryRequest struct {
	Category string          `json:"category" validate:"required"`
	Rate     decimal.Decimal `json:"rate"`
}

func (h *Handler) createVATCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createVATCategoryRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	v, err := h.svc.Catalog.CreateVATCategory(r.Context(), actor, req.Category, req.Rate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, v)
}

func (h *Handler) listVATCategories(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	settings, err := h.svc.Catalog.ListVATCategories(r.Context(), actor.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, settings)
}

type createProductRequest struct {
	Code          string          `json:"code" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	VATCategoryID string          `json:"vat_category_id" validate:"required,uuid"`
	Stock         int64           `json:"stock" validate:"gte=0"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createProductRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	vatID := mustUUID(req.VATCategoryID)
	p, err := h.svc.Catalog.CreateProduct(r.Context(), actor, req.Code, req.Name, req.UnitPrice, req.UnitCost, vatID, req.Stock)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Catalog.GetProduct(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	products, err := h.svc.Catalog.ListProducts(r.Context(), actor.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, products)
}

func (h *Handler) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeactivateProduct(r.Context(), actor, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createCustomerRequest struct {
	Name             string `json:"name" validate:"required"`
	Email            string `json:"email" validate:"omitempty,email"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	CreditExpireDays int    `json:"credit_expire_days" validate:"gte=0"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createCustomerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.Customers.CreateCustomer(r.Context(), actor, req.Name, req.Email, req.Phone, req.Address, req.CreditExpireDays)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, c)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.svc.Customers.GetCustomer(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, c)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	customers, err := h.svc.Customers.ListCustomers(r.Context(), actor.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, customers)
}

func (h *Handler) customerCanOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	canOrder, err := h.svc.Customers.CanOrder(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type response struct {
		CanOrder bool `json:"can_order"`
	}
	writeJSON(w, response{CanOrder: canOrder})
}

func (h *Handler) customerBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	balance, err := h.svc.Customers.CustomerBalance(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type response struct {
		Balance decimal.Decimal `json:"balance"`
	}
	writeJSON(w, response{Balance: balance})
}

type createSupplierRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createSupplierRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	sup, err := h.svc.Customers.CreateSupplier(r.Context(), actor, req.Name, req.Email, req.Phone, req.Address)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, sup)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sup, err := h.svc.Customers.GetSupplier(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, sup)
}
