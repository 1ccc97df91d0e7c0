package web

import (
	"net/http"
	"time"

	"salesledger/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type lineItemPayload struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

type createOrderRequest struct {
	CustomerID       string            `json:"customer_id" validate:"required,uuid"`
	OrderDate        time.Time         `json:"order_date" validate:"required"`
	PricesIncludeVAT bool              `json:"prices_include_vat"`
	Lines            []lineItemPayload `json:"lines" validate:"dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	lines := make([]core.LineItemInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, core.LineItemInput{
			ProductID: mustUUID(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
		})
	}
	o, err := h.svc.Orders.CreateSalesOrder(r.Context(), actor, mustUUID(req.CustomerID), req.OrderDate, req.PricesIncludeVAT, lines)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Orders.GetOrder(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Orders.GetOrderByNumber(r.Context(), actor.TenantID, chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var status *core.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := core.OrderStatus(raw)
		status = &st
	}
	orders, err := h.svc.Orders.ListOrders(r.Context(), actor.TenantID, status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, orders)
}

func (h *Handler) upsertOrderLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req lineItemPayload
	if !h.decodeJSON(w, r, &req) {
		return
	}
	o, err := h.svc.Orders.AddOrUpdateLineItem(r.Context(), actor, id, core.LineItemInput{
		ProductID: mustUUID(req.ProductID),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Discount:  req.Discount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) deleteOrderLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	o, err := h.svc.Orders.DeleteLineItem(r.Context(), actor, id, productID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Orders.ConfirmOrder(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Orders.CancelOrder(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

type purchaseLinePayload struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Discount  decimal.Decimal `json:"discount"`
}

type createPurchaseOrderRequest struct {
	SupplierID       string                `json:"supplier_id" validate:"required,uuid"`
	OrderDate        time.Time             `json:"order_date" validate:"required"`
	PricesIncludeVAT bool                  `json:"prices_include_vat"`
	Lines            []purchaseLinePayload `json:"lines" validate:"dive"`
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createPurchaseOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	lines := make([]core.PurchaseLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, core.PurchaseLineInput{
			ProductID: mustUUID(l.ProductID),
			Quantity:  l.Quantity,
			UnitCost:  l.UnitCost,
			Discount:  l.Discount,
		})
	}
	o, err := h.svc.Purchases.CreatePurchaseOrder(r.Context(), actor, mustUUID(req.SupplierID), req.OrderDate, req.PricesIncludeVAT, lines)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, o)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Purchases.GetPurchaseOrder(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var status *core.PurchaseOrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := core.PurchaseOrderStatus(raw)
		status = &st
	}
	orders, err := h.svc.Purchases.ListPurchaseOrders(r.Context(), actor.TenantID, status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, orders)
}

func (h *Handler) upsertPurchaseLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req purchaseLinePayload
	if !h.decodeJSON(w, r, &req) {
		return
	}
	o, err := h.svc.Purchases.AddOrUpdateLineItem(r.Context(), actor, id, core.PurchaseLineInput{
		ProductID: mustUUID(req.ProductID),
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Discount:  req.Discount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) deletePurchaseLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	productID, ok := pathUUID(w, r, "productID")
	if !ok {
		return
	}
	o, err := h.svc.Purchases.DeleteLineItem(r.Context(), actor, id, productID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) confirmPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Purchases.ConfirmPurchaseOrder(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) receivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Purchases.ReceivePurchaseOrder(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) cancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.svc.Purchases.CancelPurchaseOrder(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, o)
}
