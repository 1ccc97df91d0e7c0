package web

import (
	"net/http"
	"time"

	"salesledger/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type invoiceOrderRequest struct {
	IssueDate time.Time        `json:"issue_date" validate:"required"`
	DueDate   *time.Time       `json:"due_date"`
	AmountDue *decimal.Decimal `json:"amount_due"`
}

func (h *Handler) invoiceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req invoiceOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.svc.Invoices.CreateInvoice(r.Context(), actor, orderID, req.IssueDate, req.DueDate, req.AmountDue)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.svc.Invoices.GetInvoice(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

func (h *Handler) getInvoiceByNumber(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.Invoices.GetInvoiceByNumber(r.Context(), actor.TenantID, chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var status *core.InvoiceStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := core.InvoiceStatus(raw)
		status = &st
	}
	invoices, err := h.svc.Invoices.ListInvoices(r.Context(), actor.TenantID, status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, invoices)
}

func (h *Handler) invoiceOutstanding(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	outstanding, err := h.svc.Invoices.OutstandingAmount(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type response struct {
		Outstanding decimal.Decimal `json:"outstanding"`
	}
	writeJSON(w, response{Outstanding: outstanding})
}

func (h *Handler) invoiceCredit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	credit, err := h.svc.Invoices.GetCreditForInvoice(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type response struct {
		*core.Credit
		Status core.CreditStatus `json:"status"`
	}
	writeJSON(w, response{Credit: credit, Status: credit.StatusAt(time.Now().UTC())})
}

func (h *Handler) settleInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.svc.Invoices.UpdatePaymentStatus(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.svc.Invoices.CancelInvoice(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

type extendCreditRequest struct {
	AdditionalDays int `json:"additional_days" validate:"required,gt=0"`
}

func (h *Handler) extendCredit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req extendCreditRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	credit, err := h.svc.Invoices.ExtendCredit(r.Context(), actor, id, req.AdditionalDays)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, credit)
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	PaidOn time.Time       `json:"paid_on" validate:"required"`
	Mode   string          `json:"mode" validate:"required,oneof=cash bank"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req recordPaymentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.Payments.RecordPayment(r.Context(), actor, invoiceID, req.Amount, req.PaidOn, core.PaymentMode(req.Mode))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.svc.Payments.ListPayments(r.Context(), actor.TenantID, invoiceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, payments)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Payments.DeletePayment(r.Context(), actor, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRouteRequest struct {
	Name string    `json:"name" validate:"required"`
	Date time.Time `json:"date" validate:"required"`
}

func (h *Handler) createRoute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createRouteRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	route, err := h.svc.Routes.CreateRoute(r.Context(), actor, req.Name, req.Date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, route)
}

func (h *Handler) getRoute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	route, err := h.svc.Routes.GetRoute(r.Context(), actor.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, route)
}

func (h *Handler) listRoutes(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	routes, err := h.svc.Routes.ListRoutes(r.Context(), actor.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, routes)
}

type saveVisitRequest struct {
	CustomerID string   `json:"customer_id" validate:"required,uuid"`
	OrderIDs   []string `json:"order_ids" validate:"dive,uuid"`
}

func (h *Handler) saveVisit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req saveVisitRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	orderIDs := make([]uuid.UUID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		orderIDs = append(orderIDs, mustUUID(raw))
	}
	visit, err := h.svc.Routes.SaveVisit(r.Context(), actor, routeID, mustUUID(req.CustomerID), orderIDs)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, visit)
}

func (h *Handler) listVisits(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	visits, err := h.svc.Routes.ListVisits(r.Context(), actor.TenantID, routeID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, visits)
}
