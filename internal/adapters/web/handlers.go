package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"salesledger/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Services bundles the core services the adapter exposes.
type Services struct {
	Catalog   core.CatalogService
	Customers core.CustomerService
	Orders    core.OrderService
	Purchases core.PurchaseService
	Invoices  core.InvoiceService
	Payments  core.PaymentService
	Routes    core.RouteService
}

// Handler holds the core services, the chi router, and the payload validator.
type Handler struct {
	svc      Services
	router   chi.Router
	validate *validator.Validate
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc Services, allowedOrigins string, logger *logrus.Logger) http.Handler {
	h := &Handler{
		svc:      svc,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(1 << 20)) // 1 MB

	r.Get("/api/health", h.health)

	r.Route("/api", func(r chi.Router) {
		// Catalog
		r.Post("/vat-categories", h.createVATCategory)
		r.Get("/vat-categories", h.listVATCategories)
		r.Post("/products", h.createProduct)
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Delete("/products/{id}", h.deactivateProduct)

		// Customers & suppliers
		r.Post("/customers", h.createCustomer)
		r.Get("/customers", h.listCustomers)
		r.Get("/customers/{id}", h.getCustomer)
		r.Get("/customers/{id}/can-order", h.customerCanOrder)
		r.Get("/customers/{id}/balance", h.customerBalance)
		r.Post("/suppliers", h.createSupplier)
		r.Get("/suppliers/{id}", h.getSupplier)

		// Sales orders
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/number/{number}", h.getOrderByNumber)
		r.Put("/orders/{id}/lines", h.upsertOrderLine)
		r.Delete("/orders/{id}/lines/{productID}", h.deleteOrderLine)
		r.Post("/orders/{id}/confirm", h.confirmOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Post("/orders/{id}/invoice", h.invoiceOrder)

		// Purchase orders
		r.Post("/purchase-orders", h.createPurchaseOrder)
		r.Get("/purchase-orders", h.listPurchaseOrders)
		r.Get("/purchase-orders/{id}", h.getPurchaseOrder)
		r.Put("/purchase-orders/{id}/lines", h.upsertPurchaseLine)
		r.Delete("/purchase-orders/{id}/lines/{productID}", h.deletePurchaseLine)
		r.Post("/purchase-orders/{id}/confirm", h.confirmPurchaseOrder)
		r.Post("/purchase-orders/{id}/receive", h.receivePurchaseOrder)
		r.Post("/purchase-orders/{id}/cancel", h.cancelPurchaseOrder)

		// Invoices, credits, payments
		r.Get("/invoices", h.listInvoices)
		r.Get("/invoices/{id}", h.getInvoice)
		r.Get("/invoices/number/{number}", h.getInvoiceByNumber)
		r.Get("/invoices/{id}/outstanding", h.invoiceOutstanding)
		r.Get("/invoices/{id}/credit", h.invoiceCredit)
		r.Post("/invoices/{id}/settle", h.settleInvoice)
		r.Post("/invoices/{id}/cancel", h.cancelInvoice)
		r.Post("/invoices/{id}/payments", h.recordPayment)
		r.Get("/invoices/{id}/payments", h.listPayments)
		r.Delete("/payments/{id}", h.deletePayment)
		r.Post("/credits/{id}/extend", h.extendCredit)

		// Routes
		r.Post("/routes", h.createRoute)
		r.Get("/routes", h.listRoutes)
		r.Get("/routes/{id}", h.getRoute)
		r.Post("/routes/{id}/visits", h.saveVisit)
		r.Get("/routes/{id}/visits", h.listVisits)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// actorFrom builds the acting identity from the X-Tenant-ID and X-User-ID
// headers. Authentication happens upstream; the adapter only requires that
// both identifiers are present and well formed.
func actorFrom(w http.ResponseWriter, r *http.Request) (core.Actor, bool) {
	tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-ID"))
	if err != nil {
		writeError(w, r, "missing or invalid X-Tenant-ID header", "INVALID_ARGUMENT", http.StatusBadRequest)
		return core.Actor{}, false
	}
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		writeError(w, r, "missing or invalid X-User-ID header", "INVALID_ARGUMENT", http.StatusBadRequest)
		return core.Actor{}, false
	}
	return core.Actor{UserID: userID, TenantID: tenantID}, true
}

// mustUUID parses an id already vetted by the validator's uuid tag.
func mustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

// pathUUID extracts and parses a UUID URL parameter.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, "invalid "+name+" in path", "INVALID_ARGUMENT", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON decodes the request body into v, runs struct validation, and
// writes the appropriate error response on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, r, "validation failed: "+err.Error(), "INVALID_ARGUMENT", http.StatusBadRequest)
		return false
	}
	return true
}
