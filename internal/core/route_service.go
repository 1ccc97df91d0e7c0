package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RouteService tracks delivery routes and the customer visits made on them.
// Linking an order to a visit marks it gone for delivery.
type RouteService interface {
	CreateRoute(ctx context.Context, actor Actor, name string, date time.Time) (*Route, error)
	GetRoute(ctx context.Context, tenantID, routeID uuid.UUID) (*Route, error)
	ListRoutes(ctx context.Context, tenantID uuid.UUID) ([]Route, error)

	// SaveVisit records one customer stop on the route and links the sales
	// orders handed over there, flagging each as gone for delivery.
	SaveVisit(ctx context.Context, actor Actor, routeID, customerID uuid.UUID, orderIDs []uuid.UUID) (*RouteVisit, error)
	ListVisits(ctx context.Context, tenantID, routeID uuid.UUID) ([]RouteVisit, error)
}

type routeService struct {
	pool      *pgxpool.Pool
	numbering NumberingService
	recorder  Recorder
}

func NewRouteService(pool *pgxpool.Pool, numbering NumberingService, recorder Recorder) RouteService {
	return &routeService{pool: pool, numbering: numbering, recorder: recorder}
}

func (s *routeService) CreateRoute(ctx context.Context, actor Actor, name string, date time.Time) (*Route, error) {
	if name == "" {
		return nil, Errf(KindInvalidArgument, "route name is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	routeNumber, err := s.numbering.NextNumberTx(ctx, tx, actor.TenantID, DocRoute, date)
	if err != nil {
		return nil, err
	}

	var r Route
	err = tx.QueryRow(ctx, `
		INSERT INTO routes (tenant_id, route_number, salesperson_id, name, route_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, route_number, salesperson_id, name, route_date, created_at
	`, actor.TenantID, routeNumber, actor.UserID, name, date).Scan(
		&r.ID, &r.TenantID, &r.RouteNumber, &r.SalespersonID, &r.Name, &r.Date, &r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Errf(KindConflict, "route number %s already taken", routeNumber)
		}
		return nil, fmt.Errorf("failed to insert route: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit route creation: %w", err)
	}

	buf := newEventBuffer(actor)
	buf.add("route", r.ID, ActionCreate, nil, map[string]any{"route_number": r.RouteNumber, "name": r.Name})
	buf.flush(ctx, s.recorder)
	return &r, nil
}

func (s *routeService) SaveVisit(ctx context.Context, actor Actor, routeID, customerID uuid.UUID, orderIDs []uuid.UUID) (*RouteVisit, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var routeNumber string
	err = tx.QueryRow(ctx,
		"SELECT route_number FROM routes WHERE id = $1 AND tenant_id = $2",
		routeID, actor.TenantID,
	).Scan(&routeNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "route %s not found", routeID)
		}
		return nil, fmt.Errorf("failed to resolve route: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND tenant_id = $2)",
		customerID, actor.TenantID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check customer: %w", err)
	}
	if !exists {
		return nil, Errf(KindNotFound, "customer %s not found", customerID)
	}

	var v RouteVisit
	err = tx.QueryRow(ctx, `
		INSERT INTO route_visits (route_id, customer_id, status)
		VALUES ($1, $2, 'visited')
		RETURNING id, route_id, customer_id, status, created_at
	`, routeID, customerID).Scan(&v.ID, &v.RouteID, &v.CustomerID, &v.Status, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert route visit: %w", err)
	}

	buf := newEventBuffer(actor)
	for _, orderID := range orderIDs {
		var orderNumber string
		err = tx.QueryRow(ctx,
			"SELECT order_number FROM sales_orders WHERE id = $1 AND tenant_id = $2 AND customer_id = $3",
			orderID, actor.TenantID, customerID,
		).Scan(&orderNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, Errf(KindNotFound, "sales order %s not found for customer on route %s", orderID, routeNumber)
			}
			return nil, fmt.Errorf("failed to resolve order %s: %w", orderID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO route_visit_orders (visit_id, order_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, v.ID, orderID); err != nil {
			return nil, fmt.Errorf("failed to link order %s to visit: %w", orderNumber, err)
		}
		if _, err := tx.Exec(ctx,
			"UPDATE sales_orders SET gone_for_delivery = true, updated_at = now() WHERE id = $1",
			orderID,
		); err != nil {
			return nil, fmt.Errorf("failed to flag order %s for delivery: %w", orderNumber, err)
		}
		buf.add("sales_order", orderID, ActionUpdate,
			map[string]any{"gone_for_delivery": false},
			map[string]any{"gone_for_delivery": true},
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit route visit: %w", err)
	}

	buf.add("route_visit", v.ID, ActionCreate, nil, map[string]any{
		"route_id":    routeID.String(),
		"customer_id": customerID.String(),
		"orders":      len(orderIDs),
	})
	buf.flush(ctx, s.recorder)
	return &v, nil
}

func (s *routeService) GetRoute(ctx context.Context, tenantID, routeID uuid.UUID) (*Route, error) {
	var r Route
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, route_number, salesperson_id, name, route_date, created_at
		FROM routes
		WHERE id = $1 AND tenant_id = $2
	`, routeID, tenantID).Scan(
		&r.ID, &r.TenantID, &r.RouteNumber, &r.SalespersonID, &r.Name, &r.Date, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Errf(KindNotFound, "route %s not found", routeID)
		}
		return nil, fmt.Errorf("failed to fetch route %s: %w", routeID, err)
	}
	return &r, nil
}

func (s *routeService) ListRoutes(ctx context.Context, tenantID uuid.UUID) ([]Route, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, route_number, salesperson_id, name, route_date, created_at
		FROM routes
		WHERE tenant_id = $1
		ORDER BY route_date DESC, created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.TenantID, &r.RouteNumber, &r.SalespersonID, &r.Name, &r.Date, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *routeService) ListVisits(ctx context.Context, tenantID, routeID uuid.UUID) ([]RouteVisit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rv.id, rv.route_id, rv.customer_id, rv.status, rv.created_at
		FROM route_visits rv
		JOIN routes r ON r.id = rv.route_id
		WHERE rv.route_id = $1 AND r.tenant_id = $2
		ORDER BY rv.created_at
	`, routeID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query route visits: %w", err)
	}
	defer rows.Close()

	var visits []RouteVisit
	for rows.Next() {
		var v RouteVisit
		if err := rows.Scan(&v.ID, &v.RouteID, &v.CustomerID, &v.Status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan route visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}
