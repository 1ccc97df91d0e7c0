package core_test

import (
	"context"
	"testing"
	"time"

	"salesledger/internal/core"

	"github.com/google/uuid"
)

func TestRouteService_CreateAndVisit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	route, err := svc.Routes.CreateRoute(ctx, testActor, "North loop", day)
	if err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}
	if route.RouteNumber != "RT-20260304-001" {
		t.Errorf("route number = %q, want RT-20260304-001", route.RouteNumber)
	}
	if route.SalespersonID != testUserID {
		t.Errorf("salesperson = %s, want acting user", route.SalespersonID)
	}

	order := createTestOrder(t, svc)
	if order.GoneForDelivery {
		t.Fatal("fresh order should not be flagged for delivery")
	}

	visit, err := svc.Routes.SaveVisit(ctx, testActor, route.ID, testCustomerID, []uuid.UUID{order.ID})
	if err != nil {
		t.Fatalf("SaveVisit failed: %v", err)
	}
	if visit.CustomerID != testCustomerID {
		t.Errorf("visit customer = %s, want %s", visit.CustomerID, testCustomerID)
	}

	got, err := svc.Orders.GetOrder(ctx, testTenantID, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !got.GoneForDelivery {
		t.Error("order not flagged gone_for_delivery after visit")
	}

	visits, err := svc.Routes.ListVisits(ctx, testTenantID, route.ID)
	if err != nil {
		t.Fatalf("ListVisits failed: %v", err)
	}
	if len(visits) != 1 {
		t.Errorf("visits = %d, want 1", len(visits))
	}
}

func TestRouteService_VisitRejectsForeignOrder(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	route, err := svc.Routes.CreateRoute(ctx, testActor, "South loop", orderDay)
	if err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}

	// An order id that does not belong to the visited customer.
	_, err = svc.Routes.SaveVisit(ctx, testActor, route.ID, testCustomerID, []uuid.UUID{uuid.New()})
	if core.KindOf(err) != core.KindNotFound {
		t.Errorf("kind = %s, want not_found", core.KindOf(err))
	}
}

func TestNumbering_SequencePerDayAndType(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, day1, false, nil)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	second, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, day1, false, nil)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	if first.OrderNumber != "SO-20260301-001" || second.OrderNumber != "SO-20260301-002" {
		t.Errorf("same-day numbers = %q, %q", first.OrderNumber, second.OrderNumber)
	}

	// A new day restarts the counter.
	third, err := svc.Orders.CreateSalesOrder(ctx, testActor, testCustomerID, day2, false, nil)
	if err != nil {
		t.Fatalf("CreateSalesOrder failed: %v", err)
	}
	if third.OrderNumber != "SO-20260302-001" {
		t.Errorf("next-day number = %q, want SO-20260302-001", third.OrderNumber)
	}

	// Document types do not share a counter.
	route, err := svc.Routes.CreateRoute(ctx, testActor, "Loop", day1)
	if err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}
	if route.RouteNumber != "RT-20260301-001" {
		t.Errorf("route number = %q, want RT-20260301-001", route.RouteNumber)
	}
}
