package orderstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"drone-dispatch/internal/common"
	domainerrors "drone-dispatch/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 3, 30*time.Second), srv
}

func TestClient_GetOrder(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/orders/order-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(OrderRecord{
			ID:               "order-1",
			Status:           OrderStatusAccepted,
			DeliveryMethod:   DeliveryMethodDrone,
			DeliveryLocation: &common.Location{Lat: 24.7, Lng: 46.7},
		})
	}))

	o, err := client.GetOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.ID != "order-1" || o.Status != OrderStatusAccepted {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestClient_GetOrder_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetOrder(context.Background(), "missing")
	var de *domainerrors.DomainError
	if !errors.As(err, &de) || de.Code != domainerrors.ErrNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestClient_AssignDrone_Conflict(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		w.WriteHeader(http.StatusConflict)
	}))

	err := client.AssignDrone(context.Background(), "order-1", "drone-1", DroneSummary{ID: "drone-1"})
	var de *domainerrors.DomainError
	if !errors.As(err, &de) || de.Code != domainerrors.ErrConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestClient_AssignDrone_SendsSummary(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.AssignDrone(context.Background(), "order-1", "drone-1", DroneSummary{ID: "drone-1", Name: "falcon"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["drone_id"] != "drone-1" {
		t.Fatalf("expected drone_id in body, got %v", got)
	}
}

func TestClient_ServerError_IsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := client.MarkDelivered(context.Background(), "order-1")
	var de *domainerrors.DomainError
	if !errors.As(err, &de) || de.Code != domainerrors.ErrUnavailable {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var hits int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 3; i++ {
		_ = client.MarkDelivered(context.Background(), "order-1")
	}
	if hits != 3 {
		t.Fatalf("expected 3 upstream hits, got %d", hits)
	}

	// Circuit is open now: the call fails fast without reaching the server.
	err := client.MarkDelivered(context.Background(), "order-1")
	var de *domainerrors.DomainError
	if !errors.As(err, &de) || de.Code != domainerrors.ErrUnavailable {
		t.Fatalf("expected UNAVAILABLE with open circuit, got %v", err)
	}
	if hits != 3 {
		t.Fatalf("expected call short-circuited, got %d hits", hits)
	}
}

func TestClient_ConflictDoesNotTripBreaker(t *testing.T) {
	var hits int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 5; i++ {
		_ = client.AssignDrone(context.Background(), "order-1", "drone-1", DroneSummary{})
	}
	if hits != 5 {
		t.Fatalf("expected all calls to reach the store, got %d", hits)
	}
}

func TestOrderRecord_HasLocations(t *testing.T) {
	o := &OrderRecord{}
	if o.HasLocations() {
		t.Fatal("expected false with no locations")
	}
	o.RestaurantLocation = &common.Location{Lat: 1, Lng: 1}
	if o.HasLocations() {
		t.Fatal("expected false with only restaurant location")
	}
	o.DeliveryLocation = &common.Location{Lat: 2, Lng: 2}
	if !o.HasLocations() {
		t.Fatal("expected true with both locations")
	}
}
