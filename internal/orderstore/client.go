// Package orderstore is the client side of the order-service boundary. The
// order record store is the system of record for orders; this service only
// reads and patches it through the operations below, never read-modify-write.
package orderstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"drone-dispatch/internal/common"
	domainerrors "drone-dispatch/internal/errors"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusAccepted  = "accepted"
	OrderStatusInTransit = "in-transit"
	OrderStatusDelivered = "delivered"

	DeliveryMethodDrone = "drone"
)

// OrderRecord is the drone-relevant projection of an order document.
type OrderRecord struct {
	ID                 string           `json:"id"`
	Status             string           `json:"status"`
	DeliveryMethod     string           `json:"delivery_method"`
	RestaurantID       string           `json:"restaurant_id"`
	RestaurantLocation *common.Location `json:"restaurant_location,omitempty"`
	DeliveryLocation   *common.Location `json:"delivery_location,omitempty"`
	DroneID            *string          `json:"drone_id,omitempty"`
	DroneLocation      *common.Location `json:"drone_location,omitempty"`
}

// HasLocations reports whether the order carries both endpoints of a flight.
func (o *OrderRecord) HasLocations() bool {
	return o.RestaurantLocation != nil && o.DeliveryLocation != nil
}

// DroneSummary is the denormalized drone view mirrored onto the order
// document for client display.
type DroneSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *breaker
}

func NewClient(baseURL string, timeout time.Duration, breakerThreshold int, breakerCooldown time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker(breakerThreshold, breakerCooldown),
	}
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderRecord, error) {
	var o OrderRecord
	if err := c.do(ctx, http.MethodGet, "/internal/orders/"+orderID, nil, &o, orderID); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListEligibleForDrone returns accepted drone-delivery orders with no drone
// assigned yet, bounded by limit.
func (c *Client) ListEligibleForDrone(ctx context.Context, limit int) ([]*OrderRecord, error) {
	var resp struct {
		Orders []*OrderRecord `json:"orders"`
	}
	path := fmt.Sprintf("/internal/orders/drone-eligible?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// AssignDrone performs the order-side half of the handshake. The store runs
// it as a conditional update (assign only while drone_id is unset) and
// answers 409 when another drone already holds the order.
func (c *Client) AssignDrone(ctx context.Context, orderID, droneID string, summary DroneSummary) error {
	body := map[string]any{
		"drone_id": droneID,
		"drone":    summary,
	}
	return c.do(ctx, http.MethodPatch, "/internal/orders/"+orderID+"/assign-drone", body, nil, orderID)
}

// UpdateDroneLocation mirrors the drone position onto the order for display.
// Callers treat failure as non-fatal; the fleet registry holds the truth.
func (c *Client) UpdateDroneLocation(ctx context.Context, orderID string, lat, lng float64, droneID string) error {
	body := map[string]any{
		"drone_id":       droneID,
		"drone_location": common.NewLocation(lat, lng),
	}
	return c.do(ctx, http.MethodPatch, "/internal/orders/"+orderID+"/drone-location", body, nil, orderID)
}

func (c *Client) MarkDelivered(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPatch, "/internal/orders/"+orderID+"/drone-delivered", nil, nil, orderID)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, orderID string) error {
	if !c.breaker.allow() {
		return domainerrors.StoreUnavailable(method+" "+path, fmt.Errorf("circuit open"))
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return domainerrors.NewInternal("marshal order store request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domainerrors.NewInternal("build order store request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		return domainerrors.StoreUnavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.breaker.recordFailure()
		return domainerrors.StoreUnavailable(method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
	}
	// The store answered; 4xx means it is healthy and said no.
	c.breaker.recordSuccess()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return domainerrors.AssignmentConflict(orderID)
	case resp.StatusCode == http.StatusNotFound:
		return domainerrors.OrderNotFound(orderID)
	case resp.StatusCode >= 400:
		return domainerrors.NewInternal(fmt.Sprintf("order store rejected %s %s", method, path), fmt.Errorf("status %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domainerrors.NewInternal("decode order store response", err)
		}
	}
	return nil
}
