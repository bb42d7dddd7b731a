package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"drone-dispatch/internal/common"
)

const (
	AggregateDelivery = "delivery"
	AggregateDrone    = "drone"
)

const (
	EventDeliveryInTransit = "delivery.in_transit"
	EventDeliveryArrived   = "delivery.arrived"
	EventDeliveryDelivered = "delivery.delivered"
	EventDeliveryCancelled = "delivery.cancelled"
	EventDroneActivated    = "drone.activated"
	EventDroneDisabled     = "drone.disabled"
)

type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher is a best-effort outbound channel. Callers log publish failures
// and never roll back the state change the event announces.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func NewEvent(eventType, aggregateType, aggregateID string, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
		OccurredAt:    time.Now(),
	}
}

func NewDeliveryEvent(eventType, orderID, droneID string, loc *common.Location) Event {
	payload := map[string]any{
		"order_id": orderID,
		"drone_id": droneID,
	}
	if loc != nil {
		payload["drone_location"] = loc
	}
	return NewEvent(eventType, AggregateDelivery, orderID, payload)
}

func NewDroneEvent(eventType, droneID string) Event {
	return NewEvent(eventType, AggregateDrone, droneID, map[string]any{"drone_id": droneID})
}
