package dispatch

import (
	"context"
	"log/slog"
	"time"

	"drone-dispatch/internal/common"
	"drone-dispatch/internal/events"
)

// simulator is the movement loop for one assignment. Each tick advances the
// drone one bounded step toward the delivery destination, persists the new
// position, and mirrors it to the order store. It self-terminates on arrival.
type simulator struct {
	droneID string
	orderID string
	dest    common.Location

	drones    DroneStore
	orders    OrderStore
	cache     LocationCache
	publisher events.Publisher
	cfg       Config
}

func (s *simulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("movement loop stopped",
				slog.String("drone_id", s.droneID),
				slog.String("order_id", s.orderID),
			)
			return
		case <-ticker.C:
			if done := s.tick(ctx); done {
				return
			}
		}
	}
}

// tick performs one movement step. Returning true ends the loop; a false
// return with no progress just means this tick's persistence failed and the
// same step is retried on the next one.
func (s *simulator) tick(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	d, err := s.drones.GetByID(callCtx, s.droneID)
	if err != nil {
		if isNotFound(err) {
			// Drone vanished mid-flight. Leave whatever state remains for
			// operator recovery instead of guessing.
			slog.Error("drone disappeared mid-flight, terminating loop",
				slog.String("drone_id", s.droneID),
				slog.String("order_id", s.orderID),
			)
			return true
		}
		slog.Warn("movement tick: drone load failed, retrying next tick",
			slog.String("drone_id", s.droneID),
			slog.String("error", err.Error()),
		)
		return false
	}

	// Assignment was released under us (confirmation or cancel raced the
	// ticker). Nothing left to move.
	if d.AssignedOrderID == nil || *d.AssignedOrderID != s.orderID {
		return true
	}
	if d.AwaitingConfirmation {
		return true
	}

	cur := d.Location()
	if cur == nil {
		base := d.Base()
		cur = &base
	}

	next := common.StepToward(*cur, s.dest, s.cfg.StepDegrees)
	d.UpdatePosition(next, s.cfg.BatteryDrainPerTick)

	if err := s.drones.SavePosition(callCtx, d); err != nil {
		slog.Warn("movement tick: position persist failed, retrying next tick",
			slog.String("drone_id", s.droneID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if s.cache != nil {
		_ = s.cache.Set(callCtx, s.droneID, next)
	}

	// Display mirror on the order document; the fleet registry is the source
	// of truth, so a failed mirror write is tolerated.
	if err := s.orders.UpdateDroneLocation(callCtx, s.orderID, next.Lat, next.Lng, s.droneID); err != nil {
		slog.Debug("movement tick: order location mirror failed",
			slog.String("order_id", s.orderID),
			slog.String("error", err.Error()),
		)
	}

	if !common.WithinTolerance(next, s.dest, s.cfg.ArrivalToleranceDeg) {
		return false
	}

	// Arrived. The drone stays IN_TRANSIT but waits for the customer.
	if err := s.drones.MarkArrived(callCtx, s.droneID); err != nil {
		slog.Warn("arrival persist failed, retrying next tick",
			slog.String("drone_id", s.droneID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := s.publisher.Publish(callCtx, events.NewDeliveryEvent(events.EventDeliveryArrived, s.orderID, s.droneID, &next)); err != nil {
		slog.Warn("event publish failed",
			slog.String("event_type", events.EventDeliveryArrived),
			slog.String("order_id", s.orderID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("drone arrived at destination",
		slog.String("drone_id", s.droneID),
		slog.String("order_id", s.orderID),
	)
	return true
}
