// Package dispatch matches idle drones to eligible orders, flies them to the
// delivery destination through a per-assignment movement loop, and reconciles
// state with the order record store.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"drone-dispatch/internal/common"
	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/events"
	"drone-dispatch/internal/fleet"
	"drone-dispatch/internal/orderstore"
)

// DroneStore is the slice of the fleet registry the engine needs.
type DroneStore interface {
	GetByID(ctx context.Context, id string) (*fleet.Drone, error)
	GetByAssignedOrder(ctx context.Context, orderID string) (*fleet.Drone, error)
	ClaimForDelivery(ctx context.Context, droneID, orderID string, start common.Location) (*fleet.Drone, error)
	Release(ctx context.Context, droneID string) error
	SavePosition(ctx context.Context, d *fleet.Drone) error
	MarkArrived(ctx context.Context, droneID string) error
	ListIdleActive(ctx context.Context, limit int) ([]*fleet.Drone, error)
	ListInFlight(ctx context.Context) ([]*fleet.Drone, error)
}

// OrderStore is the order-service boundary (see internal/orderstore for the
// HTTP implementation).
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*orderstore.OrderRecord, error)
	ListEligibleForDrone(ctx context.Context, limit int) ([]*orderstore.OrderRecord, error)
	AssignDrone(ctx context.Context, orderID, droneID string, summary orderstore.DroneSummary) error
	UpdateDroneLocation(ctx context.Context, orderID string, lat, lng float64, droneID string) error
	MarkDelivered(ctx context.Context, orderID string) error
}

// LocationCache mirrors drone positions for cheap tracking reads.
type LocationCache interface {
	Set(ctx context.Context, droneID string, loc common.Location) error
}

type Config struct {
	TickInterval        time.Duration
	StepDegrees         float64
	ArrivalToleranceDeg float64
	BatteryDrainPerTick float64
	OrderBatchLimit     int
	CallTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	if c.StepDegrees <= 0 {
		c.StepDegrees = 0.002
	}
	if c.ArrivalToleranceDeg <= 0 {
		c.ArrivalToleranceDeg = 0.0005
	}
	if c.OrderBatchLimit <= 0 {
		c.OrderBatchLimit = 50
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 3 * time.Second
	}
	return c
}

type Engine struct {
	drones    DroneStore
	orders    OrderStore
	cache     LocationCache
	publisher events.Publisher
	registry  *Registry
	cfg       Config

	// sweeps are non-reentrant: a sweep that finds one in progress is a no-op.
	sweepMu sync.Mutex
}

func NewEngine(drones DroneStore, orders OrderStore, cache LocationCache, publisher events.Publisher, registry *Registry, cfg Config) *Engine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		drones:    drones,
		orders:    orders,
		cache:     cache,
		publisher: publisher,
		registry:  registry,
		cfg:       cfg.withDefaults(),
	}
}

// Assign pairs one drone with one order. The protocol order is fixed: the
// drone-local claim always precedes the store's conditional assign, so a
// conflict is discovered before the drone is durably spent in the order's
// bookkeeping, and the loser rolls itself back.
func (e *Engine) Assign(ctx context.Context, droneID string, ord *orderstore.OrderRecord) error {
	if !ord.HasLocations() {
		return domainerrors.OrderMissingLocations(ord.ID)
	}

	d, err := e.drones.GetByID(ctx, droneID)
	if err != nil {
		return err
	}
	if !d.Available() {
		return domainerrors.DroneNotAvailable(droneID)
	}

	start := d.Base()
	if start.Lat == 0 && start.Lng == 0 && ord.RestaurantLocation != nil {
		start = *ord.RestaurantLocation
	}

	// 1. Local claim: conditional flip IDLE -> IN_TRANSIT.
	claimed, err := e.drones.ClaimForDelivery(ctx, droneID, ord.ID, start)
	if err != nil {
		return err
	}

	// 2. Order-side conditional assign. 409 means another drone won.
	summary := orderstore.DroneSummary{ID: claimed.ID, Name: claimed.Name, Status: string(claimed.Status)}
	if err := e.orders.AssignDrone(ctx, ord.ID, droneID, summary); err != nil {
		// 3. Roll the drone back; it stays eligible for the next sweep.
		if relErr := e.drones.Release(ctx, droneID); relErr != nil {
			slog.ErrorContext(ctx, "rollback after assign failure did not stick",
				slog.String("drone_id", droneID),
				slog.String("order_id", ord.ID),
				slog.String("error", relErr.Error()),
			)
		}
		return err
	}

	// 4. Announce and start flying. The event is best-effort.
	e.publish(ctx, events.NewDeliveryEvent(events.EventDeliveryInTransit, ord.ID, droneID, &start))
	e.startSimulator(droneID, ord.ID, *ord.DeliveryLocation)

	slog.InfoContext(ctx, "assignment created",
		slog.String("drone_id", droneID),
		slog.String("order_id", ord.ID),
	)
	return nil
}

// AssignByID is the operator-facing manual trigger.
func (e *Engine) AssignByID(ctx context.Context, droneID, orderID string) error {
	ord, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return e.Assign(ctx, droneID, ord)
}

// ConfirmDelivery completes an assignment after the customer confirmed
// receipt (the call is routed here through the order service). The drone
// returns to idle and a sweep runs because fleet capacity just increased.
func (e *Engine) ConfirmDelivery(ctx context.Context, orderID string) error {
	d, err := e.drones.GetByAssignedOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !d.AwaitingConfirmation {
		return domainerrors.DroneNotAwaitingConfirmation(d.ID)
	}

	if err := e.orders.MarkDelivered(ctx, orderID); err != nil {
		return err
	}

	// The movement loop stopped at arrival; make sure no stale handle lingers.
	e.registry.Cancel(orderID)

	if err := e.drones.Release(ctx, d.ID); err != nil {
		return err
	}

	e.publish(ctx, events.NewDeliveryEvent(events.EventDeliveryDelivered, orderID, d.ID, d.Location()))

	go func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := e.Sweep(sweepCtx); err != nil {
			slog.Error("post-confirmation sweep failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Cancel aborts an in-flight assignment: the movement loop is stopped and
// joined, the drone returns to idle. The order side is left to whoever
// cancelled the order.
func (e *Engine) Cancel(ctx context.Context, orderID string) error {
	stopped := e.registry.Cancel(orderID)

	d, err := e.drones.GetByAssignedOrder(ctx, orderID)
	if err != nil {
		if !stopped {
			return domainerrors.AssignmentNotFound(orderID)
		}
		return nil
	}

	if err := e.drones.Release(ctx, d.ID); err != nil {
		return err
	}

	e.publish(ctx, events.NewDeliveryEvent(events.EventDeliveryCancelled, orderID, d.ID, d.Location()))

	slog.InfoContext(ctx, "assignment cancelled",
		slog.String("drone_id", d.ID),
		slog.String("order_id", orderID),
	)
	return nil
}

// ResumeInFlight restarts movement loops for assignments that were flying
// when the process last stopped. Drones whose order vanished are left in
// their last known state for operator recovery.
func (e *Engine) ResumeInFlight(ctx context.Context) error {
	drones, err := e.drones.ListInFlight(ctx)
	if err != nil {
		return err
	}

	for _, d := range drones {
		if d.AssignedOrderID == nil || d.AwaitingConfirmation {
			continue
		}
		orderID := *d.AssignedOrderID
		ord, err := e.orders.GetOrder(ctx, orderID)
		if err != nil || ord.DeliveryLocation == nil {
			slog.Warn("cannot resume assignment, order unavailable",
				slog.String("drone_id", d.ID),
				slog.String("order_id", orderID),
			)
			continue
		}
		e.startSimulator(d.ID, orderID, *ord.DeliveryLocation)
	}
	return nil
}

// ActiveAssignments lists order ids with a live movement loop.
func (e *Engine) ActiveAssignments() []string {
	return e.registry.Active()
}

func (e *Engine) startSimulator(droneID, orderID string, dest common.Location) {
	sim := &simulator{
		droneID:   droneID,
		orderID:   orderID,
		dest:      dest,
		drones:    e.drones,
		orders:    e.orders,
		cache:     e.cache,
		publisher: e.publisher,
		cfg:       e.cfg,
	}
	e.registry.Start(orderID, sim.run)
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "event publish failed",
			slog.String("event_type", ev.Type),
			slog.String("aggregate_id", ev.AggregateID),
			slog.String("error", err.Error()),
		)
	}
}

func isNotFound(err error) bool {
	var de *domainerrors.DomainError
	return errors.As(err, &de) && de.Code == domainerrors.ErrNotFound
}

func isConflict(err error) bool {
	var de *domainerrors.DomainError
	return errors.As(err, &de) && de.Code == domainerrors.ErrConflict
}
