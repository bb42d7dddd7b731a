package dispatch

import (
	"context"
	"sync"
	"time"

	"drone-dispatch/internal/common"
	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/events"
	"drone-dispatch/internal/fleet"
	"drone-dispatch/internal/orderstore"
)

// memDroneStore mimics the fleet repository's claim semantics in memory,
// including the conditional flip that makes double claims lose.
type memDroneStore struct {
	mu     sync.Mutex
	drones map[string]*fleet.Drone

	saves      map[string]int
	claimErr   error
	releaseErr error
}

func newMemDroneStore(drones ...*fleet.Drone) *memDroneStore {
	s := &memDroneStore{
		drones: make(map[string]*fleet.Drone),
		saves:  make(map[string]int),
	}
	for _, d := range drones {
		s.drones[d.ID] = d
	}
	return s
}

func (s *memDroneStore) snapshot(d *fleet.Drone) *fleet.Drone {
	cp := *d
	if d.CurrentLat != nil {
		lat := *d.CurrentLat
		cp.CurrentLat = &lat
	}
	if d.CurrentLng != nil {
		lng := *d.CurrentLng
		cp.CurrentLng = &lng
	}
	if d.AssignedOrderID != nil {
		id := *d.AssignedOrderID
		cp.AssignedOrderID = &id
	}
	return &cp
}

func (s *memDroneStore) get(id string) *fleet.Drone {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[id]
	if !ok {
		return nil
	}
	return s.snapshot(d)
}

func (s *memDroneStore) GetByID(_ context.Context, id string) (*fleet.Drone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[id]
	if !ok {
		return nil, domainerrors.DroneNotFound(id)
	}
	return s.snapshot(d), nil
}

func (s *memDroneStore) GetByAssignedOrder(_ context.Context, orderID string) (*fleet.Drone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.drones {
		if d.AssignedOrderID != nil && *d.AssignedOrderID == orderID {
			return s.snapshot(d), nil
		}
	}
	return nil, domainerrors.AssignmentNotFound(orderID)
}

func (s *memDroneStore) ClaimForDelivery(_ context.Context, droneID, orderID string, start common.Location) (*fleet.Drone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	d, ok := s.drones[droneID]
	if !ok {
		return nil, domainerrors.DroneNotFound(droneID)
	}
	if err := d.BeginDelivery(orderID, start); err != nil {
		return nil, err
	}
	return s.snapshot(d), nil
}

func (s *memDroneStore) Release(_ context.Context, droneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		return s.releaseErr
	}
	d, ok := s.drones[droneID]
	if !ok {
		return domainerrors.DroneNotFound(droneID)
	}
	d.RollbackAssignment()
	return nil
}

func (s *memDroneStore) SavePosition(_ context.Context, d *fleet.Drone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.drones[d.ID]
	if !ok {
		return domainerrors.DroneNotFound(d.ID)
	}
	cur.CurrentLat = d.CurrentLat
	cur.CurrentLng = d.CurrentLng
	cur.BatteryPercent = d.BatteryPercent
	cur.UpdatedAt = time.Now()
	s.saves[d.ID]++
	return nil
}

func (s *memDroneStore) MarkArrived(_ context.Context, droneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[droneID]
	if !ok {
		return domainerrors.DroneNotFound(droneID)
	}
	return d.MarkArrived()
}

func (s *memDroneStore) ListIdleActive(_ context.Context, limit int) ([]*fleet.Drone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fleet.Drone
	for _, d := range s.drones {
		if d.Available() {
			out = append(out, s.snapshot(d))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memDroneStore) ListInFlight(_ context.Context) ([]*fleet.Drone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fleet.Drone
	for _, d := range s.drones {
		if d.Status == fleet.StatusInTransit {
			out = append(out, s.snapshot(d))
		}
	}
	return out, nil
}

// memOrderStore models the order service's conditional assign: an order that
// already carries a drone rejects a second one with a conflict, matching the
// HTTP client's 409 mapping.
type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*orderstore.OrderRecord

	locationUpdates map[string]int
	delivered       map[string]bool
	assignErr       error
	listErr         error
}

func newMemOrderStore(orders ...*orderstore.OrderRecord) *memOrderStore {
	s := &memOrderStore{
		orders:          make(map[string]*orderstore.OrderRecord),
		locationUpdates: make(map[string]int),
		delivered:       make(map[string]bool),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memOrderStore) GetOrder(_ context.Context, orderID string) (*orderstore.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domainerrors.OrderNotFound(orderID)
	}
	cp := *o
	return &cp, nil
}

func (s *memOrderStore) ListEligibleForDrone(_ context.Context, limit int) ([]*orderstore.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*orderstore.OrderRecord
	for _, o := range s.orders {
		if o.DroneID == nil && !s.delivered[o.ID] {
			cp := *o
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memOrderStore) AssignDrone(_ context.Context, orderID, droneID string, _ orderstore.DroneSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return s.assignErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return domainerrors.OrderNotFound(orderID)
	}
	if o.DroneID != nil {
		return domainerrors.AssignmentConflict(orderID)
	}
	o.DroneID = &droneID
	o.Status = orderstore.OrderStatusInTransit
	return nil
}

func (s *memOrderStore) UpdateDroneLocation(_ context.Context, orderID string, lat, lng float64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domainerrors.OrderNotFound(orderID)
	}
	loc := common.NewLocation(lat, lng)
	o.DroneLocation = &loc
	s.locationUpdates[orderID]++
	return nil
}

func (s *memOrderStore) MarkDelivered(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domainerrors.OrderNotFound(orderID)
	}
	o.Status = orderstore.OrderStatusDelivered
	s.delivered[orderID] = true
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) typesSeen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func idleDrone(id string) *fleet.Drone {
	d := fleet.New("drone-"+id, common.NewLocation(0, 0), "depot", 2, true)
	d.ID = id
	return d
}

func droneOrder(id string, restaurant, delivery common.Location) *orderstore.OrderRecord {
	return &orderstore.OrderRecord{
		ID:                 id,
		Status:             orderstore.OrderStatusAccepted,
		DeliveryMethod:     orderstore.DeliveryMethodDrone,
		RestaurantID:       "rest-" + id,
		RestaurantLocation: &restaurant,
		DeliveryLocation:   &delivery,
	}
}
