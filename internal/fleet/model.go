package fleet

import (
	"time"

	"github.com/google/uuid"

	"drone-dispatch/internal/common"
	domainerrors "drone-dispatch/internal/errors"
)

type Status string

const (
	StatusIdle        Status = "IDLE"
	StatusInTransit   Status = "IN_TRANSIT"
	StatusOffline     Status = "OFFLINE"
	StatusMaintenance Status = "MAINTENANCE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusInTransit, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

type Drone struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Status               Status    `db:"status" json:"status"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	CapacityKg           float64   `db:"capacity_kg" json:"capacity_kg"`
	BatteryPercent       float64   `db:"battery_percent" json:"battery_percent"`
	CurrentLat           *float64  `db:"current_lat" json:"current_lat,omitempty"`
	CurrentLng           *float64  `db:"current_lng" json:"current_lng,omitempty"`
	BaseLat              float64   `db:"base_lat" json:"base_lat"`
	BaseLng              float64   `db:"base_lng" json:"base_lng"`
	BaseAddress          string    `db:"base_address" json:"base_address"`
	AssignedOrderID      *string   `db:"assigned_order_id" json:"assigned_order_id,omitempty"`
	AwaitingConfirmation bool      `db:"awaiting_confirmation" json:"awaiting_confirmation"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

func New(name string, base common.Location, baseAddress string, capacityKg float64, active bool) *Drone {
	now := time.Now()
	return &Drone{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         StatusIdle,
		IsActive:       active,
		CapacityKg:     capacityKg,
		BatteryPercent: 100,
		BaseLat:        base.Lat,
		BaseLng:        base.Lng,
		BaseAddress:    baseAddress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Location returns the drone's current position, or nil if it has never been
// positioned (no assignment yet).
func (d *Drone) Location() *common.Location {
	if d.CurrentLat == nil || d.CurrentLng == nil {
		return nil
	}
	return &common.Location{Lat: *d.CurrentLat, Lng: *d.CurrentLng}
}

func (d *Drone) Base() common.Location {
	return common.NewLocation(d.BaseLat, d.BaseLng)
}

func (d *Drone) Available() bool {
	return d.Status == StatusIdle && d.IsActive && d.AssignedOrderID == nil
}

// BeginDelivery flips an idle, active drone into transit toward an order.
// The starting position is persisted so the movement loop has a defined
// origin even for a drone that has never flown.
func (d *Drone) BeginDelivery(orderID string, start common.Location) error {
	if !d.Available() {
		return domainerrors.DroneNotAvailable(d.ID)
	}
	d.Status = StatusInTransit
	d.AssignedOrderID = &orderID
	d.CurrentLat = &start.Lat
	d.CurrentLng = &start.Lng
	d.AwaitingConfirmation = false
	d.UpdatedAt = time.Now()
	return nil
}

// RollbackAssignment undoes a local claim after the order store reported a
// conflict. The drone is immediately eligible for the next sweep.
func (d *Drone) RollbackAssignment() {
	d.Status = StatusIdle
	d.AssignedOrderID = nil
	d.AwaitingConfirmation = false
	d.UpdatedAt = time.Now()
}

func (d *Drone) UpdatePosition(loc common.Location, batteryDrain float64) {
	d.CurrentLat = &loc.Lat
	d.CurrentLng = &loc.Lng
	d.BatteryPercent -= batteryDrain
	if d.BatteryPercent < 0 {
		d.BatteryPercent = 0
	}
	d.UpdatedAt = time.Now()
}

// MarkArrived records physical arrival at the delivery destination. The
// drone stays IN_TRANSIT until the customer confirms receipt.
func (d *Drone) MarkArrived() error {
	if d.Status != StatusInTransit || d.AssignedOrderID == nil {
		return domainerrors.DroneInvalidTransition(string(d.Status), "awaiting confirmation")
	}
	d.AwaitingConfirmation = true
	d.UpdatedAt = time.Now()
	return nil
}

// CompleteDelivery clears the assignment after an external confirmation.
func (d *Drone) CompleteDelivery() error {
	if !d.AwaitingConfirmation {
		return domainerrors.DroneNotAwaitingConfirmation(d.ID)
	}
	d.Status = StatusIdle
	d.AssignedOrderID = nil
	d.AwaitingConfirmation = false
	d.UpdatedAt = time.Now()
	return nil
}

func (d *Drone) Activate() {
	d.IsActive = true
	d.UpdatedAt = time.Now()
}

// Deactivate soft-disables the drone. An assignment already in flight keeps
// running; the drone just stops being offered to future sweeps.
func (d *Drone) Deactivate() {
	d.IsActive = false
	d.UpdatedAt = time.Now()
}

// ChangeStatus handles operator status changes (maintenance, offline, back
// to idle). IN_TRANSIT is owned by the assignment engine and cannot be
// entered or left by hand while an order is assigned.
func (d *Drone) ChangeStatus(to Status) error {
	if !to.Valid() {
		return domainerrors.NewValidation("unknown drone status: " + string(to))
	}
	if to == StatusInTransit {
		return domainerrors.DroneInvalidTransition(string(d.Status), string(to))
	}
	if d.AssignedOrderID != nil {
		return domainerrors.DroneInvalidTransition(string(d.Status), string(to))
	}
	d.Status = to
	d.UpdatedAt = time.Now()
	return nil
}
