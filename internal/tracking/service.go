// Package tracking assembles the point-in-time delivery snapshot shown to
// customers. It is advisory display data: partial lookups degrade to nulls
// instead of failing the query.
package tracking

import (
	"context"
	"log/slog"

	"drone-dispatch/internal/common"
	"drone-dispatch/internal/fleet"
	"drone-dispatch/internal/orderstore"
	"drone-dispatch/internal/redis"
)

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*orderstore.OrderRecord, error)
}

type DroneReader interface {
	GetByID(ctx context.Context, id string) (*fleet.Drone, error)
	GetByAssignedOrder(ctx context.Context, orderID string) (*fleet.Drone, error)
}

type RestaurantDirectory interface {
	GetName(ctx context.Context, restaurantID string) (string, error)
}

type RestaurantView struct {
	Name     string           `json:"name,omitempty"`
	Location *common.Location `json:"location,omitempty"`
}

type DroneView struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Status               string           `json:"status"`
	Location             *common.Location `json:"location,omitempty"`
	AwaitingConfirmation bool             `json:"awaiting_confirmation"`
}

type Snapshot struct {
	OrderID          string           `json:"order_id"`
	OrderStatus      string           `json:"order_status"`
	Restaurant       *RestaurantView  `json:"restaurant,omitempty"`
	DeliveryLocation *common.Location `json:"delivery_location,omitempty"`
	Drone            *DroneView       `json:"drone,omitempty"`
	EtaMinutes       *float64         `json:"eta_minutes,omitempty"`
}

type Service interface {
	GetTracking(ctx context.Context, orderID string) (*Snapshot, error)
}

type service struct {
	orders      OrderReader
	drones      DroneReader
	restaurants RestaurantDirectory
	cache       *redis.DroneLocationCache
	speedKMH    float64
}

func NewService(orders OrderReader, drones DroneReader, restaurants RestaurantDirectory, cache *redis.DroneLocationCache, speedKMH float64) Service {
	if speedKMH <= 0 {
		speedKMH = 30
	}
	return &service{
		orders:      orders,
		drones:      drones,
		restaurants: restaurants,
		cache:       cache,
		speedKMH:    speedKMH,
	}
}

func (s *service) GetTracking(ctx context.Context, orderID string) (*Snapshot, error) {
	ord, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		OrderID:          ord.ID,
		OrderStatus:      ord.Status,
		DeliveryLocation: ord.DeliveryLocation,
	}
	if ord.RestaurantLocation != nil || ord.RestaurantID != "" {
		snap.Restaurant = &RestaurantView{Location: ord.RestaurantLocation}
	}

	if ord.RestaurantID != "" && s.restaurants != nil {
		name, err := s.restaurants.GetName(ctx, ord.RestaurantID)
		if err != nil {
			slog.DebugContext(ctx, "restaurant name lookup failed",
				slog.String("restaurant_id", ord.RestaurantID),
				slog.String("error", err.Error()),
			)
		} else if snap.Restaurant != nil {
			snap.Restaurant.Name = name
		} else {
			snap.Restaurant = &RestaurantView{Name: name}
		}
	}

	if d := s.lookupDrone(ctx, ord); d != nil {
		view := &DroneView{
			ID:                   d.ID,
			Name:                 d.Name,
			Status:               string(d.Status),
			Location:             s.droneLocation(ctx, d),
			AwaitingConfirmation: d.AwaitingConfirmation,
		}
		snap.Drone = view

		if view.Location != nil && ord.DeliveryLocation != nil {
			distKM := common.HaversineDistance(*view.Location, *ord.DeliveryLocation)
			eta := distKM / (s.speedKMH / 60.0)
			snap.EtaMinutes = &eta
		}
	}

	return snap, nil
}

// lookupDrone resolves the drone by the order's drone_id, falling back to a
// reverse search by assigned order id — the two stores are written in
// sequence, so one side can briefly lag the other.
func (s *service) lookupDrone(ctx context.Context, ord *orderstore.OrderRecord) *fleet.Drone {
	if ord.DroneID != nil {
		d, err := s.drones.GetByID(ctx, *ord.DroneID)
		if err == nil {
			return d
		}
		slog.DebugContext(ctx, "drone lookup failed",
			slog.String("drone_id", *ord.DroneID),
			slog.String("error", err.Error()),
		)
	}

	d, err := s.drones.GetByAssignedOrder(ctx, ord.ID)
	if err != nil {
		return nil
	}
	return d
}

func (s *service) droneLocation(ctx context.Context, d *fleet.Drone) *common.Location {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, d.ID); err == nil && cached != nil {
			loc := common.NewLocation(cached.Lat, cached.Lng)
			return &loc
		}
	}
	return d.Location()
}
