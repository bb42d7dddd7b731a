// Package admin is the operator surface: fleet management plus manual
// dispatch controls, all behind the admin role.
package admin

import (
	"context"
	"log/slog"
	"time"

	"drone-dispatch/internal/dispatch"
	"drone-dispatch/internal/events"
	"drone-dispatch/internal/fleet"
)

// Sweeper triggers an auto-assignment pass; satisfied by *dispatch.Engine.
type Sweeper interface {
	Sweep(ctx context.Context) (dispatch.SweepResult, error)
}

type Service interface {
	CreateDrone(ctx context.Context, params fleet.CreateParams) (*fleet.Drone, error)
	GetDrone(ctx context.Context, id string) (*fleet.Drone, error)
	UpdateDrone(ctx context.Context, id string, params fleet.UpdateParams) (*fleet.Drone, error)
	ListDrones(ctx context.Context, status *fleet.Status, active *bool, page, limit int) ([]*fleet.Drone, int, error)
	ActivateDrone(ctx context.Context, id string) (*fleet.Drone, error)
	DisableDrone(ctx context.Context, id string) (*fleet.Drone, error)
	SetDroneStatus(ctx context.Context, id string, status fleet.Status) (*fleet.Drone, error)
}

type service struct {
	fleet     fleet.Service
	sweeper   Sweeper
	publisher events.Publisher
}

func NewService(fleetSvc fleet.Service, sweeper Sweeper, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &service{fleet: fleetSvc, sweeper: sweeper, publisher: publisher}
}

func (s *service) CreateDrone(ctx context.Context, params fleet.CreateParams) (*fleet.Drone, error) {
	d, err := s.fleet.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	if d.IsActive {
		s.sweepAfterCapacityChange(d.ID)
	}
	return d, nil
}

func (s *service) GetDrone(ctx context.Context, id string) (*fleet.Drone, error) {
	return s.fleet.GetByID(ctx, id)
}

func (s *service) UpdateDrone(ctx context.Context, id string, params fleet.UpdateParams) (*fleet.Drone, error) {
	return s.fleet.Update(ctx, id, params)
}

func (s *service) ListDrones(ctx context.Context, status *fleet.Status, active *bool, page, limit int) ([]*fleet.Drone, int, error) {
	return s.fleet.List(ctx, status, active, page, limit)
}

// ActivateDrone re-enables a drone and immediately sweeps, because fleet
// capacity just grew and orders may be waiting on it.
func (s *service) ActivateDrone(ctx context.Context, id string) (*fleet.Drone, error) {
	d, err := s.fleet.Activate(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.NewDroneEvent(events.EventDroneActivated, id)); err != nil {
		slog.WarnContext(ctx, "event publish failed",
			slog.String("event_type", events.EventDroneActivated),
			slog.String("drone_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.sweepAfterCapacityChange(id)
	return d, nil
}

// DisableDrone soft-disables a drone. An assignment already in flight keeps
// running to completion; the drone just leaves the sweep pool.
func (s *service) DisableDrone(ctx context.Context, id string) (*fleet.Drone, error) {
	d, err := s.fleet.Disable(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.NewDroneEvent(events.EventDroneDisabled, id)); err != nil {
		slog.WarnContext(ctx, "event publish failed",
			slog.String("event_type", events.EventDroneDisabled),
			slog.String("drone_id", id),
			slog.String("error", err.Error()),
		)
	}
	return d, nil
}

func (s *service) SetDroneStatus(ctx context.Context, id string, status fleet.Status) (*fleet.Drone, error) {
	return s.fleet.SetStatus(ctx, id, status)
}

func (s *service) sweepAfterCapacityChange(droneID string) {
	if s.sweeper == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.sweeper.Sweep(ctx); err != nil {
			slog.Error("post-activation sweep failed",
				slog.String("drone_id", droneID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
