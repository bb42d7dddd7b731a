package fleet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"drone-dispatch/internal/common"
	domainerrors "drone-dispatch/internal/errors"
)

type Service interface {
	Create(ctx context.Context, params CreateParams) (*Drone, error)
	GetByID(ctx context.Context, id string) (*Drone, error)
	GetByAssignedOrder(ctx context.Context, orderID string) (*Drone, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Drone, error)
	List(ctx context.Context, status *Status, active *bool, page, limit int) ([]*Drone, int, error)
	Activate(ctx context.Context, id string) (*Drone, error)
	Disable(ctx context.Context, id string) (*Drone, error)
	SetStatus(ctx context.Context, id string, status Status) (*Drone, error)

	ClaimForDelivery(ctx context.Context, droneID, orderID string, start common.Location) (*Drone, error)
	Release(ctx context.Context, droneID string) error
	SavePosition(ctx context.Context, d *Drone) error
	MarkArrived(ctx context.Context, droneID string) error
	ListIdleActive(ctx context.Context, limit int) ([]*Drone, error)
	ListInFlight(ctx context.Context) ([]*Drone, error)
}

type CreateParams struct {
	Name        string
	Base        common.Location
	BaseAddress string
	CapacityKg  float64
	Active      bool
}

type UpdateParams struct {
	Name        *string
	Base        *common.Location
	BaseAddress *string
	CapacityKg  *float64
	Battery     *float64
}

type service struct {
	repo Repository
	db   *sqlx.DB
}

func NewService(repo Repository, db *sqlx.DB) Service {
	return &service{repo: repo, db: db}
}

func (s *service) Create(ctx context.Context, params CreateParams) (*Drone, error) {
	if err := common.ValidateLatLng(params.Base.Lat, params.Base.Lng); err != nil {
		return nil, domainerrors.NewValidation(err.Error())
	}
	if params.Name == "" {
		return nil, domainerrors.NewValidation("drone name is required")
	}
	if params.CapacityKg <= 0 {
		params.CapacityKg = 5
	}

	d := New(params.Name, params.Base, params.BaseAddress, params.CapacityKg, params.Active)
	if err := s.repo.Create(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewInternal("failed to create drone", err)
	}
	return d, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Drone, error) {
	d, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.DroneNotFound(id)
		}
		return nil, domainerrors.NewInternal("failed to load drone", err)
	}
	return d, nil
}

func (s *service) GetByAssignedOrder(ctx context.Context, orderID string) (*Drone, error) {
	d, err := s.repo.GetByAssignedOrder(ctx, s.db, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NewNotFound("drone assigned to order", orderID)
		}
		return nil, domainerrors.NewInternal("failed to load drone", err)
	}
	return d, nil
}

func (s *service) Update(ctx context.Context, id string, params UpdateParams) (*Drone, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		d.Name = *params.Name
	}
	if params.Base != nil {
		if err := common.ValidateLatLng(params.Base.Lat, params.Base.Lng); err != nil {
			return nil, domainerrors.NewValidation(err.Error())
		}
		d.BaseLat = params.Base.Lat
		d.BaseLng = params.Base.Lng
	}
	if params.BaseAddress != nil {
		d.BaseAddress = *params.BaseAddress
	}
	if params.CapacityKg != nil {
		d.CapacityKg = *params.CapacityKg
	}
	if params.Battery != nil {
		d.BatteryPercent = *params.Battery
	}

	if err := s.repo.Update(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewInternal("failed to update drone", err)
	}
	return d, nil
}

func (s *service) List(ctx context.Context, status *Status, active *bool, page, limit int) ([]*Drone, int, error) {
	return s.repo.ListAll(ctx, s.db, status, active, page, limit)
}

func (s *service) Activate(ctx context.Context, id string) (*Drone, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Activate()
	if err := s.repo.Update(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewInternal("failed to activate drone", err)
	}
	return d, nil
}

// Disable soft-deletes the drone from the eligible pool. An assignment
// already in flight is left alone; the movement loop finishes normally and
// the drone simply is not offered to future sweeps.
func (s *service) Disable(ctx context.Context, id string) (*Drone, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Deactivate()
	if err := s.repo.Update(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewInternal("failed to disable drone", err)
	}
	return d, nil
}

func (s *service) SetStatus(ctx context.Context, id string, status Status) (*Drone, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.ChangeStatus(status); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewInternal("failed to update drone status", err)
	}
	return d, nil
}

func (s *service) ClaimForDelivery(ctx context.Context, droneID, orderID string, start common.Location) (*Drone, error) {
	claimed, err := s.repo.ClaimForDelivery(ctx, s.db, droneID, orderID, start)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to claim drone", err)
	}
	if !claimed {
		return nil, domainerrors.DroneNotAvailable(droneID)
	}
	return s.GetByID(ctx, droneID)
}

func (s *service) Release(ctx context.Context, droneID string) error {
	if err := s.repo.Release(ctx, s.db, droneID); err != nil {
		return domainerrors.NewInternal("failed to release drone", err)
	}
	return nil
}

func (s *service) SavePosition(ctx context.Context, d *Drone) error {
	return s.repo.SavePosition(ctx, s.db, d)
}

func (s *service) MarkArrived(ctx context.Context, droneID string) error {
	ok, err := s.repo.MarkArrived(ctx, s.db, droneID)
	if err != nil {
		return domainerrors.NewInternal("failed to mark drone arrived", err)
	}
	if !ok {
		return domainerrors.DroneInvalidTransition(string(StatusIdle), "awaiting confirmation")
	}
	return nil
}

func (s *service) ListIdleActive(ctx context.Context, limit int) ([]*Drone, error) {
	return s.repo.ListIdleActive(ctx, s.db, limit)
}

func (s *service) ListInFlight(ctx context.Context) ([]*Drone, error) {
	status := StatusInTransit
	drones, _, err := s.repo.ListAll(ctx, s.db, &status, nil, 1, 500)
	return drones, err
}
