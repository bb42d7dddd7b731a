package fleet

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"drone-dispatch/internal/common"
)

const columns = `id, name, status, is_active, capacity_kg, battery_percent, current_lat, current_lng, base_lat, base_lng, base_address, assigned_order_id, awaiting_confirmation, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, d *Drone) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Drone, error)
	GetByAssignedOrder(ctx context.Context, ext sqlx.ExtContext, orderID string) (*Drone, error)
	Update(ctx context.Context, ext sqlx.ExtContext, d *Drone) error
	SavePosition(ctx context.Context, ext sqlx.ExtContext, d *Drone) error
	ClaimForDelivery(ctx context.Context, ext sqlx.ExtContext, droneID, orderID string, start common.Location) (bool, error)
	Release(ctx context.Context, ext sqlx.ExtContext, droneID string) error
	MarkArrived(ctx context.Context, ext sqlx.ExtContext, droneID string) (bool, error)
	ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, active *bool, page, limit int) ([]*Drone, int, error)
	ListIdleActive(ctx context.Context, ext sqlx.ExtContext, limit int) ([]*Drone, error)
}

type droneRepository struct{}

func NewRepository() Repository {
	return &droneRepository{}
}

func (r *droneRepository) Create(ctx context.Context, ext sqlx.ExtContext, d *Drone) error {
	const query = `INSERT INTO drones (id, name, status, is_active, capacity_kg, battery_percent, current_lat, current_lng, base_lat, base_lng, base_address, assigned_order_id, awaiting_confirmation, created_at, updated_at)
		VALUES (:id, :name, :status, :is_active, :capacity_kg, :battery_percent, :current_lat, :current_lng, :base_lat, :base_lng, :base_address, :assigned_order_id, :awaiting_confirmation, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *droneRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Drone, error) {
	var d Drone
	query := fmt.Sprintf(`SELECT %s FROM drones WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *droneRepository) GetByAssignedOrder(ctx context.Context, ext sqlx.ExtContext, orderID string) (*Drone, error) {
	var d Drone
	query := fmt.Sprintf(`SELECT %s FROM drones WHERE assigned_order_id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, orderID); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *droneRepository) Update(ctx context.Context, ext sqlx.ExtContext, d *Drone) error {
	const query = `UPDATE drones SET name = :name, status = :status, is_active = :is_active, capacity_kg = :capacity_kg, battery_percent = :battery_percent, current_lat = :current_lat, current_lng = :current_lng, base_lat = :base_lat, base_lng = :base_lng, base_address = :base_address, assigned_order_id = :assigned_order_id, awaiting_confirmation = :awaiting_confirmation, updated_at = :updated_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *droneRepository) SavePosition(ctx context.Context, ext sqlx.ExtContext, d *Drone) error {
	const query = `UPDATE drones SET current_lat = :current_lat, current_lng = :current_lng, battery_percent = :battery_percent, updated_at = :updated_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

// ClaimForDelivery is the drone-side half of the assignment handshake: a
// single conditional UPDATE that flips the drone into transit only while it
// is still idle, active and unassigned. Returns false when the precondition
// no longer holds (someone else claimed the drone first).
func (r *droneRepository) ClaimForDelivery(ctx context.Context, ext sqlx.ExtContext, droneID, orderID string, start common.Location) (bool, error) {
	const query = `UPDATE drones
		SET status = 'IN_TRANSIT', assigned_order_id = $2, current_lat = $3, current_lng = $4, awaiting_confirmation = FALSE, updated_at = NOW()
		WHERE id = $1 AND status = 'IDLE' AND is_active = TRUE AND assigned_order_id IS NULL`
	res, err := ext.ExecContext(ctx, query, droneID, orderID, start.Lat, start.Lng)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *droneRepository) Release(ctx context.Context, ext sqlx.ExtContext, droneID string) error {
	const query = `UPDATE drones SET status = 'IDLE', assigned_order_id = NULL, awaiting_confirmation = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := ext.ExecContext(ctx, query, droneID)
	return err
}

func (r *droneRepository) MarkArrived(ctx context.Context, ext sqlx.ExtContext, droneID string) (bool, error) {
	const query = `UPDATE drones SET awaiting_confirmation = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'IN_TRANSIT' AND assigned_order_id IS NOT NULL`
	res, err := ext.ExecContext(ctx, query, droneID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *droneRepository) ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, active *bool, page, limit int) ([]*Drone, int, error) {
	offset := (page - 1) * limit
	args := []any{}
	argIdx := 1

	where := ""
	if status != nil {
		where = fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}
	if active != nil {
		if where == "" {
			where = fmt.Sprintf(" WHERE is_active = $%d", argIdx)
		} else {
			where += fmt.Sprintf(" AND is_active = $%d", argIdx)
		}
		args = append(args, *active)
		argIdx++
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM drones%s`, where)
	if err := sqlx.GetContext(ctx, ext, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM drones%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, columns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	var drones []*Drone
	if err := sqlx.SelectContext(ctx, ext, &drones, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	return drones, total, nil
}

func (r *droneRepository) ListIdleActive(ctx context.Context, ext sqlx.ExtContext, limit int) ([]*Drone, error) {
	var drones []*Drone
	query := fmt.Sprintf(`SELECT %s FROM drones
		WHERE status = 'IDLE' AND is_active = TRUE AND assigned_order_id IS NULL
		ORDER BY created_at ASC LIMIT $1`, columns)
	if err := sqlx.SelectContext(ctx, ext, &drones, query, limit); err != nil {
		return nil, err
	}
	return drones, nil
}
