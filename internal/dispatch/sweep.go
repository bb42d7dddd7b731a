package dispatch

import (
	"context"
	"log/slog"
)

type SweepResult struct {
	Assigned     int `json:"assigned"`
	StillPending int `json:"still_pending"`
}

// Sweep pairs every currently idle, active drone with an eligible unassigned
// order: the i-th pending order with the i-th idle drone. The pairing is
// deliberately greedy with no distance optimization; what matters is that no
// order is double-assigned and everything pending is eventually served.
//
// A sweep invoked while another is running is an idempotent no-op — two
// concurrent sweeps reading the same idle-drone list could both offer the
// same drone.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if !e.sweepMu.TryLock() {
		slog.InfoContext(ctx, "sweep already in progress, skipping")
		return SweepResult{}, nil
	}
	defer e.sweepMu.Unlock()

	orders, err := e.orders.ListEligibleForDrone(ctx, e.cfg.OrderBatchLimit)
	if err != nil {
		return SweepResult{}, err
	}
	if len(orders) == 0 {
		return SweepResult{}, nil
	}

	drones, err := e.drones.ListIdleActive(ctx, e.cfg.OrderBatchLimit)
	if err != nil {
		return SweepResult{}, err
	}

	pairs := len(orders)
	if len(drones) < pairs {
		pairs = len(drones)
	}

	assigned := 0
	for i := 0; i < pairs; i++ {
		if err := e.Assign(ctx, drones[i].ID, orders[i]); err != nil {
			// Conflicts are expected when another actor claimed the order
			// first; anything else is logged and the sweep moves on.
			level := slog.LevelWarn
			if isConflict(err) {
				level = slog.LevelInfo
			}
			slog.Log(ctx, level, "sweep assignment skipped",
				slog.String("drone_id", drones[i].ID),
				slog.String("order_id", orders[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		assigned++
	}

	result := SweepResult{
		Assigned:     assigned,
		StillPending: len(orders) - assigned,
	}
	slog.InfoContext(ctx, "sweep finished",
		slog.Int("assigned", result.Assigned),
		slog.Int("still_pending", result.StillPending),
		slog.Int("idle_drones", len(drones)),
	)
	return result, nil
}
