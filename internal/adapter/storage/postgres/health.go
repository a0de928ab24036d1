package postgres

import (
	"context"
	"fmt"
)

// HealthCheck probes the withdrawals table, so a reachable database with a
// missing schema still reports unhealthy.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, "SELECT 1 FROM withdrawals LIMIT 1"); err != nil {
		return fmt.Errorf("postgres probe: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string { return "postgresql" }
