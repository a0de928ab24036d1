package ports

import "context"

// HealthChecker is a dependency probe reported by GET /health.
type HealthChecker interface {
	// Ping fails when the dependency cannot serve the gateway.
	Ping(ctx context.Context) error
	// Name is the key of the dependency in the health report.
	Name() string
}
