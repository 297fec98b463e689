package ports

import "context"

// HealthChecker pings a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}
