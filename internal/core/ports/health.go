package ports

import "context"

// HealthChecker is implemented by infrastructure dependencies that can
// report liveness.
type HealthChecker interface {
	Name() string
	Ping(ctx context.Context) error
}
