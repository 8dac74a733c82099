package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface shared by the pgx pool and the bus
// producer for readiness probing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db and bus checks backing /readyz.
// Either dependency may be nil (degraded dev mode); its check then fails
// with a configuration error rather than a connection error.
func BuildReadinessChecks(pool, b Pinger) (func(ctx context.Context) error, func(ctx context.Context) error) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	busCheck := func(ctx context.Context) error {
		if b == nil {
			return fmt.Errorf("bus not configured")
		}
		return b.Ping(ctx)
	}
	return dbCheck, busCheck
}
