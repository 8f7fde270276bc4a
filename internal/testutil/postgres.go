// Package testutil provides a migrated Postgres database for integration
// tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flicky/storehub-api/internal/migrations"
)

type PostgresSetup struct {
	Pool    *pgxpool.Pool
	ConnStr string
	cleanup func()
}

func (p *PostgresSetup) Cleanup() {
	p.cleanup()
}

// SetupPostgres uses TEST_DATABASE_URL when set and otherwise starts a
// throwaway container. The embedded migrations are applied either way.
func SetupPostgres(ctx context.Context) (*PostgresSetup, error) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	terminate := func() {}

	if connStr == "" {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("storehub"),
			postgres.WithUsername("storehub"),
			postgres.WithPassword("storehub"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		terminate = func() {
			if err := container.Terminate(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "failed to terminate postgres container: %v\n", err)
			}
		}

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			return nil, fmt.Errorf("get connection string: %w", err)
		}
	}

	if err := migrations.Up(connStr); err != nil {
		terminate()
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		terminate()
		return nil, fmt.Errorf("connect to test database: %w", err)
	}

	return &PostgresSetup{
		Pool:    pool,
		ConnStr: connStr,
		cleanup: func() {
			pool.Close()
			terminate()
		},
	}, nil
}

// TruncateAll empties every table between tests.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE reviews, order_items, orders, cart_items, products, users CASCADE`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
