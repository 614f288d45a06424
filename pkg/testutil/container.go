// Package testutil provides testing utilities for BatchFlow backend services.
// It includes testcontainers for PostgreSQL, mock factories, and common
// test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "batchflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "batchflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateTraceSchema creates the trace service tables
func (c *PostgresContainer) CreateTraceSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS material_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			batch_number VARCHAR(50) UNIQUE NOT NULL,
			material_id UUID NOT NULL,
			supplier_id UUID NOT NULL,
			production_date TIMESTAMPTZ NOT NULL,
			expiry_date TIMESTAMPTZ NOT NULL,
			quantity NUMERIC(14,3) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'normal',
			notes TEXT,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT quantity_non_negative CHECK (quantity >= 0),
			CONSTRAINT status_valid CHECK (status IN ('normal', 'locked', 'expired'))
		);

		CREATE TABLE IF NOT EXISTS production_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			batch_number VARCHAR(50) UNIQUE NOT NULL,
			product_id UUID NOT NULL,
			planned_quantity NUMERIC(14,3) NOT NULL,
			actual_quantity NUMERIC(14,3),
			production_date TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT production_status_valid CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled'))
		);

		CREATE TABLE IF NOT EXISTS finished_goods_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			batch_number VARCHAR(50) UNIQUE NOT NULL,
			production_batch_id UUID NOT NULL REFERENCES production_batches(id),
			quantity NUMERIC(14,3) NOT NULL,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS batch_material_usages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			production_batch_id UUID NOT NULL REFERENCES production_batches(id),
			material_batch_id UUID NOT NULL REFERENCES material_batches(id),
			quantity NUMERIC(14,3) NOT NULL,
			used_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS stock_records (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			batch_id UUID NOT NULL,
			record_type VARCHAR(20) NOT NULL,
			quantity NUMERIC(14,3) NOT NULL,
			reference VARCHAR(100),
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT record_type_valid CHECK (record_type IN ('in', 'out', 'return', 'scrap'))
		);

		CREATE TABLE IF NOT EXISTS batch_sequences (
			batch_type VARCHAR(20) NOT NULL,
			seq_date VARCHAR(8) NOT NULL,
			value INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (batch_type, seq_date)
		);

		CREATE TABLE IF NOT EXISTS document_refs (
			id UUID PRIMARY KEY,
			document_number VARCHAR(100) NOT NULL,
			document_type VARCHAR(50) NOT NULL,
			batch_ref VARCHAR(50) NOT NULL,
			title VARCHAR(255) NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_material_batches_material ON material_batches(material_id);
		CREATE INDEX IF NOT EXISTS idx_usages_production ON batch_material_usages(production_batch_id);
		CREATE INDEX IF NOT EXISTS idx_usages_material ON batch_material_usages(material_batch_id);
		CREATE INDEX IF NOT EXISTS idx_stock_records_batch ON stock_records(batch_id);
		CREATE INDEX IF NOT EXISTS idx_document_refs_batch_ref ON document_refs(batch_ref);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create trace schema: %w", err)
	}

	return nil
}

// TruncateTraceTables empties all trace tables between tests
func (c *PostgresContainer) TruncateTraceTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE TABLE batch_material_usages, stock_records, finished_goods_batches,
			production_batches, material_batches, batch_sequences, document_refs CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate trace tables: %w", err)
	}
	return nil
}
