package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Production batch lifecycle statuses
const (
	ProductionStatusPending    = "pending"
	ProductionStatusInProgress = "in_progress"
	ProductionStatusCompleted  = "completed"
	ProductionStatusCancelled  = "cancelled"
)

// ProductionBatch represents a production run that consumes material
// batches through usage records
type ProductionBatch struct {
	ID              string     `db:"id" json:"id"`
	BatchNumber     string     `db:"batch_number" json:"batch_number"`
	ProductID       string     `db:"product_id" json:"product_id"`
	PlannedQuantity float64    `db:"planned_quantity" json:"planned_quantity"`
	ActualQuantity  *float64   `db:"actual_quantity" json:"actual_quantity,omitempty"`
	ProductionDate  time.Time  `db:"production_date" json:"production_date"`
	Status          string     `db:"status" json:"status"`
	DeletedAt       *time.Time `db:"deleted_at" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ProductionBatchRepository handles production batch persistence
type ProductionBatchRepository struct {
	db *database.DB
}

// NewProductionBatchRepository creates a new production batch repository
func NewProductionBatchRepository(db *database.DB) *ProductionBatchRepository {
	return &ProductionBatchRepository{db: db}
}

// CreateTx creates a new production batch within a transaction
func (r *ProductionBatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *ProductionBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = ProductionStatusPending
	}

	query := `
		INSERT INTO production_batches (
			id, batch_number, product_id, planned_quantity, actual_quantity,
			production_date, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.BatchNumber, batch.ProductID, batch.PlannedQuantity,
		batch.ActualQuantity, batch.ProductionDate, batch.Status,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a production batch by ID
func (r *ProductionBatchRepository) GetByID(ctx context.Context, id string) (*ProductionBatch, error) {
	var batch ProductionBatch
	query := `SELECT * FROM production_batches WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByIDTx gets a production batch inside a transaction
func (r *ProductionBatchRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*ProductionBatch, error) {
	var batch ProductionBatch
	query := `SELECT * FROM production_batches WHERE id = $1 AND deleted_at IS NULL`
	if err := tx.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByIDs gets production batches for a set of ids in one query
func (r *ProductionBatchRepository) GetByIDs(ctx context.Context, ids []string) ([]*ProductionBatch, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM production_batches WHERE id IN (?) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var batches []*ProductionBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByProduct lists production batches for a product
func (r *ProductionBatchRepository) ListByProduct(ctx context.Context, productID string) ([]*ProductionBatch, error) {
	var batches []*ProductionBatch
	query := `
		SELECT * FROM production_batches
		WHERE product_id = $1 AND deleted_at IS NULL
		ORDER BY production_date DESC
	`
	if err := r.db.SelectContext(ctx, &batches, query, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateStatus transitions a production batch to a new status
func (r *ProductionBatchRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE production_batches SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("production batch")
	}

	return nil
}

// CompleteTx marks a production batch as completed with its actual output
// quantity, within a transaction
func (r *ProductionBatchRepository) CompleteTx(ctx context.Context, tx *sqlx.Tx, id string, actualQuantity float64) error {
	query := `
		UPDATE production_batches
		SET status = $2, actual_quantity = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, id, ProductionStatusCompleted, actualQuantity)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("production batch")
	}

	return nil
}
