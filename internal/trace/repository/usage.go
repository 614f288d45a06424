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

// BatchMaterialUsage is a ledger entry recording that a quantity of one
// material batch was consumed by one production batch. Entries are
// created and removed only together with the matching quantity
// adjustment on the material batch.
type BatchMaterialUsage struct {
	ID                string    `db:"id" json:"id"`
	ProductionBatchID string    `db:"production_batch_id" json:"production_batch_id"`
	MaterialBatchID   string    `db:"material_batch_id" json:"material_batch_id"`
	Quantity          float64   `db:"quantity" json:"quantity"`
	UsedAt            time.Time `db:"used_at" json:"used_at"`
}

// UsageRepository handles usage ledger persistence
type UsageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// CreateTx creates a usage record within a transaction
func (r *UsageRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, usage *BatchMaterialUsage) error {
	if usage.ID == "" {
		usage.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batch_material_usages (id, production_batch_id, material_batch_id, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING used_at
	`

	err := tx.QueryRowxContext(ctx, query,
		usage.ID, usage.ProductionBatchID, usage.MaterialBatchID, usage.Quantity,
	).Scan(&usage.UsedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByIDTx gets a usage record inside a transaction
func (r *UsageRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*BatchMaterialUsage, error) {
	var usage BatchMaterialUsage
	query := `SELECT * FROM batch_material_usages WHERE id = $1`
	if err := tx.GetContext(ctx, &usage, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("usage record")
		}
		return nil, err
	}
	return &usage, nil
}

// DeleteTx removes a usage record within a transaction
func (r *UsageRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	query := `DELETE FROM batch_material_usages WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("usage record")
	}

	return nil
}

// ListByProductionBatch lists usage records for a production batch
func (r *UsageRepository) ListByProductionBatch(ctx context.Context, productionBatchID string) ([]*BatchMaterialUsage, error) {
	var usages []*BatchMaterialUsage
	query := `
		SELECT * FROM batch_material_usages
		WHERE production_batch_id = $1
		ORDER BY used_at
	`
	if err := r.db.SelectContext(ctx, &usages, query, productionBatchID); err != nil {
		return nil, err
	}
	return usages, nil
}

// ListByMaterialBatch lists usage records referencing a material batch
func (r *UsageRepository) ListByMaterialBatch(ctx context.Context, materialBatchID string) ([]*BatchMaterialUsage, error) {
	var usages []*BatchMaterialUsage
	query := `
		SELECT * FROM batch_material_usages
		WHERE material_batch_id = $1
		ORDER BY used_at
	`
	if err := r.db.SelectContext(ctx, &usages, query, materialBatchID); err != nil {
		return nil, err
	}
	return usages, nil
}

// SumByMaterialBatch returns the total quantity consumed from a material batch
func (r *UsageRepository) SumByMaterialBatch(ctx context.Context, materialBatchID string) (float64, error) {
	var total sql.NullFloat64
	query := `SELECT SUM(quantity) FROM batch_material_usages WHERE material_batch_id = $1`
	if err := r.db.GetContext(ctx, &total, query, materialBatchID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}
