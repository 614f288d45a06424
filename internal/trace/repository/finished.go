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

// FinishedGoodsBatch represents the sellable output of exactly one
// production run
type FinishedGoodsBatch struct {
	ID                string     `db:"id" json:"id"`
	BatchNumber       string     `db:"batch_number" json:"batch_number"`
	ProductionBatchID string     `db:"production_batch_id" json:"production_batch_id"`
	Quantity          float64    `db:"quantity" json:"quantity"`
	DeletedAt         *time.Time `db:"deleted_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// FinishedGoodsRepository handles finished goods batch persistence
type FinishedGoodsRepository struct {
	db *database.DB
}

// NewFinishedGoodsRepository creates a new finished goods repository
func NewFinishedGoodsRepository(db *database.DB) *FinishedGoodsRepository {
	return &FinishedGoodsRepository{db: db}
}

// CreateTx creates a new finished goods batch within a transaction
func (r *FinishedGoodsRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *FinishedGoodsBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO finished_goods_batches (id, batch_number, production_batch_id, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.BatchNumber, batch.ProductionBatchID, batch.Quantity,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a finished goods batch by ID
func (r *FinishedGoodsRepository) GetByID(ctx context.Context, id string) (*FinishedGoodsBatch, error) {
	var batch FinishedGoodsBatch
	query := `SELECT * FROM finished_goods_batches WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("finished goods batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListActive lists all non-deleted finished goods batches
func (r *FinishedGoodsRepository) ListActive(ctx context.Context) ([]*FinishedGoodsBatch, error) {
	var batches []*FinishedGoodsBatch
	query := `SELECT * FROM finished_goods_batches WHERE deleted_at IS NULL ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByProductionBatch lists finished goods batches for a production run
func (r *FinishedGoodsRepository) ListByProductionBatch(ctx context.Context, productionBatchID string) ([]*FinishedGoodsBatch, error) {
	var batches []*FinishedGoodsBatch
	query := `
		SELECT * FROM finished_goods_batches
		WHERE production_batch_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, productionBatchID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByProductionBatches lists finished goods batches for a set of
// production runs in one query
func (r *FinishedGoodsRepository) ListByProductionBatches(ctx context.Context, productionBatchIDs []string) ([]*FinishedGoodsBatch, error) {
	if len(productionBatchIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM finished_goods_batches
		WHERE production_batch_id IN (?) AND deleted_at IS NULL
		ORDER BY created_at`, productionBatchIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var batches []*FinishedGoodsBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, err
	}
	return batches, nil
}
