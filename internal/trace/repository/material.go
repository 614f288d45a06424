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

// Material batch lifecycle statuses
const (
	BatchStatusNormal  = "normal"
	BatchStatusLocked  = "locked"
	BatchStatusExpired = "expired"
)

// MaterialBatch represents a received raw-material batch.
// BatchNumber is the immutable domain identity; quantity is mutated only
// through the usage ledger and inbound/outbound movements.
type MaterialBatch struct {
	ID             string     `db:"id" json:"id"`
	BatchNumber    string     `db:"batch_number" json:"batch_number"`
	MaterialID     string     `db:"material_id" json:"material_id"`
	SupplierID     string     `db:"supplier_id" json:"supplier_id"`
	ProductionDate time.Time  `db:"production_date" json:"production_date"`
	ExpiryDate     time.Time  `db:"expiry_date" json:"expiry_date"`
	Quantity       float64    `db:"quantity" json:"quantity"`
	Status         string     `db:"status" json:"status"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// MaterialBatchRepository handles material batch persistence
type MaterialBatchRepository struct {
	db *database.DB
}

// NewMaterialBatchRepository creates a new material batch repository
func NewMaterialBatchRepository(db *database.DB) *MaterialBatchRepository {
	return &MaterialBatchRepository{db: db}
}

// CreateTx creates a new material batch within a transaction.
// A duplicate batch number surfaces as a Conflict error.
func (r *MaterialBatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *MaterialBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusNormal
	}

	query := `
		INSERT INTO material_batches (
			id, batch_number, material_id, supplier_id, production_date,
			expiry_date, quantity, status, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.BatchNumber, batch.MaterialID, batch.SupplierID,
		batch.ProductionDate, batch.ExpiryDate, batch.Quantity, batch.Status,
		batch.Notes,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a material batch by ID, excluding soft-deleted rows
func (r *MaterialBatchRepository) GetByID(ctx context.Context, id string) (*MaterialBatch, error) {
	var batch MaterialBatch
	query := `SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("material batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByIDForUpdate gets a material batch inside a transaction with a row
// lock, serializing concurrent consumers of the same batch.
func (r *MaterialBatchRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*MaterialBatch, error) {
	var batch MaterialBatch
	query := `SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	if err := tx.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("material batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetByIDs gets material batches for a set of ids in one query
func (r *MaterialBatchRepository) GetByIDs(ctx context.Context, ids []string) ([]*MaterialBatch, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM material_batches WHERE id IN (?) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var batches []*MaterialBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListByMaterial lists batches for a material
func (r *MaterialBatchRepository) ListByMaterial(ctx context.Context, materialID string) ([]*MaterialBatch, error) {
	var batches []*MaterialBatch
	query := `
		SELECT * FROM material_batches
		WHERE material_id = $1 AND deleted_at IS NULL
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, materialID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListActive lists all non-deleted material batches
func (r *MaterialBatchRepository) ListActive(ctx context.Context) ([]*MaterialBatch, error) {
	var batches []*MaterialBatch
	query := `SELECT * FROM material_batches WHERE deleted_at IS NULL ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// Update updates the mutable fields of a material batch. The batch number
// and quantity are deliberately absent from the statement: the number is
// immutable and the quantity moves only through the ledger.
func (r *MaterialBatchRepository) Update(ctx context.Context, batch *MaterialBatch) error {
	query := `
		UPDATE material_batches SET
			material_id = $2, supplier_id = $3, production_date = $4,
			expiry_date = $5, status = $6, notes = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.MaterialID, batch.SupplierID, batch.ProductionDate,
		batch.ExpiryDate, batch.Status, batch.Notes,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("material batch")
	}

	return nil
}

// SoftDelete marks a material batch as deleted
func (r *MaterialBatchRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE material_batches SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("material batch")
	}

	return nil
}

// ConsumeQuantityTx atomically decrements the on-hand quantity if at
// least the requested amount is available. Returns false without error
// when the conditional update matched no row, so the caller can roll the
// transaction back.
func (r *MaterialBatchRepository) ConsumeQuantityTx(ctx context.Context, tx *sqlx.Tx, id string, quantity float64) (bool, error) {
	query := `
		UPDATE material_batches
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status = $3 AND quantity >= $2
	`
	result, err := tx.ExecContext(ctx, query, id, quantity, BatchStatusNormal)
	if err != nil {
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ReturnQuantityTx increments the on-hand quantity, used when a usage
// record is reversed
func (r *MaterialBatchRepository) ReturnQuantityTx(ctx context.Context, tx *sqlx.Tx, id string, quantity float64) error {
	query := `
		UPDATE material_batches
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, id, quantity)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("material batch")
	}

	return nil
}

// LockExpired transitions all normal batches with an expiry date strictly
// before asOf to expired and returns the number transitioned. Repeated
// calls with the same asOf are no-ops.
func (r *MaterialBatchRepository) LockExpired(ctx context.Context, asOf time.Time) (int, error) {
	query := `
		UPDATE material_batches
		SET status = $2, updated_at = NOW()
		WHERE status = $3 AND expiry_date < $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, asOf, BatchStatusExpired, BatchStatusNormal)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// FIFOCandidates returns the consumable batches for a material, soonest
// to expire first and oldest received first within the same expiry date.
// Locked, expired, deleted and empty batches never appear.
func (r *MaterialBatchRepository) FIFOCandidates(ctx context.Context, materialID string) ([]*MaterialBatch, error) {
	var batches []*MaterialBatch
	query := `
		SELECT * FROM material_batches
		WHERE material_id = $1 AND status = $2 AND quantity > 0 AND deleted_at IS NULL
		ORDER BY expiry_date ASC, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, materialID, BatchStatusNormal); err != nil {
		return nil, err
	}
	return batches, nil
}
