package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Stock record movement types
const (
	StockRecordIn     = "in"
	StockRecordOut    = "out"
	StockRecordReturn = "return"
	StockRecordScrap  = "scrap"
)

// StockRecord is an immutable stock movement entry. Reconciliation uses
// these rows as the ground truth for what a batch's quantity should be.
type StockRecord struct {
	ID         string    `db:"id" json:"id"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	RecordType string    `db:"record_type" json:"record_type"`
	Quantity   float64   `db:"quantity" json:"quantity"`
	Reference  *string   `db:"reference" json:"reference,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// StockRecordRepository handles stock movement persistence
type StockRecordRepository struct {
	db *database.DB
}

// NewStockRecordRepository creates a new stock record repository
func NewStockRecordRepository(db *database.DB) *StockRecordRepository {
	return &StockRecordRepository{db: db}
}

// CreateTx records a stock movement within a transaction
func (r *StockRecordRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, record *StockRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_records (id, batch_id, record_type, quantity, reference)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING recorded_at
	`

	err := tx.QueryRowxContext(ctx, query,
		record.ID, record.BatchID, record.RecordType, record.Quantity, record.Reference,
	).Scan(&record.RecordedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByBatch lists stock movements for a batch, oldest first
func (r *StockRecordRepository) ListByBatch(ctx context.Context, batchID string) ([]*StockRecord, error) {
	var records []*StockRecord
	query := `SELECT * FROM stock_records WHERE batch_id = $1 ORDER BY recorded_at`
	if err := r.db.SelectContext(ctx, &records, query, batchID); err != nil {
		return nil, err
	}
	return records, nil
}

// SumByType returns the summed quantity of a movement type for a batch
func (r *StockRecordRepository) SumByType(ctx context.Context, batchID, recordType string) (float64, error) {
	var total sql.NullFloat64
	query := `SELECT SUM(quantity) FROM stock_records WHERE batch_id = $1 AND record_type = $2`
	if err := r.db.GetContext(ctx, &total, query, batchID, recordType); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}
