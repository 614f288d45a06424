package repository

import (
	"context"

	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/jmoiron/sqlx"
)

// SequenceRepository allocates batch number sequences from a durable
// counter table. One row exists per (batch_type, seq_date); the
// upsert-and-increment runs under the row lock Postgres takes for the
// conflicting update, so two concurrent callers can never observe the
// same value, regardless of how many service instances share the store.
type SequenceRepository struct {
	db *database.DB
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *database.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

const nextSequenceQuery = `
	INSERT INTO batch_sequences (batch_type, seq_date, value)
	VALUES ($1, $2, 1)
	ON CONFLICT (batch_type, seq_date)
	DO UPDATE SET value = batch_sequences.value + 1
	RETURNING value
`

// Next allocates the next sequence value for a batch type and date.
// Values start at 1 for each new (type, date) pair.
func (r *SequenceRepository) Next(ctx context.Context, batchType, seqDate string) (int, error) {
	var value int
	if err := r.db.QueryRowxContext(ctx, nextSequenceQuery, batchType, seqDate).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// NextTx allocates the next sequence value inside an existing
// transaction, so a failed batch insert releases the number with the
// rollback.
func (r *SequenceRepository) NextTx(ctx context.Context, tx *sqlx.Tx, batchType, seqDate string) (int, error) {
	var value int
	if err := tx.QueryRowxContext(ctx, nextSequenceQuery, batchType, seqDate).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
