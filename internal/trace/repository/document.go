package repository

import (
	"context"
	"time"

	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
)

// DocumentRef is a locally cached reference to an externally owned
// quality or process document that names a batch. The document service
// owns the content; only enough is kept here to annotate trace chains.
type DocumentRef struct {
	ID             string    `db:"id" json:"id"`
	DocumentNumber string    `db:"document_number" json:"document_number"`
	DocumentType   string    `db:"document_type" json:"document_type"`
	BatchRef       string    `db:"batch_ref" json:"batch_ref"`
	Title          string    `db:"title" json:"title"`
	IssuedAt       time.Time `db:"issued_at" json:"issued_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentLookup is the read-only view the traceability engine uses to
// merge external document records into a chain
type DocumentLookup interface {
	ListByBatchRefs(ctx context.Context, batchRefs []string) ([]*DocumentRef, error)
}

// DocumentRefRepository handles document reference persistence
type DocumentRefRepository struct {
	db *database.DB
}

// NewDocumentRefRepository creates a new document reference repository
func NewDocumentRefRepository(db *database.DB) *DocumentRefRepository {
	return &DocumentRefRepository{db: db}
}

// Set creates or updates a document reference
func (r *DocumentRefRepository) Set(ctx context.Context, ref *DocumentRef) error {
	query := `
		INSERT INTO document_refs (id, document_number, document_type, batch_ref, title, issued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id)
		DO UPDATE SET document_number = $2, document_type = $3, batch_ref = $4, title = $5, issued_at = $6, updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		ref.ID, ref.DocumentNumber, ref.DocumentType, ref.BatchRef, ref.Title, ref.IssuedAt,
	)
	return err
}

// Get gets a document reference by ID
func (r *DocumentRefRepository) Get(ctx context.Context, id string) (*DocumentRef, error) {
	var ref DocumentRef
	query := `SELECT * FROM document_refs WHERE id = $1`
	if err := r.db.GetContext(ctx, &ref, query, id); err != nil {
		return nil, errors.NotFound("document reference")
	}
	return &ref, nil
}

// Delete deletes a document reference
func (r *DocumentRefRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM document_refs WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// ListByBatchRefs lists document references for a set of batch ids,
// newest first
func (r *DocumentRefRepository) ListByBatchRefs(ctx context.Context, batchRefs []string) ([]*DocumentRef, error) {
	if len(batchRefs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM document_refs
		WHERE batch_ref IN (?)
		ORDER BY issued_at DESC`, batchRefs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var refs []*DocumentRef
	if err := r.db.SelectContext(ctx, &refs, query, args...); err != nil {
		return nil, err
	}
	return refs, nil
}
