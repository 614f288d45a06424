package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FixtureFactory builds test data with unique, deterministic-enough
// identifiers. Each call advances an internal sequence so fixtures in
// one test never collide on unique columns.
type FixtureFactory struct {
	seq atomic.Int64
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) next() int64 {
	return f.seq.Add(1)
}

// MaterialBatchFixture represents test material batch data
type MaterialBatchFixture struct {
	ID             string
	BatchNumber    string
	MaterialID     string
	SupplierID     string
	ProductionDate time.Time
	ExpiryDate     time.Time
	Quantity       float64
	Status         string
}

// MaterialBatch builds a material batch fixture with a unique batch number.
// The batch is received today and expires in one year.
func (f *FixtureFactory) MaterialBatch() *MaterialBatchFixture {
	seq := f.next()
	now := time.Now().UTC()
	return &MaterialBatchFixture{
		ID:             uuid.New().String(),
		BatchNumber:    fmt.Sprintf("MAT-%s-%03d", now.Format("20060102"), seq),
		MaterialID:     uuid.New().String(),
		SupplierID:     uuid.New().String(),
		ProductionDate: now.AddDate(0, 0, -7),
		ExpiryDate:     now.AddDate(1, 0, 0),
		Quantity:       100,
		Status:         "normal",
	}
}

// ExpiredMaterialBatch builds a material batch whose expiry date has passed
func (f *FixtureFactory) ExpiredMaterialBatch() *MaterialBatchFixture {
	batch := f.MaterialBatch()
	batch.ProductionDate = time.Now().UTC().AddDate(-2, 0, 0)
	batch.ExpiryDate = time.Now().UTC().AddDate(0, 0, -1)
	return batch
}

// ProductionBatchFixture represents test production batch data
type ProductionBatchFixture struct {
	ID              string
	BatchNumber     string
	ProductID       string
	PlannedQuantity float64
	ProductionDate  time.Time
	Status          string
}

// ProductionBatch builds a production batch fixture in pending state
func (f *FixtureFactory) ProductionBatch() *ProductionBatchFixture {
	seq := f.next()
	now := time.Now().UTC()
	return &ProductionBatchFixture{
		ID:              uuid.New().String(),
		BatchNumber:     fmt.Sprintf("PRD-%s-%03d", now.Format("20060102"), seq),
		ProductID:       uuid.New().String(),
		PlannedQuantity: 50,
		ProductionDate:  now,
		Status:          "pending",
	}
}

// FinishedGoodsBatchFixture represents test finished goods batch data
type FinishedGoodsBatchFixture struct {
	ID                string
	BatchNumber       string
	ProductionBatchID string
	Quantity          float64
}

// FinishedGoodsBatch builds a finished goods batch fixture for a production batch
func (f *FixtureFactory) FinishedGoodsBatch(productionBatchID string) *FinishedGoodsBatchFixture {
	seq := f.next()
	now := time.Now().UTC()
	return &FinishedGoodsBatchFixture{
		ID:                uuid.New().String(),
		BatchNumber:       fmt.Sprintf("FGD-%s-%03d", now.Format("20060102"), seq),
		ProductionBatchID: productionBatchID,
		Quantity:          50,
	}
}

// DocumentRefFixture represents test document reference data
type DocumentRefFixture struct {
	ID             string
	DocumentNumber string
	DocumentType   string
	BatchRef       string
	Title          string
	IssuedAt       time.Time
}

// DocumentRef builds a document reference fixture naming a batch
func (f *FixtureFactory) DocumentRef(batchRef string) *DocumentRefFixture {
	seq := f.next()
	return &DocumentRefFixture{
		ID:             uuid.New().String(),
		DocumentNumber: fmt.Sprintf("QC-%04d", seq),
		DocumentType:   "quality_certificate",
		BatchRef:       batchRef,
		Title:          fmt.Sprintf("Quality certificate %d", seq),
		IssuedAt:       time.Now().UTC(),
	}
}
