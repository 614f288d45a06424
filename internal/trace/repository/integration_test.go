package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func insertMaterialBatch(t *testing.T, ctx context.Context, fx *testutil.MaterialBatchFixture) *repository.MaterialBatch {
	t.Helper()

	batch := &repository.MaterialBatch{
		ID:             fx.ID,
		BatchNumber:    fx.BatchNumber,
		MaterialID:     fx.MaterialID,
		SupplierID:     fx.SupplierID,
		ProductionDate: fx.ProductionDate,
		ExpiryDate:     fx.ExpiryDate,
		Quantity:       fx.Quantity,
		Status:         fx.Status,
	}

	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	repo := repository.NewMaterialBatchRepository(suite.DB)
	require.NoError(t, repo.CreateTx(ctx, tx, batch))
	require.NoError(t, tx.Commit())

	return batch
}

func insertProductionBatch(t *testing.T, ctx context.Context, fx *testutil.ProductionBatchFixture) *repository.ProductionBatch {
	t.Helper()

	batch := &repository.ProductionBatch{
		ID:              fx.ID,
		BatchNumber:     fx.BatchNumber,
		ProductID:       fx.ProductID,
		PlannedQuantity: fx.PlannedQuantity,
		ProductionDate:  fx.ProductionDate,
		Status:          fx.Status,
	}

	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	repo := repository.NewProductionBatchRepository(suite.DB)
	require.NoError(t, repo.CreateTx(ctx, tx, batch))
	require.NoError(t, tx.Commit())

	return batch
}

func TestSequenceRepository_ConcurrentAllocation(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetTables(t, ctx)

	repo := repository.NewSequenceRepository(suite.DB)

	const workers = 20
	values := make(chan int, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := repo.Next(ctx, "material", "20260829")
			assert.NoError(t, err)
			values <- value
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int]bool)
	for v := range values {
		assert.False(t, seen[v], "value %d allocated twice", v)
		seen[v] = true
	}
	require.Len(t, seen, workers)
	for v := 1; v <= workers; v++ {
		assert.True(t, seen[v], "value %d missing", v)
	}
}

func TestSequenceRepository_IndependentCounters(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetTables(t, ctx)

	repo := repository.NewSequenceRepository(suite.DB)

	v, err := repo.Next(ctx, "material", "20260829")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = repo.Next(ctx, "material", "20260829")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// A different type and a different date each start their own counter.
	v, err = repo.Next(ctx, "production", "20260829")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = repo.Next(ctx, "material", "20260830")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestUsageLedger_RoundTrip(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetTables(t, ctx)

	material := insertMaterialBatch(t, ctx, suite.Fixtures.MaterialBatch())
	production := insertProductionBatch(t, ctx, suite.Fixtures.ProductionBatch())

	materialRepo := repository.NewMaterialBatchRepository(suite.DB)
	usageRepo := repository.NewUsageRepository(suite.DB)

	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	usage := &repository.BatchMaterialUsage{
		ProductionBatchID: production.ID,
		MaterialBatchID:   material.ID,
		Quantity:          30,
	}
	require.NoError(t, usageRepo.CreateTx(ctx, tx, usage))

	ok, err := materialRepo.ConsumeQuantityTx(ctx, tx, material.ID, 30)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, usage.ID)
	assert.False(t, usage.UsedAt.IsZero())

	remaining, err := materialRepo.GetByID(ctx, material.ID)
	require.NoError(t, err)
	assert.InDelta(t, 70, remaining.Quantity, 0.001)

	used, err := usageRepo.SumByMaterialBatch(ctx, material.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30, used, 0.001)

	// Reversal restores the quantity and removes the ledger entry.
	tx, err = suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, materialRepo.ReturnQuantityTx(ctx, tx, material.ID, 30))
	require.NoError(t, usageRepo.DeleteTx(ctx, tx, usage.ID))
	require.NoError(t, tx.Commit())

	restored, err := materialRepo.GetByID(ctx, material.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100, restored.Quantity, 0.001)

	used, err = usageRepo.SumByMaterialBatch(ctx, material.ID)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestMaterialBatchRepository_ConsumeQuantity_Insufficient(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetTables(t, ctx)

	fx := suite.Fixtures.MaterialBatch()
	fx.Quantity = 10
	material := insertMaterialBatch(t, ctx, fx)

	materialRepo := repository.NewMaterialBatchRepository(suite.DB)

	tx, err := suite.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	ok, err := materialRepo.ConsumeQuantityTx(ctx, tx, material.ID, 10.5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaterialBatchRepository_LockExpired(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetTables(t, ctx)

	expired := insertMaterialBatch(t, ctx, suite.Fixtures.ExpiredMaterialBatch())
	fresh := insertMaterialBatch(t, ctx, suite.Fixtures.MaterialBatch())

	materialRepo := repository.NewMaterialBatchRepository(suite.DB)

	count, err := materialRepo.LockExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	locked, err := materialRepo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.BatchStatusExpired, locked.Status)

	untouched, err := materialRepo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.BatchStatusNormal, untouched.Status)

	// Repeating the sweep finds nothing new.
	count, err = materialRepo.LockExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMaterialBatchRepository_FIFOCandidates(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetTables(t, ctx)

	materialID := suite.Fixtures.MaterialBatch().MaterialID

	later := suite.Fixtures.MaterialBatch()
	later.MaterialID = materialID
	later.ExpiryDate = time.Now().UTC().AddDate(2, 0, 0)
	insertMaterialBatch(t, ctx, later)

	sooner := suite.Fixtures.MaterialBatch()
	sooner.MaterialID = materialID
	sooner.ExpiryDate = time.Now().UTC().AddDate(0, 1, 0)
	insertMaterialBatch(t, ctx, sooner)

	empty := suite.Fixtures.MaterialBatch()
	empty.MaterialID = materialID
	empty.Quantity = 0
	insertMaterialBatch(t, ctx, empty)

	// Locked and expired batches hold stock but are not consumable.
	locked := suite.Fixtures.MaterialBatch()
	locked.MaterialID = materialID
	locked.ExpiryDate = time.Now().UTC().AddDate(0, 0, 7)
	locked.Status = repository.BatchStatusLocked
	insertMaterialBatch(t, ctx, locked)

	expired := suite.Fixtures.MaterialBatch()
	expired.MaterialID = materialID
	expired.ExpiryDate = time.Now().UTC().AddDate(0, 0, 1)
	expired.Status = repository.BatchStatusExpired
	insertMaterialBatch(t, ctx, expired)

	materialRepo := repository.NewMaterialBatchRepository(suite.DB)

	candidates, err := materialRepo.FIFOCandidates(ctx, materialID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, sooner.ID, candidates[0].ID)
	assert.Equal(t, later.ID, candidates[1].ID)
	for _, c := range candidates {
		assert.NotEqual(t, locked.ID, c.ID)
		assert.NotEqual(t, expired.ID, c.ID)
	}
}
