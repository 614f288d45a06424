package service

import (
	"context"
	"time"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// MaterialTrace is one consumed material batch in a backward chain
type MaterialTrace struct {
	Batch        *repository.MaterialBatch `json:"batch"`
	UsedQuantity float64                   `json:"used_quantity"`
	UsedAt       time.Time                 `json:"used_at"`
}

// BackwardChain traces a finished goods batch back through its production
// run to every material batch that went into it
type BackwardChain struct {
	FinishedGoods *repository.FinishedGoodsBatch   `json:"finished_goods"`
	Production    *repository.ProductionBatch      `json:"production"`
	Materials     []*MaterialTrace                 `json:"materials"`
	Documents     []*repository.DocumentRef        `json:"documents"`
	TracedAt      time.Time                        `json:"traced_at"`
}

// ProductionTrace is one production batch a material flowed into,
// together with the finished goods it produced
type ProductionTrace struct {
	Batch            *repository.ProductionBatch      `json:"batch"`
	ConsumedQuantity float64                          `json:"consumed_quantity"`
	LastUsedAt       time.Time                        `json:"last_used_at"`
	FinishedGoods    []*repository.FinishedGoodsBatch `json:"finished_goods"`
}

// ForwardChain traces a material batch forward into every production run
// that consumed it and the finished goods those runs produced
type ForwardChain struct {
	Material    *repository.MaterialBatch `json:"material"`
	Productions []*ProductionTrace        `json:"productions"`
	Documents   []*repository.DocumentRef `json:"documents"`
	TracedAt    time.Time                 `json:"traced_at"`
}

// TraceService walks the batch genealogy graph in both directions. A
// chain is a point-in-time snapshot; TracedAt records when it was built.
type TraceService struct {
	materialRepo   *repository.MaterialBatchRepository
	productionRepo *repository.ProductionBatchRepository
	finishedRepo   *repository.FinishedGoodsRepository
	usageRepo      *repository.UsageRepository
	docLookup      repository.DocumentLookup
	logger         *logger.Logger
}

// NewTraceService creates a new trace service
func NewTraceService(
	materialRepo *repository.MaterialBatchRepository,
	productionRepo *repository.ProductionBatchRepository,
	finishedRepo *repository.FinishedGoodsRepository,
	usageRepo *repository.UsageRepository,
	docLookup repository.DocumentLookup,
	log *logger.Logger,
) *TraceService {
	return &TraceService{
		materialRepo:   materialRepo,
		productionRepo: productionRepo,
		finishedRepo:   finishedRepo,
		usageRepo:      usageRepo,
		docLookup:      docLookup,
		logger:         log,
	}
}

// TraceBackward builds the backward chain of a finished goods batch:
// which production run produced it and which material batches that run
// consumed. A completed run with no usage records yields an empty
// materials list, not an error.
func (s *TraceService) TraceBackward(ctx context.Context, finishedBatchID string) (*BackwardChain, error) {
	finished, err := s.finishedRepo.GetByID(ctx, finishedBatchID)
	if err != nil {
		return nil, err
	}

	production, err := s.productionRepo.GetByID(ctx, finished.ProductionBatchID)
	if err != nil {
		return nil, err
	}

	usages, err := s.usageRepo.ListByProductionBatch(ctx, production.ID)
	if err != nil {
		return nil, err
	}

	chain := &BackwardChain{
		FinishedGoods: finished,
		Production:    production,
		Materials:     []*MaterialTrace{},
		Documents:     []*repository.DocumentRef{},
		TracedAt:      time.Now().UTC(),
	}

	batchRefs := []string{finished.BatchNumber, production.BatchNumber}

	if len(usages) > 0 {
		materialIDs := make([]string, 0, len(usages))
		for _, usage := range usages {
			materialIDs = append(materialIDs, usage.MaterialBatchID)
		}

		materials, err := s.materialRepo.GetByIDs(ctx, materialIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*repository.MaterialBatch, len(materials))
		for _, m := range materials {
			byID[m.ID] = m
			batchRefs = append(batchRefs, m.BatchNumber)
		}

		for _, usage := range usages {
			batch, ok := byID[usage.MaterialBatchID]
			if !ok {
				// Usage rows outlive batch rows only through manual data
				// surgery; skip rather than fail the whole chain.
				s.logger.Warn().Str("usage_id", usage.ID).Str("material_batch_id", usage.MaterialBatchID).Msg("usage references missing material batch")
				continue
			}
			chain.Materials = append(chain.Materials, &MaterialTrace{
				Batch:        batch,
				UsedQuantity: usage.Quantity,
				UsedAt:       usage.UsedAt,
			})
		}
	}

	chain.Documents = s.lookupDocuments(ctx, batchRefs)

	return chain, nil
}

// TraceForward builds the forward chain of a material batch: every
// production run that consumed it and the finished goods batches those
// runs produced. An unconsumed batch yields an empty productions list.
func (s *TraceService) TraceForward(ctx context.Context, materialBatchID string) (*ForwardChain, error) {
	material, err := s.materialRepo.GetByID(ctx, materialBatchID)
	if err != nil {
		return nil, err
	}

	usages, err := s.usageRepo.ListByMaterialBatch(ctx, materialBatchID)
	if err != nil {
		return nil, err
	}

	chain := &ForwardChain{
		Material:    material,
		Productions: []*ProductionTrace{},
		Documents:   []*repository.DocumentRef{},
		TracedAt:    time.Now().UTC(),
	}

	batchRefs := []string{material.BatchNumber}

	if len(usages) > 0 {
		// Aggregate usages per production batch; one run may draw from
		// the same material batch more than once.
		traceByProduction := make(map[string]*ProductionTrace)
		productionIDs := make([]string, 0, len(usages))
		for _, usage := range usages {
			trace, ok := traceByProduction[usage.ProductionBatchID]
			if !ok {
				trace = &ProductionTrace{FinishedGoods: []*repository.FinishedGoodsBatch{}}
				traceByProduction[usage.ProductionBatchID] = trace
				productionIDs = append(productionIDs, usage.ProductionBatchID)
			}
			trace.ConsumedQuantity += usage.Quantity
			if usage.UsedAt.After(trace.LastUsedAt) {
				trace.LastUsedAt = usage.UsedAt
			}
		}

		productions, err := s.productionRepo.GetByIDs(ctx, productionIDs)
		if err != nil {
			return nil, err
		}
		for _, p := range productions {
			if trace, ok := traceByProduction[p.ID]; ok {
				trace.Batch = p
				batchRefs = append(batchRefs, p.BatchNumber)
			}
		}

		finishedBatches, err := s.finishedRepo.ListByProductionBatches(ctx, productionIDs)
		if err != nil {
			return nil, err
		}
		for _, f := range finishedBatches {
			if trace, ok := traceByProduction[f.ProductionBatchID]; ok {
				trace.FinishedGoods = append(trace.FinishedGoods, f)
				batchRefs = append(batchRefs, f.BatchNumber)
			}
		}

		for _, id := range productionIDs {
			trace := traceByProduction[id]
			if trace.Batch == nil {
				s.logger.Warn().Str("production_batch_id", id).Str("material_batch_id", materialBatchID).Msg("usage references missing production batch")
				continue
			}
			chain.Productions = append(chain.Productions, trace)
		}
	}

	chain.Documents = s.lookupDocuments(ctx, batchRefs)

	return chain, nil
}

// lookupDocuments attaches released documents to a chain. Document
// lookup is best-effort: a failure degrades the chain to no documents
// instead of failing the trace.
func (s *TraceService) lookupDocuments(ctx context.Context, batchRefs []string) []*repository.DocumentRef {
	if s.docLookup == nil {
		return []*repository.DocumentRef{}
	}

	docs, err := s.docLookup.ListByBatchRefs(ctx, batchRefs)
	if err != nil {
		s.logger.Error().Err(err).Msg("document lookup failed, returning chain without documents")
		return []*repository.DocumentRef{}
	}
	if docs == nil {
		return []*repository.DocumentRef{}
	}
	return docs
}
