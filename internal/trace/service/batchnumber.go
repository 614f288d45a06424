package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/config"
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// Batch types recognized by the number generator
const (
	BatchTypeMaterial   = "material"
	BatchTypeProduction = "production"
	BatchTypeFinished   = "finished"
)

// batchNumberDateLayout is the date segment of a batch number
const batchNumberDateLayout = "20060102"

var batchNumberPattern = regexp.MustCompile(`^([A-Z]+)-(\d{8})-(\d{3})$`)

// ParsedBatchNumber is the decomposed form of a batch number
type ParsedBatchNumber struct {
	Prefix   string    `json:"prefix"`
	Date     time.Time `json:"date"`
	Sequence int       `json:"sequence"`
}

// BatchNumberService generates and validates batch numbers in the
// PREFIX-YYYYMMDD-SEQ format. Sequence allocation is backed by a counter
// table so numbers stay unique across restarts and concurrent callers.
type BatchNumberService struct {
	seqRepo *repository.SequenceRepository
	cfg     config.BatchNumberConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewBatchNumberService creates a new batch number service
func NewBatchNumberService(seqRepo *repository.SequenceRepository, cfg config.BatchNumberConfig, log *logger.Logger) *BatchNumberService {
	return &BatchNumberService{
		seqRepo: seqRepo,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
}

// Generate allocates the next batch number for the given batch type.
// Sequences reset daily per type; more than 999 allocations on one day
// is a sequence overflow.
func (s *BatchNumberService) Generate(ctx context.Context, batchType string) (string, error) {
	prefix := s.cfg.Prefix(batchType)
	if prefix == "" {
		return "", errors.BadRequest(fmt.Sprintf("unknown batch type: %s", batchType))
	}

	seqDate := s.now().Format(batchNumberDateLayout)
	value, err := s.seqRepo.Next(ctx, batchType, seqDate)
	if err != nil {
		return "", fmt.Errorf("failed to allocate batch sequence: %w", err)
	}

	return s.format(batchType, prefix, seqDate, value)
}

// GenerateTx allocates the next batch number within an existing transaction,
// so the number and the batch row it names commit or roll back together.
func (s *BatchNumberService) GenerateTx(ctx context.Context, tx *sqlx.Tx, batchType string) (string, error) {
	prefix := s.cfg.Prefix(batchType)
	if prefix == "" {
		return "", errors.BadRequest(fmt.Sprintf("unknown batch type: %s", batchType))
	}

	seqDate := s.now().Format(batchNumberDateLayout)
	value, err := s.seqRepo.NextTx(ctx, tx, batchType, seqDate)
	if err != nil {
		return "", fmt.Errorf("failed to allocate batch sequence: %w", err)
	}

	return s.format(batchType, prefix, seqDate, value)
}

func (s *BatchNumberService) format(batchType, prefix, seqDate string, value int) (string, error) {
	if value > s.cfg.MaxSequence() {
		s.logger.Error().
			Str("batch_type", batchType).
			Str("seq_date", seqDate).
			Int("value", value).
			Msg("daily batch sequence exhausted")
		return "", errors.SequenceOverflow(batchType, seqDate)
	}

	return fmt.Sprintf("%s-%s-%0*d", prefix, seqDate, s.cfg.SequenceDigits, value), nil
}

// ValidateBatchNumber checks that a batch number conforms to the
// PREFIX-YYYYMMDD-SEQ format with a real calendar date.
func ValidateBatchNumber(batchNumber string) error {
	_, err := ParseBatchNumber(batchNumber)
	return err
}

// ParseBatchNumber decomposes a batch number into prefix, date and sequence.
// The sequence segment may be all zeros only as a parse result, never as a
// generated value; callers that care should check Sequence > 0.
func ParseBatchNumber(batchNumber string) (*ParsedBatchNumber, error) {
	m := batchNumberPattern.FindStringSubmatch(batchNumber)
	if m == nil {
		return nil, errors.BadRequest(fmt.Sprintf("invalid batch number format: %s", batchNumber))
	}

	date, err := time.Parse(batchNumberDateLayout, m[2])
	if err != nil {
		return nil, errors.BadRequest(fmt.Sprintf("invalid date in batch number: %s", m[2]))
	}

	seq, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, errors.BadRequest(fmt.Sprintf("invalid sequence in batch number: %s", m[3]))
	}

	return &ParsedBatchNumber{
		Prefix:   m[1],
		Date:     date,
		Sequence: seq,
	}, nil
}
