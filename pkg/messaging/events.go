package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Trace events
	EventBatchReceived  = "trace.batch.received"
	EventBatchUpdated   = "trace.batch.updated"
	EventBatchDeleted   = "trace.batch.deleted"
	EventBatchesExpired = "trace.batch.expired"

	EventProductionCreated   = "trace.production.created"
	EventProductionCompleted = "trace.production.completed"

	EventUsageRecorded = "trace.usage.recorded"
	EventUsageReversed = "trace.usage.reversed"

	EventBalanceMismatch = "trace.balance.mismatch"

	// Document events (published by the document service, consumed here)
	EventDocumentReleased  = "document.released"
	EventDocumentUpdated   = "document.updated"
	EventDocumentObsoleted = "document.obsoleted"
)

// Exchange names
const (
	ExchangeTraceEvents    = "trace.events"
	ExchangeDocumentEvents = "document.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// GenerateEventID generates a unique event identifier
func GenerateEventID() string {
	return uuid.New().String()
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Trace events

// BatchReceivedEvent is published when a material batch enters the warehouse
type BatchReceivedEvent struct {
	BatchID     string  `json:"batch_id"`
	BatchNumber string  `json:"batch_number"`
	MaterialID  string  `json:"material_id"`
	SupplierID  string  `json:"supplier_id"`
	Quantity    float64 `json:"quantity"`
}

// ProductionCompletedEvent is published when a production batch completes
// and its finished goods batch is minted
type ProductionCompletedEvent struct {
	ProductionBatchID     string  `json:"production_batch_id"`
	ProductionBatchNumber string  `json:"production_batch_number"`
	FinishedBatchID       string  `json:"finished_batch_id"`
	FinishedBatchNumber   string  `json:"finished_batch_number"`
	Quantity              float64 `json:"quantity"`
}

// UsageRecordedEvent is published when a material batch is consumed by a production batch
type UsageRecordedEvent struct {
	UsageID           string  `json:"usage_id"`
	ProductionBatchID string  `json:"production_batch_id"`
	MaterialBatchID   string  `json:"material_batch_id"`
	Quantity          float64 `json:"quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
}

// UsageReversedEvent is published when a usage record is reversed
type UsageReversedEvent struct {
	UsageID           string  `json:"usage_id"`
	ProductionBatchID string  `json:"production_batch_id"`
	MaterialBatchID   string  `json:"material_batch_id"`
	Quantity          float64 `json:"quantity"`
}

// BatchesExpiredEvent is published after an expiry sweep locks batches
type BatchesExpiredEvent struct {
	Count int       `json:"count"`
	AsOf  time.Time `json:"as_of"`
}

// BalanceMismatchEvent is published when a reconciliation run finds imbalances.
// This is an audit signal only; it never blocks ledger operations.
type BalanceMismatchEvent struct {
	ImbalancedCount int      `json:"imbalanced_count"`
	BatchNumbers    []string `json:"batch_numbers"`
}

// Document events

// DocumentReleasedEvent is published by the document service when a
// quality or process document referencing a batch is released
type DocumentReleasedEvent struct {
	DocumentID     string    `json:"document_id"`
	DocumentNumber string    `json:"document_number"`
	DocumentType   string    `json:"document_type"`
	BatchRef       string    `json:"batch_ref"`
	Title          string    `json:"title"`
	IssuedAt       time.Time `json:"issued_at"`
}

// DocumentUpdatedEvent is published when a released document changes
type DocumentUpdatedEvent struct {
	DocumentID string         `json:"document_id"`
	Fields     map[string]any `json:"fields"`
}

// DocumentObsoletedEvent is published when a document is withdrawn
type DocumentObsoletedEvent struct {
	DocumentID string `json:"document_id"`
}
