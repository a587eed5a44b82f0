package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Pharmacy stock events
	EventStockAllocated   = "pharmacy.stock.allocated"
	EventStockCorrected   = "pharmacy.stock.corrected"
	EventBatchReceived    = "pharmacy.batch.received"
	EventBatchZoneChanged = "pharmacy.batch.zone_changed"
	EventBatchExpiring    = "pharmacy.batch.expiring"
	EventLostSaleRecorded = "pharmacy.lost_sale.recorded"

	// Prescription events consumed by the pharmacy
	EventFulfillmentRequested = "prescription.fulfillment.requested"
)

// Exchange names
const (
	ExchangePharmacyEvents     = "pharmacy.events"
	ExchangePrescriptionEvents = "prescription.events"
	ExchangeDeadLetter         = "dlx.events"
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

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// AllocatedLine is one batch decrement inside a StockAllocatedEvent
type AllocatedLine struct {
	BatchID    string    `json:"batch_id"`
	LotNumber  string    `json:"lot_number"`
	Units      int       `json:"units"`
	Remaining  int       `json:"remaining"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// StockAllocatedEvent is published after an allocation plan is committed
type StockAllocatedEvent struct {
	RequestID   string          `json:"request_id"`
	ProductID   string          `json:"product_id"`
	WarehouseID string          `json:"warehouse_id"`
	Quantity    int             `json:"quantity"`
	Lines       []AllocatedLine `json:"lines"`
	PerformedBy string          `json:"performed_by"`
}

// StockCorrectedEvent is published after a receipt correction
type StockCorrectedEvent struct {
	BatchID     string `json:"batch_id"`
	ProductID   string `json:"product_id"`
	Delta       int    `json:"delta"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by"`
}

// BatchReceivedEvent is published when a batch is taken into stock
type BatchReceivedEvent struct {
	BatchID     string    `json:"batch_id"`
	ProductID   string    `json:"product_id"`
	WarehouseID string    `json:"warehouse_id"`
	LotNumber   string    `json:"lot_number"`
	Quantity    int       `json:"quantity"`
	Zone        string    `json:"zone"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

// BatchZoneChangedEvent is published after a zone transition
type BatchZoneChangedEvent struct {
	BatchID     string `json:"batch_id"`
	ProductID   string `json:"product_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Reason      string `json:"reason,omitempty"`
	PerformedBy string `json:"performed_by"`
}

// BatchExpiringEvent is published by the expiry scanner
type BatchExpiringEvent struct {
	BatchID       string    `json:"batch_id"`
	ProductID     string    `json:"product_id"`
	WarehouseID   string    `json:"warehouse_id"`
	LotNumber     string    `json:"lot_number"`
	ExpiryDate    time.Time `json:"expiry_date"`
	DaysRemaining int       `json:"days_remaining"`
	Status        string    `json:"status"`
	Quantity      int       `json:"quantity"`
}

// LostSaleRecordedEvent is published when a request could not be served
type LostSaleRecordedEvent struct {
	ProductID         string `json:"product_id"`
	WarehouseID       string `json:"warehouse_id"`
	RequestedQuantity int    `json:"requested_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	Reason            string `json:"reason"`
}

// FulfillmentRequestedEvent asks the pharmacy to dispense a prescription line
type FulfillmentRequestedEvent struct {
	RequestID      string `json:"request_id"`
	PrescriptionID string `json:"prescription_id"`
	ProductID      string `json:"product_id"`
	WarehouseID    string `json:"warehouse_id"`
	Quantity       int    `json:"quantity"`
	RequestedBy    string `json:"requested_by"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
