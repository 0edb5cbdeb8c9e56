package domain

import (
	"time"

	"storefront-notifier/internal/core/payload"

	"github.com/google/uuid"
)

// EventStatus represents the pipeline lifecycle of a business event.
type EventStatus string

const (
	EventStatusNew        EventStatus = "new"
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusProcessed  EventStatus = "processed"
	EventStatusIgnored    EventStatus = "ignored"
)

// Event is an immutable record of a business occurrence written by producers.
// The pipeline only ever transitions Status.
type Event struct {
	ID                  uuid.UUID        `json:"id"`
	TenantID            uuid.UUID        `json:"tenant_id"`
	EventType           string           `json:"event_type"`
	Payload             payload.Document `json:"payload"`
	OccurredAt          time.Time        `json:"occurred_at"`
	ReceivedAt          time.Time        `json:"received_at"`
	Status              EventStatus      `json:"status"`
	ProcessingStartedAt *time.Time       `json:"processing_started_at,omitempty"`
}

// IsTerminal returns true once the event has been processed or ignored.
func (e *Event) IsTerminal() bool {
	return e.Status == EventStatusProcessed || e.Status == EventStatusIgnored
}

// Payload paths for business identifiers, in lookup order.
var (
	orderIDPaths       = []string{"order_id", "order.id"}
	orderNumberPaths   = []string{"order_number", "order.number", "order.code"}
	checkoutIDPaths    = []string{"checkout_id", "checkout_session_id", "checkout.id"}
	customerIDPaths    = []string{"customer_id", "customer.id"}
	customerEmailPaths = []string{"customer.email", "customer_email", "email"}
	customerPhonePaths = []string{"customer.phone", "customer_phone", "phone", "customer.whatsapp"}
)

// OrderID returns the order identifier carried by the payload, if any.
func (e *Event) OrderID() string { return e.Payload.FirstString(orderIDPaths...) }

// OrderNumber returns the customer-facing order number, if any.
func (e *Event) OrderNumber() string { return e.Payload.FirstString(orderNumberPaths...) }

// CheckoutID returns the checkout session identifier, if any.
func (e *Event) CheckoutID() string { return e.Payload.FirstString(checkoutIDPaths...) }

// CustomerID returns the customer identifier, if any.
func (e *Event) CustomerID() string { return e.Payload.FirstString(customerIDPaths...) }

// CustomerEmail returns the customer e-mail address, if any.
func (e *Event) CustomerEmail() string { return e.Payload.FirstString(customerEmailPaths...) }

// CustomerPhone returns the customer phone number, if any.
func (e *Event) CustomerPhone() string { return e.Payload.FirstString(customerPhonePaths...) }
