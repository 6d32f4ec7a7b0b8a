package models

import (
	"strings"
	"time"
)

// Ticket is one seat/credential owned by exactly one Transaction.
// scan_count is only ever moved by the atomically-conditioned UPDATE in the
// store layer; 0 <= scan_count <= max_scan_count holds at all times.
type Ticket struct {
	ID                 int64              `json:"id"`
	TicketID           string             `json:"ticket_id"`
	TransactionID      int64              `json:"-"`
	EventID            string             `json:"event_id"`
	TicketType         string             `json:"ticket_type"`
	PriceCents         int64              `json:"price_cents"`
	AttendeeFirstName  string             `json:"attendee_first_name"`
	AttendeeLastName   string             `json:"attendee_last_name"`
	AttendeeEmail      string             `json:"attendee_email"`
	Status             TicketStatus       `json:"status"`
	RegistrationStatus RegistrationStatus `json:"registration_status"`
	RegisteredAt       *time.Time         `json:"registered_at,omitempty"`
	ValidationCode     string             `json:"-"`
	ScanCount          int64              `json:"scan_count"`
	MaxScanCount       int64              `json:"max_scan_count"`
	FirstScannedAt     *time.Time         `json:"first_scanned_at,omitempty"`
	LastScannedAt      *time.Time         `json:"last_scanned_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// TicketType is a purchasable catalog entry; cart lines must resolve to an
// active type.
type TicketType struct {
	ID           int64  `json:"-"`
	TypeID       string `json:"id"`
	EventID      string `json:"event_id"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	MaxScanCount int64  `json:"max_scan_count"`
	Status       string `json:"status"`
}

// TicketSnapshot is what the redemption engine returns to the scanning
// terminal after a (possibly read-only) validation.
type TicketSnapshot struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	AttendeeName string `json:"attendeeName"`
	ScanCount    int64  `json:"scanCount"`
	MaxScans     int64  `json:"maxScans"`
}

// Snapshot projects the fields the scanning terminal shows.
func (t *Ticket) Snapshot() *TicketSnapshot {
	name := strings.TrimSpace(t.AttendeeFirstName + " " + t.AttendeeLastName)
	return &TicketSnapshot{
		ID:           t.TicketID,
		Type:         t.TicketType,
		AttendeeName: name,
		ScanCount:    t.ScanCount,
		MaxScans:     t.MaxScanCount,
	}
}

// RedemptionAttempt is an append-only audit row; it is never mutated after
// insert.
type RedemptionAttempt struct {
	ID               int64     `json:"id"`
	TicketID         int64     `json:"ticket_id"`
	ValidationResult string    `json:"validation_result"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	ValidationSource string    `json:"validation_source,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Redemption attempt outcomes.
const (
	ValidationSuccess = "success"
	ValidationFailed  = "failed"
)
