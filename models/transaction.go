package models

import (
	"time"
)

// Transaction is one purchase attempt. It is created pending by the order
// manager and completed by payment-capture handling; the core never deletes
// transactions.
type Transaction struct {
	ID               int64         `json:"id"`
	TransactionID    string        `json:"transaction_id"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	Status           string        `json:"status"`
	PaymentProcessor string        `json:"payment_processor,omitempty"`
	StripeSessionID  string        `json:"stripe_session_id,omitempty"`
	PayPalOrderID    string        `json:"paypal_order_id,omitempty"`
	PayPalCaptureID  string        `json:"paypal_capture_id,omitempty"`
	CustomerEmail    string        `json:"customer_email"`
	CustomerName     string        `json:"customer_name"`
	CustomerPhone    string        `json:"customer_phone,omitempty"`
	CartFingerprint  string        `json:"cart_fingerprint"`
	TotalCents       int64         `json:"total_cents"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// ProcessorRefs carries the provider references attached to a transaction as
// the payment flow progresses. Empty fields are left untouched on update so a
// PayPal capture cannot erase an earlier Stripe session id.
type ProcessorRefs struct {
	StripeSessionID string
	PayPalOrderID   string
	PayPalCaptureID string
}
