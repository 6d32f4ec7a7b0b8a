package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"alocubano-ticketing/internal/payments"
	"alocubano-ticketing/models"
	"alocubano-ticketing/services"
)

// WebhookHandler consumes provider capture notifications. Providers retry
// deliveries, so both endpoints lean on the order manager's idempotent
// completion and answer 200 for anything already applied.
type WebhookHandler struct {
	orders *services.OrderService
	secret string
}

func NewWebhookHandler(orders *services.OrderService, secret string) *WebhookHandler {
	return &WebhookHandler{orders: orders, secret: secret}
}

func (h *WebhookHandler) authorized(e *core.RequestEvent) bool {
	if h.secret == "" {
		return true
	}
	given := e.Request.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) == 1
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			ClientReferenceID string `json:"client_reference_id"`
			PaymentIntent     string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// Stripe handles POST /api/v1/webhooks/stripe.
func (h *WebhookHandler) Stripe(e *core.RequestEvent) error {
	if !h.authorized(e) {
		return apis.NewUnauthorizedError("Invalid webhook signature", nil)
	}

	event := stripeEvent{}
	if err := e.BindBody(&event); err != nil {
		return apis.NewBadRequestError("Invalid webhook payload", err)
	}
	if event.Type != "checkout.session.completed" {
		return e.JSON(http.StatusOK, map[string]any{"received": true})
	}

	ref := event.Data.Object.ClientReferenceID
	if ref == "" {
		return apis.NewBadRequestError("Missing client reference", nil)
	}

	err := h.orders.CompletePayment(e.Request.Context(), ref, payments.ProcessorStripe, models.ProcessorRefs{
		StripeSessionID: event.Data.Object.ID,
	})
	if err != nil {
		return writeOrderError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// PayPal handles POST /api/v1/webhooks/paypal. Capture amounts arrive as
// decimal strings and are compared exactly against the transaction total.
func (h *WebhookHandler) PayPal(e *core.RequestEvent) error {
	if !h.authorized(e) {
		return apis.NewUnauthorizedError("Invalid webhook signature", nil)
	}

	event := paypalEvent{}
	if err := e.BindBody(&event); err != nil {
		return apis.NewBadRequestError("Invalid webhook payload", err)
	}
	if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		return e.JSON(http.StatusOK, map[string]any{"received": true})
	}

	ref := event.Resource.CustomID
	if ref == "" {
		return apis.NewBadRequestError("Missing custom id", nil)
	}

	if event.Resource.Amount.Value != "" {
		captured, err := decimal.NewFromString(event.Resource.Amount.Value)
		if err != nil {
			return apis.NewBadRequestError("Invalid capture amount", err)
		}
		txn, _, err := h.orders.Transaction(e.Request.Context(), ref)
		if err != nil {
			return writeOrderError(e, err)
		}
		expected := decimal.NewFromInt(txn.TotalCents).Div(decimal.NewFromInt(100))
		if !captured.Equal(expected) {
			slog.Error("capture amount mismatch",
				"transaction", ref,
				"captured", captured.String(),
				"expected", expected.String())
			return apis.NewBadRequestError("Capture amount does not match transaction total", nil)
		}
	}

	err := h.orders.CompletePayment(e.Request.Context(), ref, payments.ProcessorPayPal, models.ProcessorRefs{
		PayPalOrderID:   event.Resource.SupplementaryData.RelatedIDs.OrderID,
		PayPalCaptureID: event.Resource.ID,
	})
	if err != nil {
		return writeOrderError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

type simulatePaymentRequest struct {
	TransactionID string `json:"transactionId"`
	Processor     string `json:"processor"`
}

// SimulatePayment is a development-only shortcut that fakes a capture.
func (h *WebhookHandler) SimulatePayment(e *core.RequestEvent) error {
	req := simulatePaymentRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	processor := payments.Processor(req.Processor)
	if req.Processor == "" {
		processor = payments.ProcessorComp
	}

	err := h.orders.CompletePayment(e.Request.Context(), req.TransactionID, processor, models.ProcessorRefs{})
	if err != nil {
		return writeOrderError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"success": true, "simulated": true})
}
