package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"alocubano-ticketing/internal/payments"
	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
	"alocubano-ticketing/services"
)

type CheckoutHandler struct {
	orders *services.OrderService
}

func NewCheckoutHandler(orders *services.OrderService) *CheckoutHandler {
	return &CheckoutHandler{orders: orders}
}

// CreatePendingTransaction handles POST
// /api/v1/checkout/create-pending-transaction. A deduplicated replay answers
// 200 instead of 201 so the storefront can tell retry from purchase.
func (h *CheckoutHandler) CreatePendingTransaction(e *core.RequestEvent) error {
	req := models.CheckoutRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if len(req.CartItems) == 0 {
		return e.JSON(http.StatusBadRequest, map[string]any{
			"error": "Cart is empty",
		})
	}

	txn, tickets, existing, err := h.orders.CreatePending(e.Request.Context(), &req)
	if err != nil {
		return writeOrderError(e, err)
	}

	body := map[string]any{
		"success": true,
		"transaction": map[string]any{
			"id":             txn.ID,
			"transaction_id": txn.TransactionID,
			"payment_status": txn.PaymentStatus,
			"total_cents":    txn.TotalCents,
		},
		"tickets": tickets,
	}
	if existing {
		body["existing"] = true
		return e.JSON(http.StatusOK, body)
	}
	return e.JSON(http.StatusCreated, body)
}

type paymentSessionRequest struct {
	TransactionID string `json:"transactionId"`
	Processor     string `json:"processor"`
	SessionRef    string `json:"sessionRef"`
}

// AttachPaymentSession handles POST /api/v1/checkout/payment-session.
// Customers switching processors keep hitting the same pending transaction.
func (h *CheckoutHandler) AttachPaymentSession(e *core.RequestEvent) error {
	req := paymentSessionRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.TransactionID == "" {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "transactionId is required"})
	}

	err := h.orders.AttachProcessorSession(e.Request.Context(), req.TransactionID, payments.Processor(req.Processor), req.SessionRef)
	if err != nil {
		return writeOrderError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"success": true})
}

func writeOrderError(e *core.RequestEvent, err error) error {
	var (
		validationErr *status.ValidationError
		mismatchErr   *status.CountMismatchError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &mismatchErr):
		return e.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, status.ErrTransactionNotFound):
		return e.JSON(http.StatusNotFound, map[string]any{"error": "Transaction not found"})
	case errors.Is(err, status.ErrTicketTypeNotFound):
		return e.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Checkout failed", nil)
	}
}
