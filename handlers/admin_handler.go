package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
	"alocubano-ticketing/security"
	"alocubano-ticketing/services"
)

// AdminHandler serves the staff surface: audit trails, transaction lookups
// and ticket lifecycle changes. All routes require a bearer token with a
// staff role.
type AdminHandler struct {
	redemption *services.RedemptionService
	orders     *services.OrderService
	signer     *security.TokenSigner
}

func NewAdminHandler(redemption *services.RedemptionService, orders *services.OrderService, signer *security.TokenSigner) *AdminHandler {
	return &AdminHandler{redemption: redemption, orders: orders, signer: signer}
}

func (h *AdminHandler) authorize(e *core.RequestEvent) error {
	auth := e.Request.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return apis.NewUnauthorizedError("Staff access required", nil)
	}
	if _, err := h.signer.VerifyAdminToken(token); err != nil {
		return apis.NewUnauthorizedError("Staff access required", nil)
	}
	return nil
}

// ScanLog handles GET /api/v1/admin/tickets/{ticketId}/scan-log.
func (h *AdminHandler) ScanLog(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	ticketID := e.Request.PathValue("ticketId")
	ticket, attempts, err := h.redemption.ScanLog(e.Request.Context(), ticketID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Scan log lookup failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":   ticket,
		"attempts": attempts,
	})
}

// Transaction handles GET /api/v1/admin/transactions/{transactionId}.
func (h *AdminHandler) Transaction(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	ref := e.Request.PathValue("transactionId")
	txn, tickets, err := h.orders.Transaction(e.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, status.ErrTransactionNotFound) {
			return apis.NewNotFoundError("Transaction not found", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Transaction lookup failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"transaction": txn,
		"tickets":     tickets,
	})
}

type ticketStatusRequest struct {
	Status string `json:"status"`
}

// UpdateTicketStatus handles POST /api/v1/admin/tickets/{ticketId}/status.
// Transitions outside the lifecycle table are rejected.
func (h *AdminHandler) UpdateTicketStatus(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	req := ticketStatusRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ticketID := e.Request.PathValue("ticketId")
	ticket, err := h.redemption.CancelTicket(e.Request.Context(), ticketID, models.TicketStatus(req.Status))
	if err != nil {
		var stateErr *status.TicketStateError
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", nil)
		case errors.As(err, &stateErr):
			return apis.NewBadRequestError("Ticket cannot move from its current state", nil)
		default:
			return apis.NewApiError(http.StatusInternalServerError, "Ticket update failed", nil)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"ticket": ticket})
}

type registrationStatusRequest struct {
	Status string `json:"status"`
}

// UpdateRegistration handles POST /api/v1/admin/tickets/{ticketId}/registration.
// Registration transitions outside the lifecycle table are rejected.
func (h *AdminHandler) UpdateRegistration(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	req := registrationStatusRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ticketID := e.Request.PathValue("ticketId")
	ticket, err := h.orders.UpdateRegistration(e.Request.Context(), ticketID, models.RegistrationStatus(req.Status))
	if err != nil {
		var valErr *status.ValidationError
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", nil)
		case errors.As(err, &valErr):
			return apis.NewBadRequestError(valErr.Reason, nil)
		default:
			return apis.NewApiError(http.StatusInternalServerError, "Registration update failed", nil)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"ticket": ticket})
}
