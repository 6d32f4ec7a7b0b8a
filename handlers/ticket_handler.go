package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/services"
)

type TicketHandler struct {
	redemption *services.RedemptionService
}

func NewTicketHandler(redemption *services.RedemptionService) *TicketHandler {
	return &TicketHandler{redemption: redemption}
}

type validateRequest struct {
	Token        string `json:"token"`
	ValidateOnly bool   `json:"validateOnly"`
}

// Validate handles POST /api/v1/tickets/validate. The error strings are
// pattern-matched by the scanner app, so their wording is contractual.
func (h *TicketHandler) Validate(e *core.RequestEvent) error {
	req := validateRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Token == "" {
		return e.JSON(http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": "Validation token is required",
		})
	}

	snapshot, err := h.redemption.Validate(e.Request.Context(), req.Token, req.ValidateOnly)
	if err != nil {
		return h.writeValidateError(e, err)
	}

	message := "Scan recorded"
	if req.ValidateOnly {
		message = "Ticket is valid"
	}
	return e.JSON(http.StatusOK, map[string]any{
		"valid":   true,
		"ticket":  snapshot,
		"message": message,
	})
}

func (h *TicketHandler) writeValidateError(e *core.RequestEvent, err error) error {
	var stateErr *status.TicketStateError

	switch {
	case errors.Is(err, status.ErrInvalidCredential):
		return e.JSON(http.StatusUnauthorized, map[string]any{
			"valid": false,
			"error": "Invalid or expired validation token",
		})
	case errors.Is(err, status.ErrTicketNotFound):
		return e.JSON(http.StatusNotFound, map[string]any{
			"valid": false,
			"error": "Ticket not found",
		})
	case errors.Is(err, status.ErrScanLimitExceeded):
		return e.JSON(http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": "Ticket has reached the maximum scans allowed",
		})
	case errors.As(err, &stateErr):
		return e.JSON(http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": fmt.Sprintf("Ticket has been %s", stateErr.State),
		})
	case errors.Is(err, status.ErrNotRegistered):
		return e.JSON(http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": "Ticket registration payment has not been completed",
		})
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Validation failed", nil)
	}
}
