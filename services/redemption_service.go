package services

import (
	"context"
	"log/slog"
	"time"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
	"alocubano-ticketing/monitoring"
	"alocubano-ticketing/security"
	"alocubano-ticketing/store"
)

const (
	scanSourceDoor  = "scanner"
	reasonScanLimit = "scan_limit_exceeded"
)

// RedemptionService is the ticket scanning engine. The scan ceiling lives in
// the store's conditional UPDATE; this layer verifies the credential, maps
// the outcome and keeps the audit trail.
type RedemptionService struct {
	store  *store.Store
	signer *security.TokenSigner
	notify *NotifyService
	now    func() time.Time
}

func NewRedemptionService(st *store.Store, signer *security.TokenSigner, notify *NotifyService) *RedemptionService {
	return &RedemptionService{store: st, signer: signer, notify: notify, now: time.Now}
}

// Validate redeems one scan against the token's ticket. With validateOnly
// set it is a read-only probe: status checks run but nothing is written, not
// even the audit row.
func (s *RedemptionService) Validate(ctx context.Context, token string, validateOnly bool) (*models.TicketSnapshot, error) {
	started := s.now()
	defer func() {
		monitoring.TrackScanDuration(time.Since(started).Seconds())
	}()

	code, err := s.signer.VerifyRedemptionToken(token)
	if err != nil {
		monitoring.TrackScan("invalid_credential")
		return nil, status.ErrInvalidCredential
	}

	ticket, err := s.store.TicketByValidationCode(ctx, code)
	if err != nil {
		if err == status.ErrTicketNotFound {
			monitoring.TrackScan("not_found")
			return nil, err
		}
		slog.Error("ticket lookup failed", "err", err)
		return nil, status.ErrStore
	}

	if rejection := s.rejectByState(ticket); rejection != nil {
		if !validateOnly {
			s.audit(ctx, ticket.ID, models.ValidationFailed, rejection.Error())
		}
		monitoring.TrackScan("rejected")
		return nil, rejection
	}

	if validateOnly {
		return ticket.Snapshot(), nil
	}

	newCount, ok, err := s.store.IncrementScanCount(ctx, ticket.ID, s.now())
	if err != nil {
		slog.Error("scan increment failed", "ticket", ticket.TicketID, "err", err)
		return nil, status.ErrStore
	}

	if !ok {
		// Re-read to tell "at ceiling" apart from a concurrent status flip.
		current, err := s.store.TicketByValidationCode(ctx, code)
		if err != nil {
			slog.Error("ticket re-read failed", "ticket", ticket.TicketID, "err", err)
			return nil, status.ErrStore
		}
		rejection := s.rejectByState(current)
		if rejection == nil {
			rejection = status.ErrScanLimitExceeded
			s.audit(ctx, current.ID, models.ValidationFailed, reasonScanLimit)
		} else {
			s.audit(ctx, current.ID, models.ValidationFailed, rejection.Error())
		}
		monitoring.TrackScan("failed")
		return nil, rejection
	}

	s.audit(ctx, ticket.ID, models.ValidationSuccess, "")
	monitoring.TrackScan("success")
	s.notify.TicketScanned(ticket.TicketID, newCount, ticket.MaxScanCount)

	// The snapshot carries the count RETURNING handed this call, not a
	// re-read that concurrent scans may already have moved past.
	snapshot := ticket.Snapshot()
	snapshot.ScanCount = newCount
	return snapshot, nil
}

// SignToken issues the redemption credential for a ticket, used when
// delivering tickets and wallet passes.
func (s *RedemptionService) SignToken(ticket *models.Ticket) (string, error) {
	return s.signer.SignRedemptionToken(ticket.ValidationCode)
}

// ScanLog returns the audit trail for an existing ticket.
func (s *RedemptionService) ScanLog(ctx context.Context, ticketID string) (*models.Ticket, []models.RedemptionAttempt, error) {
	ticket, err := s.store.TicketByExternalID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := s.store.ScanLog(ctx, ticket.ID)
	if err != nil {
		slog.Error("scan log read failed", "ticket", ticketID, "err", err)
		return nil, nil, status.ErrStore
	}
	return ticket, attempts, nil
}

// CancelTicket moves a ticket into a terminal state, checked against the
// lifecycle transition table.
func (s *RedemptionService) CancelTicket(ctx context.Context, ticketID string, to models.TicketStatus) (*models.Ticket, error) {
	ticket, err := s.store.TicketByExternalID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.CanTransitionTo(to) {
		return nil, &status.TicketStateError{State: string(ticket.Status)}
	}
	changed, err := s.store.UpdateTicketStatus(ctx, ticketID, ticket.Status, to)
	if err != nil {
		slog.Error("ticket status update failed", "ticket", ticketID, "err", err)
		return nil, status.ErrStore
	}
	if !changed {
		// Lost a race with another transition; report the fresh state.
		ticket, err = s.store.TicketByExternalID(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return nil, &status.TicketStateError{State: string(ticket.Status)}
	}
	return s.store.TicketByExternalID(ctx, ticketID)
}

func (s *RedemptionService) rejectByState(t *models.Ticket) error {
	if !t.Status.Scannable() {
		return &status.TicketStateError{State: string(t.Status)}
	}
	if t.RegistrationStatus != models.RegistrationCompleted {
		return status.ErrNotRegistered
	}
	return nil
}

// audit appends one attempt row. Log failures are telemetry loss, never an
// engine failure.
func (s *RedemptionService) audit(ctx context.Context, ticketID int64, result, reason string) {
	if err := s.store.InsertRedemptionAttempt(ctx, ticketID, result, reason, scanSourceDoor, s.now()); err != nil {
		slog.Warn("redemption audit insert failed", "ticket", ticketID, "err", err)
	}
}
