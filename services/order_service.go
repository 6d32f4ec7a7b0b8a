package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alocubano-ticketing/config"
	"alocubano-ticketing/internal/payments"
	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
	"alocubano-ticketing/monitoring"
	"alocubano-ticketing/store"
	"alocubano-ticketing/utils"
	"alocubano-ticketing/validators"
)

// OrderService is the idempotent order manager: it turns validated checkout
// submissions into pending transactions exactly once per (fingerprint,
// dedup window), and applies payment captures exactly once per transaction.
type OrderService struct {
	store   *store.Store
	gateway *validators.Gateway
	cfg     *config.Config
	notify  *NotifyService
	now     func() time.Time
}

func NewOrderService(st *store.Store, gateway *validators.Gateway, cfg *config.Config, notify *NotifyService) *OrderService {
	return &OrderService{
		store:   st,
		gateway: gateway,
		cfg:     cfg,
		notify:  notify,
		now:     time.Now,
	}
}

// CreatePending validates the submission, deduplicates it against the
// rolling window, and on first sight inserts the transaction with one ticket
// row per registration. existing reports whether an earlier submission was
// returned instead of a new insert.
func (s *OrderService) CreatePending(ctx context.Context, req *models.CheckoutRequest) (txn *models.Transaction, tickets []*models.Ticket, existing bool, err error) {
	cartLines := make(map[string]int, len(req.CartItems))
	types := make(map[string]*models.TicketType, len(req.CartItems))
	var totalCents int64

	for _, item := range req.CartItems {
		if item.Quantity <= 0 {
			return nil, nil, false, &status.ValidationError{
				Field:  "cartItems",
				Reason: fmt.Sprintf("quantity for %q must be positive", item.TicketType),
			}
		}
		tt, err := s.store.TicketTypeByID(ctx, item.TicketType)
		if err != nil {
			if err == status.ErrTicketTypeNotFound {
				return nil, nil, false, &status.ValidationError{
					Field:  "cartItems",
					Reason: fmt.Sprintf("unknown ticket type %q", item.TicketType),
				}
			}
			slog.Error("ticket type lookup failed", "type", item.TicketType, "err", err)
			return nil, nil, false, status.ErrStore
		}
		cartLines[item.TicketType] += item.Quantity
		types[item.TicketType] = tt
		totalCents += tt.PriceCents * int64(item.Quantity)
	}

	if want := req.TotalQuantity(); len(req.Registrations) != want {
		return nil, nil, false, &status.CountMismatchError{Expected: want, Got: len(req.Registrations)}
	}
	regLines := make(map[string]int, len(cartLines))
	for _, reg := range req.Registrations {
		regLines[reg.TicketType]++
	}
	for typeID, qty := range cartLines {
		if regLines[typeID] != qty {
			return nil, nil, false, &status.CountMismatchError{Expected: qty, Got: regLines[typeID]}
		}
	}
	if err := s.gateway.ValidateCheckout(ctx, req); err != nil {
		return nil, nil, false, err
	}

	fingerprint := req.CartFingerprint
	if fingerprint == "" {
		fingerprint = utils.CartFingerprint(cartLines, req.CustomerInfo.Email)
	}

	now := s.now()
	since := now.Add(-s.cfg.DedupWindow)

	// Rolling-window dedup. A stale match past the window is ignored so a
	// genuine repeat purchase of the same cart stays possible.
	if found, err := s.findExisting(ctx, fingerprint, since); err != nil {
		return nil, nil, false, err
	} else if found != nil {
		monitoring.TrackOrderDeduplicated()
		tickets, err := s.store.TicketsForTransaction(ctx, found.ID)
		if err != nil {
			slog.Error("ticket read for existing transaction failed", "transaction", found.TransactionID, "err", err)
			return nil, nil, false, status.ErrStore
		}
		return found, tickets, true, nil
	}

	txn, tickets, err = s.buildPending(req, types, fingerprint, totalCents, now)
	if err != nil {
		return nil, nil, false, err
	}

	if err := s.store.CreatePending(ctx, txn, tickets); err != nil {
		if store.IsUniqueViolation(err) {
			// A concurrent identical submission won the insert; fall back
			// to the existing-read path.
			return s.readAfterConflict(ctx, fingerprint, since)
		}
		slog.Error("pending transaction insert failed", "fingerprint", fingerprint, "err", err)
		return nil, nil, false, status.ErrStore
	}

	monitoring.TrackOrderCreated()
	slog.Info("pending transaction created",
		"transaction", txn.TransactionID,
		"tickets", len(tickets),
		"total_cents", totalCents)
	return txn, tickets, false, nil
}

// CompletePayment applies a provider capture: transaction to completed,
// pending_payment tickets promoted, all atomically. Redelivered captures are
// a no-op, which is what webhook retry semantics require.
func (s *OrderService) CompletePayment(ctx context.Context, transactionRef string, processor payments.Processor, refs models.ProcessorRefs) error {
	if !processor.Valid() {
		return &status.ValidationError{Field: "processor", Reason: fmt.Sprintf("unknown processor %q", processor)}
	}

	completed, err := s.store.CompleteTransaction(ctx, transactionRef, string(processor), refs, s.now())
	if err != nil {
		slog.Error("payment completion failed", "transaction", transactionRef, "err", err)
		return status.ErrStore
	}
	if !completed {
		txn, err := s.store.TransactionByExternalID(ctx, transactionRef)
		if err != nil {
			return err
		}
		if txn.PaymentStatus == models.PaymentCompleted {
			slog.Info("duplicate capture ignored", "transaction", transactionRef, "processor", processor)
			return nil
		}
		return &status.ValidationError{
			Field:  "transactionId",
			Reason: fmt.Sprintf("transaction is %s and cannot be completed", txn.PaymentStatus),
		}
	}

	monitoring.TrackPaymentCompleted(string(processor))
	slog.Info("payment completed", "transaction", transactionRef, "processor", processor)

	if s.notify != nil {
		s.notify.TransactionCompleted(transactionRef, string(processor))
	}
	return nil
}

// AttachProcessorSession records a provider session/order reference on a
// still-pending transaction. Customers who abandon one processor and retry
// with another keep accumulating references on the same transaction.
func (s *OrderService) AttachProcessorSession(ctx context.Context, transactionRef string, processor payments.Processor, sessionRef string) error {
	if !processor.Valid() {
		return &status.ValidationError{Field: "processor", Reason: fmt.Sprintf("unknown processor %q", processor)}
	}

	if processor == payments.ProcessorComp && sessionRef == "" {
		txn, err := s.store.TransactionByExternalID(ctx, transactionRef)
		if err != nil {
			return err
		}
		provider, err := payments.NewProvider(processor)
		if err != nil {
			return err
		}
		session, err := provider.CreateSession(ctx, payments.SessionRequest{
			TransactionRef: transactionRef,
			AmountCents:    txn.TotalCents,
			CustomerEmail:  txn.CustomerEmail,
		})
		if err != nil {
			return &status.ValidationError{Field: "processor", Reason: err.Error()}
		}
		sessionRef = session.SessionRef
	}

	updated, err := s.store.RecordProcessorSession(ctx, transactionRef, string(processor), sessionRef)
	if err != nil {
		slog.Error("processor session update failed", "transaction", transactionRef, "err", err)
		return status.ErrStore
	}
	if !updated {
		txn, err := s.store.TransactionByExternalID(ctx, transactionRef)
		if err != nil {
			return err
		}
		return &status.ValidationError{
			Field:  "transactionId",
			Reason: fmt.Sprintf("transaction is %s and cannot switch processors", txn.PaymentStatus),
		}
	}
	return nil
}

// UpdateRegistration moves one ticket's registration lifecycle, e.g. staff
// expiring a registration whose payment never arrived, or re-completing an
// expired one after a manual payment fix. Transitions outside the lifecycle
// table are rejected before any write.
func (s *OrderService) UpdateRegistration(ctx context.Context, ticketID string, to models.RegistrationStatus) (*models.Ticket, error) {
	ticket, err := s.store.TicketByExternalID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.RegistrationStatus.CanTransitionTo(to) {
		return nil, &status.ValidationError{
			Field:  "registrationStatus",
			Reason: fmt.Sprintf("cannot move from %s to %s", ticket.RegistrationStatus, to),
		}
	}
	changed, err := s.store.UpdateRegistrationStatus(ctx, ticketID, ticket.RegistrationStatus, to, s.now())
	if err != nil {
		slog.Error("registration update failed", "ticket", ticketID, "err", err)
		return nil, status.ErrStore
	}
	if !changed {
		// Lost a race with a concurrent payment capture or another staff
		// action; report the fresh state.
		current, err := s.store.TicketByExternalID(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return nil, &status.ValidationError{
			Field:  "registrationStatus",
			Reason: fmt.Sprintf("registration is now %s", current.RegistrationStatus),
		}
	}
	return s.store.TicketByExternalID(ctx, ticketID)
}

// Transaction returns a transaction with its tickets for the admin surface.
func (s *OrderService) Transaction(ctx context.Context, transactionRef string) (*models.Transaction, []*models.Ticket, error) {
	txn, err := s.store.TransactionByExternalID(ctx, transactionRef)
	if err != nil {
		return nil, nil, err
	}
	tickets, err := s.store.TicketsForTransaction(ctx, txn.ID)
	if err != nil {
		slog.Error("ticket read failed", "transaction", transactionRef, "err", err)
		return nil, nil, status.ErrStore
	}
	return txn, tickets, nil
}

func (s *OrderService) findExisting(ctx context.Context, fingerprint string, since time.Time) (*models.Transaction, error) {
	found, err := s.store.FindRecentByFingerprint(ctx, fingerprint, since)
	if err != nil {
		slog.Error("fingerprint lookup failed", "fingerprint", fingerprint, "err", err)
		return nil, status.ErrStore
	}
	return found, nil
}

func (s *OrderService) readAfterConflict(ctx context.Context, fingerprint string, since time.Time) (*models.Transaction, []*models.Ticket, bool, error) {
	found, err := s.findExisting(ctx, fingerprint, since)
	if err != nil {
		return nil, nil, false, err
	}
	if found == nil {
		// Should not happen: the conflicting row must be in this bucket.
		slog.Error("dedup conflict row not found", "fingerprint", fingerprint)
		return nil, nil, false, status.ErrStore
	}
	monitoring.TrackOrderDeduplicated()
	tickets, err := s.store.TicketsForTransaction(ctx, found.ID)
	if err != nil {
		return nil, nil, false, status.ErrStore
	}
	return found, tickets, true, nil
}

// buildPending assembles the transaction row and one ticket per
// registration. Registrations are consumed positionally within their ticket
// type, matching how the storefront orders the form.
func (s *OrderService) buildPending(req *models.CheckoutRequest, types map[string]*models.TicketType, fingerprint string, totalCents int64, now time.Time) (*models.Transaction, []*models.Ticket, error) {
	ref, err := utils.NewTransactionID()
	if err != nil {
		return nil, nil, status.ErrStore
	}

	txn := &models.Transaction{
		TransactionID:   ref,
		PaymentStatus:   models.PaymentPending,
		Status:          "pending",
		CustomerEmail:   req.CustomerInfo.Email,
		CustomerName:    req.CustomerInfo.FirstName + " " + req.CustomerInfo.LastName,
		CustomerPhone:   req.CustomerInfo.Phone,
		CartFingerprint: fingerprint,
		TotalCents:      totalCents,
		CreatedAt:       now,
	}

	tickets := make([]*models.Ticket, 0, len(req.Registrations))
	for _, reg := range req.Registrations {
		tt, ok := types[reg.TicketType]
		if !ok {
			return nil, nil, &status.ValidationError{
				Field:  "registrations",
				Reason: fmt.Sprintf("ticket type %q is not in the cart", reg.TicketType),
			}
		}

		ticketID, err := utils.NewTicketID()
		if err != nil {
			return nil, nil, status.ErrStore
		}
		code, err := utils.NewValidationCode()
		if err != nil {
			return nil, nil, status.ErrStore
		}

		maxScans := tt.MaxScanCount
		if maxScans <= 0 {
			maxScans = s.cfg.DefaultMaxScanCount
		}

		tickets = append(tickets, &models.Ticket{
			TicketID:           ticketID,
			EventID:            tt.EventID,
			TicketType:         tt.TypeID,
			PriceCents:         tt.PriceCents,
			AttendeeFirstName:  reg.FirstName,
			AttendeeLastName:   reg.LastName,
			AttendeeEmail:      reg.Email,
			Status:             models.TicketValid,
			RegistrationStatus: models.RegistrationPendingPayment,
			ValidationCode:     code,
			ScanCount:          0,
			MaxScanCount:       maxScans,
			CreatedAt:          now,
		})
	}
	return txn, tickets, nil
}
