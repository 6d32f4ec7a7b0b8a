package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/pocketbase/dbx"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
)

// timeLayout matches the PocketBase on-disk datetime format; it sorts
// lexicographically, which the dedup-window comparison relies on.
const timeLayout = "2006-01-02 15:04:05.000Z"

// dedupBucketSeconds is the width of the uniqueness bucket backing the
// (cart_fingerprint, dedup_bucket) index. The rolling window lookup runs
// first; the index only arbitrates truly concurrent first submissions.
const dedupBucketSeconds = 3600

// TxRunner executes fn inside one store transaction. Wired to
// app.RunInTransaction in production and to dbx.DB.Transactional in tests.
type TxRunner func(fn func(b dbx.Builder) error) error

// Store is the dbx-backed persistence layer shared by the redemption engine
// and the order manager.
type Store struct {
	db    dbx.Builder
	runTx TxRunner
}

func New(db dbx.Builder, runTx TxRunner) *Store {
	return &Store{db: db, runTx: runTx}
}

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure, the signal that a concurrent duplicate submission won the insert.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

type ticketRecord struct {
	ID                 int64          `db:"id"`
	TicketID           string         `db:"ticket_id"`
	TransactionID      int64          `db:"transaction_id"`
	EventID            string         `db:"event_id"`
	TicketType         string         `db:"ticket_type"`
	PriceCents         int64          `db:"price_cents"`
	AttendeeFirstName  string         `db:"attendee_first_name"`
	AttendeeLastName   string         `db:"attendee_last_name"`
	AttendeeEmail      string         `db:"attendee_email"`
	Status             string         `db:"status"`
	RegistrationStatus string         `db:"registration_status"`
	RegisteredAt       sql.NullString `db:"registered_at"`
	ValidationCode     string         `db:"validation_code"`
	ScanCount          int64          `db:"scan_count"`
	MaxScanCount       int64          `db:"max_scan_count"`
	FirstScannedAt     sql.NullString `db:"first_scanned_at"`
	LastScannedAt      sql.NullString `db:"last_scanned_at"`
	CreatedAt          string         `db:"created_at"`
}

func (r *ticketRecord) toModel() *models.Ticket {
	return &models.Ticket{
		ID:                 r.ID,
		TicketID:           r.TicketID,
		TransactionID:      r.TransactionID,
		EventID:            r.EventID,
		TicketType:         r.TicketType,
		PriceCents:         r.PriceCents,
		AttendeeFirstName:  r.AttendeeFirstName,
		AttendeeLastName:   r.AttendeeLastName,
		AttendeeEmail:      r.AttendeeEmail,
		Status:             models.TicketStatus(r.Status),
		RegistrationStatus: models.RegistrationStatus(r.RegistrationStatus),
		RegisteredAt:       parseTimePtr(r.RegisteredAt),
		ValidationCode:     r.ValidationCode,
		ScanCount:          r.ScanCount,
		MaxScanCount:       r.MaxScanCount,
		FirstScannedAt:     parseTimePtr(r.FirstScannedAt),
		LastScannedAt:      parseTimePtr(r.LastScannedAt),
		CreatedAt:          parseTime(r.CreatedAt),
	}
}

type transactionRecord struct {
	ID               int64          `db:"id"`
	TransactionID    string         `db:"transaction_id"`
	PaymentStatus    string         `db:"payment_status"`
	Status           string         `db:"status"`
	PaymentProcessor string         `db:"payment_processor"`
	StripeSessionID  string         `db:"stripe_session_id"`
	PayPalOrderID    string         `db:"paypal_order_id"`
	PayPalCaptureID  string         `db:"paypal_capture_id"`
	CustomerEmail    string         `db:"customer_email"`
	CustomerName     string         `db:"customer_name"`
	CustomerPhone    string         `db:"customer_phone"`
	CartFingerprint  string         `db:"cart_fingerprint"`
	DedupBucket      int64          `db:"dedup_bucket"`
	TotalCents       int64          `db:"total_cents"`
	CreatedAt        string         `db:"created_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
}

func (r *transactionRecord) toModel() *models.Transaction {
	return &models.Transaction{
		ID:               r.ID,
		TransactionID:    r.TransactionID,
		PaymentStatus:    models.PaymentStatus(r.PaymentStatus),
		Status:           r.Status,
		PaymentProcessor: r.PaymentProcessor,
		StripeSessionID:  r.StripeSessionID,
		PayPalOrderID:    r.PayPalOrderID,
		PayPalCaptureID:  r.PayPalCaptureID,
		CustomerEmail:    r.CustomerEmail,
		CustomerName:     r.CustomerName,
		CustomerPhone:    r.CustomerPhone,
		CartFingerprint:  r.CartFingerprint,
		TotalCents:       r.TotalCents,
		CreatedAt:        parseTime(r.CreatedAt),
		CompletedAt:      parseTimePtr(r.CompletedAt),
	}
}

// TicketByValidationCode looks a ticket up by its redemption credential
// subject.
func (s *Store) TicketByValidationCode(ctx context.Context, code string) (*models.Ticket, error) {
	var rec ticketRecord
	err := s.db.NewQuery(`SELECT * FROM tickets WHERE validation_code = {:code}`).
		Bind(dbx.Params{"code": code}).
		WithContext(ctx).
		One(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// TicketByExternalID looks a ticket up by its public ticket id.
func (s *Store) TicketByExternalID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var rec ticketRecord
	err := s.db.NewQuery(`SELECT * FROM tickets WHERE ticket_id = {:id}`).
		Bind(dbx.Params{"id": ticketID}).
		WithContext(ctx).
		One(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// IncrementScanCount performs the single atomically-conditioned UPDATE that
// enforces the scan ceiling. RETURNING hands back this call's own
// post-increment count, so concurrent scans never inflate each other's
// reported count; callers must never pre-check scan_count and then write.
// ok is false when the guard matched no row.
func (s *Store) IncrementScanCount(ctx context.Context, ticketID int64, now time.Time) (count int64, ok bool, err error) {
	err = s.db.NewQuery(`UPDATE tickets
		SET scan_count = scan_count + 1,
		    last_scanned_at = {:now},
		    first_scanned_at = COALESCE(first_scanned_at, {:now})
		WHERE id = {:id}
		  AND scan_count < max_scan_count
		  AND status IN ('valid', 'used')
		  AND registration_status = 'completed'
		RETURNING scan_count`).
		Bind(dbx.Params{"id": ticketID, "now": fmtTime(now)}).
		WithContext(ctx).
		Row(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// InsertRedemptionAttempt appends one audit row. Rows are never mutated
// after insert.
func (s *Store) InsertRedemptionAttempt(ctx context.Context, ticketID int64, result, reason, source string, now time.Time) error {
	_, err := s.db.Insert("qr_validations", dbx.Params{
		"ticket_id":         ticketID,
		"validation_result": result,
		"failure_reason":    reason,
		"validation_source": source,
		"created_at":        fmtTime(now),
	}).WithContext(ctx).Execute()
	return err
}

// ScanLog returns the redemption attempts for a ticket, newest first.
func (s *Store) ScanLog(ctx context.Context, ticketID int64) ([]models.RedemptionAttempt, error) {
	var recs []struct {
		ID               int64  `db:"id"`
		TicketID         int64  `db:"ticket_id"`
		ValidationResult string `db:"validation_result"`
		FailureReason    string `db:"failure_reason"`
		ValidationSource string `db:"validation_source"`
		CreatedAt        string `db:"created_at"`
	}
	err := s.db.NewQuery(`SELECT * FROM qr_validations WHERE ticket_id = {:id} ORDER BY id DESC`).
		Bind(dbx.Params{"id": ticketID}).
		WithContext(ctx).
		All(&recs)
	if err != nil {
		return nil, err
	}
	attempts := make([]models.RedemptionAttempt, 0, len(recs))
	for _, r := range recs {
		attempts = append(attempts, models.RedemptionAttempt{
			ID:               r.ID,
			TicketID:         r.TicketID,
			ValidationResult: r.ValidationResult,
			FailureReason:    r.FailureReason,
			ValidationSource: r.ValidationSource,
			CreatedAt:        parseTime(r.CreatedAt),
		})
	}
	return attempts, nil
}

// TicketTypeByID resolves an active catalog entry.
func (s *Store) TicketTypeByID(ctx context.Context, typeID string) (*models.TicketType, error) {
	var rec struct {
		ID           int64  `db:"id"`
		TypeID       string `db:"type_id"`
		EventID      string `db:"event_id"`
		Name         string `db:"name"`
		PriceCents   int64  `db:"price_cents"`
		MaxScanCount int64  `db:"max_scan_count"`
		Status       string `db:"status"`
	}
	err := s.db.NewQuery(`SELECT id, type_id, event_id, name, price_cents, max_scan_count, status
		FROM ticket_types WHERE type_id = {:id} AND status = 'active'`).
		Bind(dbx.Params{"id": typeID}).
		WithContext(ctx).
		One(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.TicketType{
		ID:           rec.ID,
		TypeID:       rec.TypeID,
		EventID:      rec.EventID,
		Name:         rec.Name,
		PriceCents:   rec.PriceCents,
		MaxScanCount: rec.MaxScanCount,
		Status:       rec.Status,
	}, nil
}

// FindRecentByFingerprint returns the newest pending-or-completed
// transaction for the fingerprint created at or after since, or nil when the
// only matches are stale.
func (s *Store) FindRecentByFingerprint(ctx context.Context, fingerprint string, since time.Time) (*models.Transaction, error) {
	var rec transactionRecord
	err := s.db.NewQuery(`SELECT * FROM transactions
		WHERE cart_fingerprint = {:fp}
		  AND created_at >= {:since}
		  AND payment_status IN ('pending', 'completed')
		ORDER BY created_at DESC
		LIMIT 1`).
		Bind(dbx.Params{"fp": fingerprint, "since": fmtTime(since)}).
		WithContext(ctx).
		One(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// TransactionByExternalID resolves the opaque external id.
func (s *Store) TransactionByExternalID(ctx context.Context, ref string) (*models.Transaction, error) {
	var rec transactionRecord
	err := s.db.NewQuery(`SELECT * FROM transactions WHERE transaction_id = {:ref}`).
		Bind(dbx.Params{"ref": ref}).
		WithContext(ctx).
		One(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// TicketsForTransaction returns the tickets owned by a transaction in
// insertion order.
func (s *Store) TicketsForTransaction(ctx context.Context, transactionID int64) ([]*models.Ticket, error) {
	var recs []ticketRecord
	err := s.db.NewQuery(`SELECT * FROM tickets WHERE transaction_id = {:id} ORDER BY id`).
		Bind(dbx.Params{"id": transactionID}).
		WithContext(ctx).
		All(&recs)
	if err != nil {
		return nil, err
	}
	tickets := make([]*models.Ticket, 0, len(recs))
	for i := range recs {
		tickets = append(tickets, recs[i].toModel())
	}
	return tickets, nil
}

// CreatePending inserts the transaction and its tickets in one store
// transaction. A UNIQUE violation on (cart_fingerprint, dedup_bucket) means a
// concurrent identical submission won; callers fall back to the
// existing-read path.
func (s *Store) CreatePending(ctx context.Context, txn *models.Transaction, tickets []*models.Ticket) error {
	return s.runTx(func(b dbx.Builder) error {
		res, err := b.Insert("transactions", dbx.Params{
			"transaction_id":    txn.TransactionID,
			"payment_status":    string(txn.PaymentStatus),
			"status":            txn.Status,
			"payment_processor": txn.PaymentProcessor,
			"stripe_session_id": txn.StripeSessionID,
			"paypal_order_id":   txn.PayPalOrderID,
			"paypal_capture_id": txn.PayPalCaptureID,
			"customer_email":    txn.CustomerEmail,
			"customer_name":     txn.CustomerName,
			"customer_phone":    txn.CustomerPhone,
			"cart_fingerprint":  txn.CartFingerprint,
			"dedup_bucket":      txn.CreatedAt.Unix() / dedupBucketSeconds,
			"total_cents":       txn.TotalCents,
			"created_at":        fmtTime(txn.CreatedAt),
		}).WithContext(ctx).Execute()
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		txn.ID = id

		for _, t := range tickets {
			t.TransactionID = id
			tres, err := b.Insert("tickets", dbx.Params{
				"ticket_id":           t.TicketID,
				"transaction_id":      id,
				"event_id":            t.EventID,
				"ticket_type":         t.TicketType,
				"price_cents":         t.PriceCents,
				"attendee_first_name": t.AttendeeFirstName,
				"attendee_last_name":  t.AttendeeLastName,
				"attendee_email":      t.AttendeeEmail,
				"status":              string(t.Status),
				"registration_status": string(t.RegistrationStatus),
				"validation_code":     t.ValidationCode,
				"scan_count":          t.ScanCount,
				"max_scan_count":      t.MaxScanCount,
				"created_at":          fmtTime(t.CreatedAt),
			}).WithContext(ctx).Execute()
			if err != nil {
				return err
			}
			if t.ID, err = tres.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompleteTransaction flips a pending transaction to completed and promotes
// its pending_payment tickets, all in one store transaction. The conditional
// UPDATE makes redelivered captures a no-op: completed == false with a nil
// error means the transaction was not pending anymore.
func (s *Store) CompleteTransaction(ctx context.Context, ref, processor string, refs models.ProcessorRefs, now time.Time) (bool, error) {
	var affected int64
	err := s.runTx(func(b dbx.Builder) error {
		res, err := b.NewQuery(`UPDATE transactions
			SET payment_status = 'completed',
			    status = 'completed',
			    completed_at = {:now},
			    payment_processor = {:proc},
			    stripe_session_id = CASE WHEN {:ss} != '' THEN {:ss} ELSE stripe_session_id END,
			    paypal_order_id   = CASE WHEN {:po} != '' THEN {:po} ELSE paypal_order_id END,
			    paypal_capture_id = CASE WHEN {:pc} != '' THEN {:pc} ELSE paypal_capture_id END
			WHERE transaction_id = {:ref}
			  AND payment_status = 'pending'`).
			Bind(dbx.Params{
				"ref":  ref,
				"proc": processor,
				"now":  fmtTime(now),
				"ss":   refs.StripeSessionID,
				"po":   refs.PayPalOrderID,
				"pc":   refs.PayPalCaptureID,
			}).
			WithContext(ctx).
			Execute()
		if err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		_, err = b.NewQuery(`UPDATE tickets
			SET registration_status = 'completed',
			    registered_at = {:now}
			WHERE transaction_id = (SELECT id FROM transactions WHERE transaction_id = {:ref})
			  AND registration_status = 'pending_payment'`).
			Bind(dbx.Params{"ref": ref, "now": fmtTime(now)}).
			WithContext(ctx).
			Execute()
		return err
	})
	return affected == 1, err
}

// RecordProcessorSession attaches a provider session/order reference to a
// still-pending transaction (processor switching keeps reusing the same
// row).
func (s *Store) RecordProcessorSession(ctx context.Context, ref, processor, sessionRef string) (bool, error) {
	var column string
	switch processor {
	case "stripe":
		column = "stripe_session_id"
	case "paypal":
		column = "paypal_order_id"
	default:
		column = "payment_processor" // comp and friends carry no session ref
	}

	q := `UPDATE transactions SET payment_processor = {:proc}, ` + column + ` = {:sref}
		WHERE transaction_id = {:ref} AND payment_status = 'pending'`
	if column == "payment_processor" {
		q = `UPDATE transactions SET payment_processor = {:proc}
			WHERE transaction_id = {:ref} AND payment_status = 'pending'`
	}

	res, err := s.db.NewQuery(q).
		Bind(dbx.Params{"proc": processor, "sref": sessionRef, "ref": ref}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateRegistrationStatus conditionally moves a ticket between registration
// lifecycle states. Re-completing an expired registration restamps
// registered_at.
func (s *Store) UpdateRegistrationStatus(ctx context.Context, ticketID string, from, to models.RegistrationStatus, now time.Time) (bool, error) {
	res, err := s.db.NewQuery(`UPDATE tickets
		SET registration_status = {:to},
		    registered_at = CASE WHEN {:to} = 'completed' THEN {:now} ELSE registered_at END
		WHERE ticket_id = {:id} AND registration_status = {:from}`).
		Bind(dbx.Params{"id": ticketID, "from": string(from), "to": string(to), "now": fmtTime(now)}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateTicketStatus conditionally moves a ticket between lifecycle states.
// The WHERE clause keeps the transition atomic against concurrent scans.
func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, from, to models.TicketStatus) (bool, error) {
	res, err := s.db.NewQuery(`UPDATE tickets SET status = {:to}
		WHERE ticket_id = {:id} AND status = {:from}`).
		Bind(dbx.Params{"id": ticketID, "from": string(from), "to": string(to)}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
