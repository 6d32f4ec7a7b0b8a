package status

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential is returned for malformed, unsigned or expired
	// redemption tokens. No store access happens before this check.
	ErrInvalidCredential = errors.New("credential: invalid or expired validation token")

	ErrTicketNotFound      = errors.New("ticket: ticket not found")
	ErrTicketTypeNotFound  = errors.New("ticket type: ticket type not found")
	ErrTransactionNotFound = errors.New("transaction: transaction not found")

	// ErrScanLimitExceeded is a business-rule rejection, not a server fault.
	ErrScanLimitExceeded = errors.New("ticket: scan limit exceeded")

	// ErrNotRegistered rejects a door scan against a ticket whose purchase
	// never completed.
	ErrNotRegistered = errors.New("ticket: registration payment has not been completed")

	// ErrRateLimited reports an exhausted fixed window; callers carry the
	// retry-after seconds alongside it.
	ErrRateLimited = errors.New("rate limit: too many requests")

	// ErrStore hides the underlying persistence failure from clients; the
	// cause is logged server-side only.
	ErrStore = errors.New("store: unexpected storage failure")
)

// TicketStateError rejects a redemption because of the ticket's lifecycle
// state (cancelled, refunded, transferred, not paid).
type TicketStateError struct {
	State string
}

func (e *TicketStateError) Error() string {
	return fmt.Sprintf("ticket: ticket has been %s", e.State)
}

// ValidationError reports the first request field that failed the validation
// gateway. The field name is part of the observable contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("Invalid registration data: %s %s", e.Field, e.Reason)
}

// CountMismatchError rejects a checkout whose registration list does not
// cover every seat in the cart.
type CountMismatchError struct {
	Expected int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("Registration count mismatch: expected %d registrations, got %d", e.Expected, e.Got)
}
