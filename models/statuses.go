package models

// PaymentStatus is the transaction payment lifecycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// TicketStatus is the ticket lifecycle. Transitions outside the table below
// are rejected instead of relying on call-site discipline.
type TicketStatus string

const (
	TicketValid       TicketStatus = "valid"
	TicketUsed        TicketStatus = "used"
	TicketCancelled   TicketStatus = "cancelled"
	TicketRefunded    TicketStatus = "refunded"
	TicketTransferred TicketStatus = "transferred"
)

// RegistrationStatus is the attendee registration lifecycle, independent of
// the ticket lifecycle.
type RegistrationStatus string

const (
	RegistrationPendingPayment RegistrationStatus = "pending_payment"
	RegistrationCompleted      RegistrationStatus = "completed"
	RegistrationExpired        RegistrationStatus = "expired"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketValid:       {TicketUsed, TicketCancelled, TicketRefunded, TicketTransferred},
	TicketUsed:        {TicketCancelled, TicketRefunded},
	TicketTransferred: {TicketCancelled},
	TicketCancelled:   {},
	TicketRefunded:    {},
}

var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationPendingPayment: {RegistrationCompleted, RegistrationExpired},
	RegistrationCompleted:      {},
	RegistrationExpired:        {RegistrationCompleted},
}

// CanTransitionTo reports whether the ticket lifecycle allows moving from s
// to next.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Scannable reports whether a ticket in this state may be redeemed at the
// door. The scan ceiling, not the status, bounds repeat scans.
func (s TicketStatus) Scannable() bool {
	return s == TicketValid || s == TicketUsed
}

func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	for _, allowed := range registrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
