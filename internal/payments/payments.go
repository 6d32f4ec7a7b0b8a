// Package payments names the payment processors the order manager
// reconciles against and hosts the in-house providers. Stripe and PayPal
// checkout sessions are created by the storefront against the providers'
// hosted flows; this process only records their references and consumes
// their capture notifications.
package payments

import (
	"context"
	"fmt"

	"alocubano-ticketing/utils"
)

type Processor string

const (
	ProcessorStripe Processor = "stripe"
	ProcessorPayPal Processor = "paypal"
	ProcessorComp   Processor = "comp"
)

func (p Processor) Valid() bool {
	switch p {
	case ProcessorStripe, ProcessorPayPal, ProcessorComp:
		return true
	}
	return false
}

// SessionRequest describes the pending transaction a provider session is
// being opened for.
type SessionRequest struct {
	TransactionRef string
	AmountCents    int64
	CustomerEmail  string
	Description    string
}

// Session is a provider-side checkout reference attached to a pending
// transaction.
type Session struct {
	Processor  Processor `json:"processor"`
	SessionRef string    `json:"sessionRef"`
}

// Provider opens processor-side sessions for pending transactions.
type Provider interface {
	Processor() Processor
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// CompProvider issues complimentary "captures" for zero-amount transactions
// (artist passes, volunteer comps). It is the only provider whose whole flow
// lives in-process.
type CompProvider struct{}

func (CompProvider) Processor() Processor { return ProcessorComp }

func (CompProvider) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	if req.AmountCents != 0 {
		return nil, fmt.Errorf("comp sessions require a zero amount, got %d cents", req.AmountCents)
	}
	code, err := utils.GenerateCode(8)
	if err != nil {
		return nil, err
	}
	return &Session{
		Processor:  ProcessorComp,
		SessionRef: "comp_" + code,
	}, nil
}

// NewProvider returns the in-process provider for p, or an error for
// processors whose sessions are opened externally.
func NewProvider(p Processor) (Provider, error) {
	switch p {
	case ProcessorComp:
		return CompProvider{}, nil
	case ProcessorStripe, ProcessorPayPal:
		return nil, fmt.Errorf("%s sessions are created by the hosted checkout, not in-process", p)
	default:
		return nil, fmt.Errorf("unknown payment processor %q", p)
	}
}
