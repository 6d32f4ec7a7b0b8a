package validators

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
)

func validRequest() *models.CheckoutRequest {
	return &models.CheckoutRequest{
		CartItems: []models.CartItem{{TicketType: "weekender-2026-full", Quantity: 1}},
		CustomerInfo: models.CustomerInfo{
			FirstName: "Maria",
			LastName:  "Gonzalez",
			Email:     "maria@example.com",
			Phone:     "+1 303 555 0188",
			Message:   "See you on the dance floor",
		},
		Registrations: []models.Registration{
			{TicketType: "weekender-2026-full", FirstName: "Maria", LastName: "Gonzalez", Email: "maria@example.com"},
		},
	}
}

func TestValidateCheckoutAccepts(t *testing.T) {
	g := NewGateway(nil, false, 0)
	assert.NoError(t, g.ValidateCheckout(context.Background(), validRequest()))
}

func TestValidateCheckoutRejections(t *testing.T) {
	g := NewGateway(nil, false, 0)

	tests := []struct {
		name      string
		mutate    func(*models.CheckoutRequest)
		wantField string
	}{
		{"empty first name", func(r *models.CheckoutRequest) { r.CustomerInfo.FirstName = "  " }, "customerInfo.firstName"},
		{"overlong name", func(r *models.CheckoutRequest) { r.CustomerInfo.LastName = strings.Repeat("x", 101) }, "customerInfo.lastName"},
		{"spam token", func(r *models.CheckoutRequest) { r.CustomerInfo.FirstName = "Test" }, "customerInfo.firstName"},
		{"keyboard mash", func(r *models.CheckoutRequest) { r.CustomerInfo.FirstName = "asdf" }, "customerInfo.firstName"},
		{"digit run", func(r *models.CheckoutRequest) { r.CustomerInfo.LastName = "abc12345" }, "customerInfo.lastName"},
		{"sql quote", func(r *models.CheckoutRequest) { r.CustomerInfo.FirstName = "Robert'); DROP" }, "customerInfo.firstName"},
		{"sql comment", func(r *models.CheckoutRequest) { r.CustomerInfo.LastName = "smith--" }, "customerInfo.lastName"},
		{"bad email", func(r *models.CheckoutRequest) { r.CustomerInfo.Email = "not an email" }, "customerInfo.email"},
		{"disposable domain", func(r *models.CheckoutRequest) { r.CustomerInfo.Email = "x@mailinator.com" }, "customerInfo.email"},
		{"bad phone", func(r *models.CheckoutRequest) { r.CustomerInfo.Phone = "call me" }, "customerInfo.phone"},
		{"overlong message", func(r *models.CheckoutRequest) { r.CustomerInfo.Message = strings.Repeat("a", 1001) }, "customerInfo.message"},
		{"registration name", func(r *models.CheckoutRequest) { r.Registrations[0].FirstName = "" }, "registrations[0].firstName"},
		{"registration email", func(r *models.CheckoutRequest) { r.Registrations[0].Email = "x@yopmail.com" }, "registrations[0].email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := g.ValidateCheckout(context.Background(), req)
			require.Error(t, err)

			var verr *status.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, err.Error(), "Invalid registration data")
		})
	}
}

func TestValidateCheckoutFirstFailureWins(t *testing.T) {
	g := NewGateway(nil, false, 0)

	req := validRequest()
	req.CustomerInfo.Email = "broken"
	req.Registrations[0].FirstName = "asdf"

	err := g.ValidateCheckout(context.Background(), req)
	require.Error(t, err)

	// The customer block is checked before any registration.
	var verr *status.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "customerInfo.email", verr.Field)
}

func TestValidateCheckoutOptionalFields(t *testing.T) {
	g := NewGateway(nil, false, 0)

	req := validRequest()
	req.CustomerInfo.Phone = ""
	req.CustomerInfo.Message = ""
	assert.NoError(t, g.ValidateCheckout(context.Background(), req))
}

type fakeResolver struct {
	err   error
	calls int
}

func (r *fakeResolver) LookupMX(_ context.Context, _ string) error {
	r.calls++
	return r.err
}

func TestMXCheckRejectsDeadDomain(t *testing.T) {
	resolver := &fakeResolver{err: &net.DNSError{Err: "no such host", IsNotFound: true}}
	g := NewGateway(resolver, true, time.Second)

	err := g.ValidateCheckout(context.Background(), validRequest())
	require.Error(t, err)

	var verr *status.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "customerInfo.email", verr.Field)
	assert.Equal(t, 1, resolver.calls)
}

func TestMXCheckDegradesOnTransientFailure(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("read udp: i/o timeout")}
	g := NewGateway(resolver, true, time.Second)

	// DNS flaking must not block a paying customer.
	assert.NoError(t, g.ValidateCheckout(context.Background(), validRequest()))
}

func TestMXCheckDisabled(t *testing.T) {
	resolver := &fakeResolver{err: &net.DNSError{Err: "no such host", IsNotFound: true}}
	g := NewGateway(resolver, false, 0)

	assert.NoError(t, g.ValidateCheckout(context.Background(), validRequest()))
	assert.Zero(t, resolver.calls)
}
