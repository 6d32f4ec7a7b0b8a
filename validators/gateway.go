package validators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
	"alocubano-ticketing/utils"
)

const (
	maxNameLength    = 100
	maxMessageLength = 1000
)

// spamTokens are throwaway values people type to get past a form.
var spamTokens = map[string]struct{}{
	"test":    {},
	"testing": {},
	"asdf":    {},
	"asdfgh":  {},
	"qwerty":  {},
	"aaaa":    {},
	"xxxx":    {},
	"none":    {},
	"na":      {},
}

// disposableDomains are throwaway inbox providers; mail sent there never
// reaches a real attendee.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"throwaway.email":   {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"sharklasers.com":   {},
	"getnada.com":       {},
	"dispostable.com":   {},
	"maildrop.cc":       {},
}

var (
	digitRunPattern = regexp.MustCompile(`[0-9]{3,}`)
	sqlMetaPattern  = regexp.MustCompile(`(?i)(['";\\]|--|/\*|\*/|\b(select|insert|update|delete|drop|union|exec)\b)`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9()\-. ]{7,20}$`)
)

// DomainResolver checks whether an email domain can receive mail. Injected
// so tests and offline environments can disable the network lookup.
type DomainResolver interface {
	LookupMX(ctx context.Context, domain string) error
}

// NetResolver backs the domain check with real DNS.
type NetResolver struct {
	resolver net.Resolver
}

func (r *NetResolver) LookupMX(ctx context.Context, domain string) error {
	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &net.DNSError{Err: "no MX records", Name: domain, IsNotFound: true}
	}
	return nil
}

// Gateway runs the field-level checks the order manager applies before any
// write. All checks are pure except the optional MX lookup, which sits
// behind a circuit breaker so a dead resolver degrades to syntax-only
// checking instead of failing checkouts.
type Gateway struct {
	resolver  DomainResolver
	breaker   *utils.CircuitBreaker
	mxEnabled bool
	mxTimeout time.Duration
}

func NewGateway(resolver DomainResolver, mxEnabled bool, mxTimeout time.Duration) *Gateway {
	return &Gateway{
		resolver:  resolver,
		breaker:   utils.NewCircuitBreaker("mx-lookup"),
		mxEnabled: mxEnabled && resolver != nil,
		mxTimeout: mxTimeout,
	}
}

// ValidateCheckout checks the customer block first, then each registration
// in order. The first failing field wins; the field order is fixed so the
// reported field is deterministic.
func (g *Gateway) ValidateCheckout(ctx context.Context, req *models.CheckoutRequest) error {
	if err := g.checkName("customerInfo.firstName", req.CustomerInfo.FirstName); err != nil {
		return err
	}
	if err := g.checkName("customerInfo.lastName", req.CustomerInfo.LastName); err != nil {
		return err
	}
	if err := g.checkEmail(ctx, "customerInfo.email", req.CustomerInfo.Email); err != nil {
		return err
	}
	if err := g.checkPhone("customerInfo.phone", req.CustomerInfo.Phone); err != nil {
		return err
	}
	if err := g.checkMessage("customerInfo.message", req.CustomerInfo.Message); err != nil {
		return err
	}

	for i, reg := range req.Registrations {
		if err := g.checkName(fmt.Sprintf("registrations[%d].firstName", i), reg.FirstName); err != nil {
			return err
		}
		if err := g.checkName(fmt.Sprintf("registrations[%d].lastName", i), reg.LastName); err != nil {
			return err
		}
		if err := g.checkEmail(ctx, fmt.Sprintf("registrations[%d].email", i), reg.Email); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) checkName(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return &status.ValidationError{Field: field, Reason: "is required"}
	}
	if len(value) > maxNameLength {
		return &status.ValidationError{Field: field, Reason: "is too long"}
	}
	lower := strings.ToLower(value)
	if _, spam := spamTokens[lower]; spam {
		return &status.ValidationError{Field: field, Reason: "looks like placeholder text"}
	}
	if digitRunPattern.MatchString(value) {
		return &status.ValidationError{Field: field, Reason: "contains digit sequences"}
	}
	if sqlMetaPattern.MatchString(value) {
		return &status.ValidationError{Field: field, Reason: "contains invalid characters"}
	}
	return nil
}

func (g *Gateway) checkEmail(ctx context.Context, field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return &status.ValidationError{Field: field, Reason: "is required"}
	}

	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return &status.ValidationError{Field: field, Reason: "is not a valid email address"}
	}

	at := strings.LastIndex(value, "@")
	domain := strings.ToLower(value[at+1:])
	if _, disposable := disposableDomains[domain]; disposable {
		return &status.ValidationError{Field: field, Reason: "uses a disposable email domain"}
	}

	if !g.mxEnabled {
		return nil
	}

	err = g.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.mxTimeout)
		defer cancel()
		return g.resolver.LookupMX(ctx, domain)
	})
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return &status.ValidationError{Field: field, Reason: "email domain cannot receive mail"}
	}

	// Breaker open, resolver timeout, transient DNS trouble: our problem,
	// not the customer's.
	slog.Warn("skipping MX check", "domain", domain, "err", err)
	return nil
}

func (g *Gateway) checkPhone(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil // phone is optional
	}
	if !phonePattern.MatchString(value) {
		return &status.ValidationError{Field: field, Reason: "is not a valid phone number"}
	}
	return nil
}

func (g *Gateway) checkMessage(field, value string) error {
	if len(value) > maxMessageLength {
		return &status.ValidationError{Field: field, Reason: "exceeds the maximum length"}
	}
	if value != "" && sqlMetaPattern.MatchString(value) {
		return &status.ValidationError{Field: field, Reason: "contains invalid characters"}
	}
	return nil
}
