package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alocubano-ticketing/internal/payments"
	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/models"
	"alocubano-ticketing/security"
	"alocubano-ticketing/store"
)

// redeemFixture creates one completed, scannable ticket and returns its
// signed redemption token.
func redeemFixture(t *testing.T) (*RedemptionService, *store.Store, *models.Ticket, string) {
	t.Helper()

	st := newTestStore(t)
	signer := newTestSigner()
	orders := NewOrderService(st, newTestGateway(), newTestConfig(), nil)
	svc := NewRedemptionService(st, signer, nil)

	txn, tickets, _, err := orders.CreatePending(context.Background(), checkoutRequest(1))
	require.NoError(t, err)
	require.NoError(t, orders.CompletePayment(context.Background(), txn.TransactionID, payments.ProcessorStripe, models.ProcessorRefs{}))

	token, err := signer.SignRedemptionToken(tickets[0].ValidationCode)
	require.NoError(t, err)
	return svc, st, tickets[0], token
}

func TestValidateSuccess(t *testing.T) {
	svc, _, ticket, token := redeemFixture(t)

	snapshot, err := svc.Validate(context.Background(), token, false)
	require.NoError(t, err)

	assert.Equal(t, ticket.TicketID, snapshot.ID)
	assert.Equal(t, "weekender-2026-full", snapshot.Type)
	assert.Equal(t, "Maria Gonzalez", snapshot.AttendeeName)
	assert.Equal(t, int64(1), snapshot.ScanCount)
	assert.Equal(t, int64(10), snapshot.MaxScans)
}

func TestValidateInvalidToken(t *testing.T) {
	svc, _, _, _ := redeemFixture(t)

	for _, token := range []string{"", "garbage", "eyJhbGciOiJIUzI1NiJ9.e30.bad"} {
		_, err := svc.Validate(context.Background(), token, false)
		assert.ErrorIs(t, err, status.ErrInvalidCredential)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	st := newTestStore(t)
	svc := NewRedemptionService(st, newTestSigner(), nil)

	// A signer with a negative TTL issues tokens that are already expired.
	expired := security.NewTokenSigner(testSecret, -time.Minute)
	token, err := expired.SignRedemptionToken("some-code")
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), token, false)
	assert.ErrorIs(t, err, status.ErrInvalidCredential)
}

func TestValidateUnknownCode(t *testing.T) {
	svc, _, _, _ := redeemFixture(t)

	token, err := newTestSigner().SignRedemptionToken("NO-SUCH-CODE")
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), token, false)
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func TestValidatePreviewDoesNotMutate(t *testing.T) {
	svc, st, ticket, token := redeemFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		snapshot, err := svc.Validate(ctx, token, true)
		require.NoError(t, err)
		assert.Equal(t, int64(0), snapshot.ScanCount)
	}

	current, err := st.TicketByValidationCode(ctx, ticket.ValidationCode)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.ScanCount)
	assert.Nil(t, current.FirstScannedAt)

	// Preview leaves no audit rows either.
	attempts, err := st.ScanLog(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestValidateCancelledTicket(t *testing.T) {
	svc, st, ticket, token := redeemFixture(t)
	ctx := context.Background()

	_, err := st.UpdateTicketStatus(ctx, ticket.TicketID, models.TicketValid, models.TicketCancelled)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token, false)
	require.Error(t, err)

	var stateErr *status.TicketStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Contains(t, err.Error(), "cancelled")

	// No increment happened.
	current, err := st.TicketByValidationCode(ctx, ticket.ValidationCode)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.ScanCount)

	// The rejection was audited.
	attempts, err := st.ScanLog(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.ValidationFailed, attempts[0].ValidationResult)
}

func TestValidateUnpaidTicket(t *testing.T) {
	st := newTestStore(t)
	signer := newTestSigner()
	orders := NewOrderService(st, newTestGateway(), newTestConfig(), nil)
	svc := NewRedemptionService(st, signer, nil)

	_, tickets, _, err := orders.CreatePending(context.Background(), checkoutRequest(1))
	require.NoError(t, err)

	token, err := signer.SignRedemptionToken(tickets[0].ValidationCode)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), token, false)
	assert.ErrorIs(t, err, status.ErrNotRegistered)
}

func TestValidateScanCeiling(t *testing.T) {
	svc, st, ticket, token := redeemFixture(t)
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		snapshot, err := svc.Validate(ctx, token, false)
		require.NoError(t, err)
		assert.Equal(t, i, snapshot.ScanCount)
	}

	_, err := svc.Validate(ctx, token, false)
	assert.ErrorIs(t, err, status.ErrScanLimitExceeded)

	current, err := st.TicketByValidationCode(ctx, ticket.ValidationCode)
	require.NoError(t, err)
	assert.Equal(t, int64(10), current.ScanCount)

	// 10 successes, 1 failure in the audit trail.
	attempts, err := st.ScanLog(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 11)
	assert.Equal(t, models.ValidationFailed, attempts[0].ValidationResult)
}

func TestValidateConcurrentNearLimit(t *testing.T) {
	svc, st, ticket, token := redeemFixture(t)
	ctx := context.Background()

	// Walk the ticket to 9 of 10 through the real path.
	for i := 0; i < 9; i++ {
		_, err := svc.Validate(ctx, token, false)
		require.NoError(t, err)
	}

	// Two truly concurrent scans race for the last slot.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, token, false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, limitHits := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case err == status.ErrScanLimitExceeded:
			limitHits++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, limitHits)

	current, err := st.TicketByValidationCode(ctx, ticket.ValidationCode)
	require.NoError(t, err)
	assert.Equal(t, int64(10), current.ScanCount)

	// One more scan keeps failing without moving the count.
	_, err = svc.Validate(ctx, token, false)
	assert.ErrorIs(t, err, status.ErrScanLimitExceeded)

	current, err = st.TicketByValidationCode(ctx, ticket.ValidationCode)
	require.NoError(t, err)
	assert.Equal(t, int64(10), current.ScanCount)
}

func TestValidateConcurrentMinNK(t *testing.T) {
	svc, st, ticket, token := redeemFixture(t)
	ctx := context.Background()

	// 3 of 10 used, 15 workers: exactly 7 must win.
	for i := 0; i < 3; i++ {
		_, err := svc.Validate(ctx, token, false)
		require.NoError(t, err)
	}

	const workers = 15
	type outcome struct {
		snapshot *models.TicketSnapshot
		err      error
	}
	var wg sync.WaitGroup
	outcomes := make(chan outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := svc.Validate(ctx, token, false)
			outcomes <- outcome{snapshot, err}
		}()
	}
	wg.Wait()
	close(outcomes)

	// Every winner reports the count its own increment produced, so the
	// seven successes carry 4 through 10 with no repeats even while the
	// row keeps moving underneath them.
	reported := map[int64]bool{}
	for out := range outcomes {
		if out.err == nil {
			assert.False(t, reported[out.snapshot.ScanCount])
			reported[out.snapshot.ScanCount] = true
		} else {
			assert.ErrorIs(t, out.err, status.ErrScanLimitExceeded)
		}
	}
	assert.Len(t, reported, 7)
	for c := int64(4); c <= 10; c++ {
		assert.True(t, reported[c])
	}

	current, err := st.TicketByValidationCode(ctx, ticket.ValidationCode)
	require.NoError(t, err)
	assert.Equal(t, int64(10), current.ScanCount)
}

func TestCancelTicketTransitions(t *testing.T) {
	svc, _, ticket, _ := redeemFixture(t)
	ctx := context.Background()

	updated, err := svc.CancelTicket(ctx, ticket.TicketID, models.TicketRefunded)
	require.NoError(t, err)
	assert.Equal(t, models.TicketRefunded, updated.Status)

	// Refunded is terminal.
	_, err = svc.CancelTicket(ctx, ticket.TicketID, models.TicketValid)
	var stateErr *status.TicketStateError
	assert.ErrorAs(t, err, &stateErr)
}
