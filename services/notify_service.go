package services

import (
	"time"

	pubnub "github.com/pubnub/go"
)

// NotifyService pushes realtime order events to the storefront so the
// success page flips without polling. Publishing is fire-and-forget.
type NotifyService struct {
	pubnub  *pubnub.PubNub
	channel string
}

func NewNotifyService(pn *pubnub.PubNub, channel string) *NotifyService {
	return &NotifyService{pubnub: pn, channel: channel}
}

// TransactionCompleted announces a completed payment.
func (s *NotifyService) TransactionCompleted(transactionRef, processor string) {
	if s == nil || s.pubnub == nil {
		return
	}
	go s.pubnub.Publish().
		Channel(s.channel).
		Message(map[string]any{
			"type":           "transaction_completed",
			"transaction_id": transactionRef,
			"processor":      processor,
			"completed_at":   time.Now().Unix(),
		}).
		Execute()
}

// TicketScanned announces a successful door scan to the staff dashboard.
func (s *NotifyService) TicketScanned(ticketID string, scanCount, maxScans int64) {
	if s == nil || s.pubnub == nil {
		return
	}
	go s.pubnub.Publish().
		Channel(s.channel).
		Message(map[string]any{
			"type":       "ticket_scanned",
			"ticket_id":  ticketID,
			"scan_count": scanCount,
			"max_scans":  maxScans,
		}).
		Execute()
}
