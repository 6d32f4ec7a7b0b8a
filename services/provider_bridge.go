package services

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"alocubano-ticketing/internal/payments"
	"alocubano-ticketing/models"
)

// providerNotification is the capture message some regional processors push
// over their PubNub channel instead of (or in addition to) an HTTP webhook.
type providerNotification struct {
	TransactionID string `json:"transaction_id"`
	Processor     string `json:"processor"`
	Status        string `json:"status"`
	SessionRef    string `json:"session_ref"`
	CaptureRef    string `json:"capture_ref"`
}

// ProviderBridge subscribes to a processor's notification channel and feeds
// captures into the order manager. Redelivered messages are harmless because
// payment completion is idempotent.
type ProviderBridge struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	orders   *OrderService
	channel  string
}

func NewProviderBridge(cfg *pubnub.Config, orders *OrderService, channel string) *ProviderBridge {
	return &ProviderBridge{
		pn:       pubnub.NewPubNub(cfg),
		listener: pubnub.NewListener(),
		orders:   orders,
		channel:  channel,
	}
}

// Start subscribes and processes notifications until ctx is cancelled.
func (b *ProviderBridge) Start(ctx context.Context) {
	b.pn.AddListener(b.listener)
	b.pn.Subscribe().Channels([]string{b.channel}).Execute()

	go b.process(ctx)
}

func (b *ProviderBridge) Stop() {
	b.pn.Unsubscribe().Channels([]string{b.channel}).Execute()
}

func (b *ProviderBridge) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case st := <-b.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("provider bridge connected")
			case pubnub.PNReconnectedCategory:
				log.Println("provider bridge reconnected")
			case pubnub.PNDisconnectedCategory:
				log.Println("provider bridge disconnected")
			case pubnub.PNAccessDeniedCategory:
				log.Println("provider bridge access denied")
			}

		case message := <-b.listener.Message:
			go b.handle(ctx, message)
		}
	}
}

func (b *ProviderBridge) handle(ctx context.Context, message *pubnub.PNMessage) {
	raw, err := json.Marshal(message.Message)
	if err != nil {
		slog.Warn("provider notification not serializable", "err", err)
		return
	}
	var n providerNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		slog.Warn("provider notification malformed", "err", err)
		return
	}
	if n.Status != "completed" || n.TransactionID == "" {
		return
	}

	processor := payments.Processor(n.Processor)
	refs := models.ProcessorRefs{}
	switch processor {
	case payments.ProcessorStripe:
		refs.StripeSessionID = n.SessionRef
	case payments.ProcessorPayPal:
		refs.PayPalOrderID = n.SessionRef
		refs.PayPalCaptureID = n.CaptureRef
	}

	if err := b.orders.CompletePayment(ctx, n.TransactionID, processor, refs); err != nil {
		slog.Error("provider capture failed", "transaction", n.TransactionID, "err", err)
	}
}
