package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	pubnubv7 "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"alocubano-ticketing/config"
	"alocubano-ticketing/handlers"
	_ "alocubano-ticketing/migrations"
	"alocubano-ticketing/security"
	"alocubano-ticketing/services"
	"alocubano-ticketing/store"
	"alocubano-ticketing/utils"
	"alocubano-ticketing/validators"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.Load()

	// Rate-limit counters: in-process by default, Redis when instances
	// behind a load balancer need to share limits.
	var counterStore security.CounterStore
	var redisClient *redis.Client
	if cfg.RateLimitBackend == "redis" {
		redisClient = utils.NewRedisClient(cfg.RedisURL)
		defer redisClient.Close()
		counterStore = security.NewRedisStore(redisClient)
	} else {
		counterStore = security.NewMemoryStore()
	}
	limiter := security.NewRateLimiter(counterStore, cfg.RateLimitMax, cfg.RateLimitWindow)

	signer := security.NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL)

	var notify *services.NotifyService
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pnConfig.UUID = cfg.PubNubUUID
		notify = services.NewNotifyService(pubnub.NewPubNub(pnConfig), cfg.NotifyChannel)
	}

	gateway := validators.NewGateway(&validators.NetResolver{}, cfg.EnableMXCheck, cfg.MXTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// The store has to wait for serve time: migrations have run and
		// app.DB() is live.
		runTx := func(fn func(b dbx.Builder) error) error {
			return app.RunInTransaction(func(txApp core.App) error {
				return fn(txApp.DB())
			})
		}
		st := store.New(app.DB(), runTx)

		redemptionService := services.NewRedemptionService(st, signer, notify)
		orderService := services.NewOrderService(st, gateway, cfg, notify)

		if cfg.PubNubSubscribeKey != "" {
			pnCfg := pubnubv7.NewConfigWithUserId(pubnubv7.UserId(cfg.PubNubUUID))
			pnCfg.SubscribeKey = cfg.PubNubSubscribeKey
			pnCfg.SecretKey = cfg.PubNubSecretKey
			bridge := services.NewProviderBridge(pnCfg, orderService, cfg.ProviderChannel)
			bridge.Start(ctx)
			slog.Info("provider bridge started", "channel", cfg.ProviderChannel)
		}

		ticketHandler := handlers.NewTicketHandler(redemptionService)
		checkoutHandler := handlers.NewCheckoutHandler(orderService)
		webhookHandler := handlers.NewWebhookHandler(orderService, cfg.WebhookSecret)
		adminHandler := handlers.NewAdminHandler(redemptionService, orderService, signer)

		// Ticket redemption
		e.Router.POST("/api/v1/tickets/validate", ticketHandler.Validate).BindFunc(limiter.Intercept)

		// Checkout
		e.Router.POST("/api/v1/checkout/create-pending-transaction", checkoutHandler.CreatePendingTransaction).BindFunc(limiter.Intercept)
		e.Router.POST("/api/v1/checkout/payment-session", checkoutHandler.AttachPaymentSession).BindFunc(limiter.Intercept)

		// Provider webhooks (not client-facing, not rate limited)
		e.Router.POST("/api/v1/webhooks/stripe", webhookHandler.Stripe)
		e.Router.POST("/api/v1/webhooks/paypal", webhookHandler.PayPal)

		// Staff surface
		e.Router.GET("/api/v1/admin/tickets/{ticketId}/scan-log", adminHandler.ScanLog)
		e.Router.GET("/api/v1/admin/transactions/{transactionId}", adminHandler.Transaction)
		e.Router.POST("/api/v1/admin/tickets/{ticketId}/status", adminHandler.UpdateTicketStatus)
		e.Router.POST("/api/v1/admin/tickets/{ticketId}/registration", adminHandler.UpdateRegistration)

		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", webhookHandler.SimulatePayment)
		}

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(redisClient); err != nil {
					return e.JSON(503, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")
		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down...")
	cancel()
}
