package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/checkout/complete"
	"warimas-checkout/internal/config"
	"warimas-checkout/internal/db"
	"warimas-checkout/internal/discount"
	"warimas-checkout/internal/giftcard"
	"warimas-checkout/internal/httpapi"
	"warimas-checkout/internal/inventory"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/metrics"
	"warimas-checkout/internal/middleware"
	"warimas-checkout/internal/notification"
	"warimas-checkout/internal/order"
	"warimas-checkout/internal/payment"
	"warimas-checkout/internal/payment/webhook"
	"warimas-checkout/internal/pricing"
	"warimas-checkout/internal/product"
	"warimas-checkout/internal/user"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var (
	initDBFunc = db.InitDB

	startServerFunc = func(ctx context.Context, addr string, handler http.Handler) error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
)

// server is the HTTP surface plus the loops that run beside it.
type server struct {
	http.Handler
	background []func(ctx context.Context)
	closers    []io.Closer
}

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(cfg, database)
	defer func() {
		for _, c := range srv.closers {
			if err := c.Close(); err != nil {
				logger.L().Warn("close failed", zap.Error(err))
			}
		}
	}()
	for _, loop := range srv.background {
		go loop(ctx)
	}

	logger.L().Info("checkout server running", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
	return startServerFunc(ctx, ":"+cfg.AppPort, srv)
}

func newServer(cfg *config.Config, database *sql.DB) *server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// repositories
	checkoutRepo := checkout.NewRepository(database)
	addressRepo := address.NewRepository(database)
	orderRepo := order.NewRepository(database)
	giftCardRepo := giftcard.NewRepository(database)
	paymentRepo := payment.NewRepository(database)
	userRepo := user.NewRepository(database)
	productRepo := product.NewRepository(database)
	outboxRepo := notification.NewRepository(database)

	// outbox delivery
	srv := &server{}
	publishers := map[string]notification.Publisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		publishers[notification.EventOrderCreated] = kafkaPub
		srv.closers = append(srv.closers, kafkaPub)
	}
	if cfg.EmailQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.L().Error("aws config load failed, confirmation emails disabled", zap.Error(err))
		} else {
			publishers[notification.EventOrderConfirmationEmail] = notification.NewSQSPublisher(awsCfg, cfg.EmailQueueURL)
		}
	}
	poller := notification.NewPoller(outboxRepo, cfg.OutboxPollInterval, publishers)
	poller.OnPublish(m.ObserveOutboxPublish)

	// payments
	registry := payment.NewRegistry(
		payment.NewDummyGateway(true),
		payment.NewStripeGateway(cfg.StripeSecretKey, true),
		payment.NewXenditGateway(cfg.XenditSecretKey, true),
	)
	coordinator := payment.NewCoordinator(registry, paymentRepo)

	// order pipeline
	stock := inventory.NewService(inventory.NewRepository(database))
	oracle := pricing.NewFlatTaxOracle(cfg.TaxRate)
	materializer := order.NewMaterializer(database, order.MaterializerDeps{
		Orders:    orderRepo,
		Checkouts: checkoutRepo,
		Addresses: addressRepo,
		Stock:     stock,
		GiftCards: giftCardRepo,
		Payments:  paymentRepo,
		Outbox:    notification.NewOutbox(outboxRepo),
		Notify:    poller.Notify,
	})

	completer := complete.NewService(complete.Deps{
		Checkouts:    checkoutRepo,
		Addresses:    addressRepo,
		Orders:       orderRepo,
		GiftCards:    giftCardRepo,
		Settings:     pricing.NewSettingsRepository(database),
		Prices:       pricing.NewResolver(oracle),
		Assembler:    order.NewAssembler(productRepo, stock, oracle),
		Materializer: materializer,
		Vouchers:     discount.NewLedger(database, discount.NewRepository(database)),
		Payments:     paymentRepo,
		Processor:    coordinator,
		Customers:    userRepo,
		Sagas:        complete.NewSagaRepository(database),
		Metrics:      m,
		AllowedHosts: cfg.AllowedStorefrontHosts,
		ClaimTTL:     cfg.CompletionClaimTTL,
	})
	reconciler := complete.NewReconciler(completer, paymentRepo, cfg.SagaStaleAfter)

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	stripeHook := webhook.NewStripeHandler(paymentRepo, completer, cfg.StripeWebhookSecret)

	srv.Handler = httpapi.NewRouter(httpapi.RouterConfig{
		Handler: &httpapi.Handler{
			Completer:    completer,
			Checkouts:    checkoutRepo,
			Payments:     paymentRepo,
			Gateways:     registry,
			AllowedHosts: cfg.AllowedStorefrontHosts,
		},
		StripeWebhook: stripeHook.StripeWebhookHandler,
		Metrics:       m,
		Limiter:       limiter,
		SecretKey:     cfg.SecretKey,
		AllowedHosts:  cfg.AllowedStorefrontHosts,
	})
	srv.background = []func(ctx context.Context){
		poller.Run,
		limiter.Run,
		func(ctx context.Context) { reconciler.Run(ctx, cfg.SagaReconcileInterval) },
	}
	return srv
}
