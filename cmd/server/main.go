package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	apicron "github.com/stackbill/stackbill/internal/api/cron"
	v1 "github.com/stackbill/stackbill/internal/api/v1"
	"github.com/stackbill/stackbill/internal/cache"
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/domain/proration"
	"github.com/stackbill/stackbill/internal/events"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/repository"
	"github.com/stackbill/stackbill/internal/rest"
	"github.com/stackbill/stackbill/internal/service"
	"github.com/stackbill/stackbill/internal/types"
)

func main() {
	// Optional; real deployments use the environment directly.
	_ = godotenv.Load()

	fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			postgres.NewClient,
			newServiceParams,
			newBus,

			service.NewTierService,
			service.NewProrationService,
			service.NewCouponService,
			service.NewEntitlementService,
			service.NewUpgradeRequestService,
			service.NewBillingTransactionService,
			service.NewPaymentMethodService,

			v1.NewTierHandler,
			v1.NewProrationHandler,
			v1.NewCouponHandler,
			v1.NewUpgradeRequestHandler,
			v1.NewBillingTransactionHandler,
			v1.NewPaymentMethodHandler,
			apicron.NewBillingCronHandler,

			newRouter,
		),
		fx.Invoke(
			initSentry,
			startAuditLogger,
			startScheduler,
			startServer,
		),
	).Run()
}

type bus struct {
	channel   *gochannel.GoChannel
	publisher events.Publisher
}

func newBus(log *logger.Logger) *bus {
	ch := events.NewGoChannel(log)
	return &bus{
		channel:   ch,
		publisher: events.NewPublisher(ch, log),
	}
}

func newServiceParams(
	cfg *config.Configuration,
	log *logger.Logger,
	client *postgres.Client,
	b *bus,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:        log,
		Config:        cfg,
		DB:            client,
		Cache:         cache.NewInMemoryCache(),
		Publisher:     b.publisher,
		ProrationCalc: proration.NewCalculator(),

		TierRepo:          repository.NewTierRepository(client, log),
		TenantRepo:        repository.NewTenantRepository(client, log),
		RequestRepo:       repository.NewUpgradeRequestRepository(client, log),
		TransactionRepo:   repository.NewBillingTransactionRepository(client, log),
		CouponRepo:        repository.NewCouponRepository(client, log),
		RedemptionRepo:    repository.NewCouponRedemptionRepository(client, log),
		PaymentMethodRepo: repository.NewPaymentMethodRepository(client, log),
	}
}

func newRouter(
	cfg *config.Configuration,
	log *logger.Logger,
	tier *v1.TierHandler,
	proration *v1.ProrationHandler,
	coupon *v1.CouponHandler,
	upgradeRequest *v1.UpgradeRequestHandler,
	billingTransaction *v1.BillingTransactionHandler,
	paymentMethod *v1.PaymentMethodHandler,
	billingCron *apicron.BillingCronHandler,
) *gin.Engine {
	return rest.NewRouter(cfg, log, rest.Handlers{
		Tier:               tier,
		Proration:          proration,
		Coupon:             coupon,
		UpgradeRequest:     upgradeRequest,
		BillingTransaction: billingTransaction,
		PaymentMethod:      paymentMethod,
		BillingCron:        billingCron,
	})
}

func initSentry(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) error {
	if !cfg.Sentry.Enabled {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		TracesSampleRate: cfg.Sentry.SampleRate,
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		},
	})
	log.Infow("sentry initialized", "environment", cfg.Sentry.Environment)
	return nil
}

func startAuditLogger(lc fx.Lifecycle, b *bus, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return events.StartAuditLogger(ctx, b.channel, log)
		},
		OnStop: func(context.Context) error {
			cancel()
			return b.channel.Close()
		},
	})
}

func startScheduler(lc fx.Lifecycle, cfg *config.Configuration, requests service.UpgradeRequestService, log *logger.Logger) error {
	// Sweeps run as the system actor.
	jobCtx := types.SetActorID(context.Background(), types.DefaultActorID)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Billing.DowngradeSweepSchedule, func() {
		ctx := types.SetRequestID(jobCtx, types.GenerateUUID())
		if _, err := requests.RunScheduledDowngradeSweep(ctx); err != nil {
			log.Errorw("scheduled downgrade sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(cfg.Billing.ExpirySweepSchedule, func() {
		ctx := types.SetRequestID(jobCtx, types.GenerateUUID())
		if _, err := requests.MaterializeExpiries(ctx); err != nil {
			log.Errorw("expiry sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			scheduler.Start()
			log.Infow("billing scheduler started",
				"downgrade_sweep", cfg.Billing.DowngradeSweepSchedule,
				"expiry_sweep", cfg.Billing.ExpirySweepSchedule)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := scheduler.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, cfg *config.Configuration, router *gin.Engine, log *logger.Logger) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Infow("starting server", "address", cfg.Server.Address)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalw("server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
}
