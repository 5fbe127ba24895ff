package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	"github.com/clearaudio/gateway/app/controllers"
	"github.com/clearaudio/gateway/internal/pkg/auth"
	"github.com/clearaudio/gateway/internal/pkg/billing"
	"github.com/clearaudio/gateway/internal/pkg/blobstore"
	"github.com/clearaudio/gateway/internal/pkg/cache"
	"github.com/clearaudio/gateway/internal/pkg/database"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/clearaudio/gateway/internal/pkg/env"
	"github.com/clearaudio/gateway/internal/pkg/gateway"
	"github.com/clearaudio/gateway/internal/pkg/metrics/counter"
	"github.com/clearaudio/gateway/internal/pkg/processing"
	"github.com/clearaudio/gateway/internal/pkg/ratelimit"
	"github.com/clearaudio/gateway/internal/pkg/router"
	"github.com/clearaudio/gateway/internal/pkg/share"
	"github.com/clearaudio/gateway/internal/pkg/usage"
)

func main() {
	app, views, sched := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Gateway] shutting down")
	<-sched.Stop().Done()
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Gateway] shutdown: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := views.Flush(ctx); err != nil {
		log.Errorf("[Gateway] final view flush: %v", err)
	}
}

func NewApplication() (*fiber.App, *counter.Counter, *cron.Cron) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	rdb := cache.GetClient()
	ctx := context.Background()

	billingCfg := billing.LoadConfig()
	catalog := entitlements.DefaultCatalog(billingCfg.ProPriceID)
	engine := usage.NewEngine(usage.NewGormStore(db), catalog)

	blobCfg, err := blobstore.LoadConfig()
	if err != nil {
		log.Fatalf("[Blob] %v", err)
	}
	blobs, err := blobstore.New(ctx, blobCfg)
	if err != nil {
		log.Fatalf("[Blob] %v", err)
	}

	procCfg := processing.LoadConfig()
	if procCfg.FalKey == "" {
		log.Warn("[Processing] FAL_KEY is not set, upstream calls will be rejected")
	}
	orchestrator := processing.NewOrchestrator(
		processing.NewFalClient(procCfg.FalBaseURL, procCfg.FalModelID, procCfg.FalKey),
		processing.NewHTTPFetcher(procCfg.MaxOutputBytes),
		blobs,
		procCfg,
	)

	shares := share.NewStore(db, share.WithCache(share.NewRedisCache(rdb), share.CacheTTL()))
	views := counter.New(rdb, db)
	sched := cron.New()
	if _, err := views.Schedule(sched, env.GetEnv("SHARE_VIEW_FLUSH_SCHEDULE", "@every 1m")); err != nil {
		log.Fatalf("[Counter] invalid flush schedule: %v", err)
	}
	sched.Start()

	api := &controllers.API{
		Pipeline: gateway.NewPipeline(engine, orchestrator, shares),
		Usage:    engine,
		Billing:  billing.NewServiceFromDB(db, billing.NewStripeProvider(env.GetEnv("STRIPE_SECRET_KEY", "")), catalog, billingCfg),
		Shares:   shares,
		Plans:    catalog,
		Views:    views,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	deps := router.Deps{
		API:            api,
		Verifier:       auth.NewVerifier(env.GetEnv("AUTH_JWT_SECRET", ""), env.GetEnv("AUTH_JWT_ISSUER", "")),
		RateLimit:      ratelimit.LoadConfig(),
		LimiterStorage: ratelimit.NewRedisStorage(cache.LoadConfig()),
	}
	if blobCfg.Backend == blobstore.BackendLocal {
		deps.BlobDir = blobCfg.LocalDir
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: procCfg.Deadline + 30*time.Second,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, deps)

	return app, views, sched
}
