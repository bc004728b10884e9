package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duel-arena/config"
	"duel-arena/handlers"
	"duel-arena/middleware"
	"duel-arena/models"
	"duel-arena/services"
	"duel-arena/utils"
	"duel-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }}
	if cfg.DatabaseDriver == "sqlite" {
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "file:arena.db?_pragma=busy_timeout(5000)"
		}
		db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), gormCfg)
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; serialize through a single connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var bus services.EventBus = services.NewLocalBus()
	if cfg.RedisURL != "" {
		redisBus, err := services.NewRedisBus(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		defer redisBus.Close()
		bus = redisBus
		log.Println("✅ Match events shared over Redis pub/sub")
	}

	wallet := services.NewWalletClient(cfg.WalletServiceURL, cfg.GameServiceToken)
	if cfg.WalletServiceURL == "" {
		log.Println("⚠️  WALLET_SERVICE_URL not set: paid matches cannot be funded or settled")
	}

	settlement := services.NewSettlementService(db, wallet, bus)
	settlement.HouseFeePercent = cfg.HouseFeePercent
	settlement.ClaimTTL = cfg.PayoutClaimTTL
	if cfg.R2Enabled() {
		archive, err := utils.NewR2Archive(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2BucketName, cfg.CDNBaseURL)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		settlement.Archive = archive
	}

	fighters := services.NewFighterService(db)

	matches := services.NewMatchService(db, bus, fighters, settlement, wallet)
	matches.DefaultRounds = cfg.DefaultRounds
	matches.RoundTimeout = cfg.RoundTimeout
	matches.EntryTimeout = cfg.EntryTimeout

	queue := services.NewMatchmakingService(db, matches, fighters, bus)
	queue.DefaultEntryFee = cfg.DefaultEntryFee
	queue.TicketTTL = cfg.QueueTicketTTL

	sched, err := matches.StartSweepScheduler(queue, cfg.SweepInterval)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	workers.NewPayoutRetryWorker(settlement, cfg.PayoutRetryInterval).Start(ctx)

	app := fiber.New(fiber.Config{AppName: "duel-arena"})
	app.Use(recover.New())
	app.Use(logger.New())

	// 🔐❗ GLOBAL: only Gateway requests are allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, Last-Event-ID, X-Player-Address, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐 Player routes: the gateway resolved the caller's wallet
	secured := app.Group("/s", middleware.PlayerContextMiddleware())

	handlers.SetupMatchRoutes(app, secured, matches, settlement)
	handlers.SetupQueueRoutes(app, secured, queue, bus)
	handlers.SetupFighterRoutes(app, secured, fighters)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Arena running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Sweeps every %s, payout retries every %s", cfg.SweepInterval, cfg.PayoutRetryInterval)
	log.Printf("✅ CORS configured for origins: %s", cfg.Origins())

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
