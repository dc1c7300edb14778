package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-core/internal/api"
	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/mailing"
	"github.com/ignite/outreach-core/internal/pkg/distlock"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/repository/postgres"
	"github.com/ignite/outreach-core/internal/service/campaign"
	"github.com/ignite/outreach-core/internal/service/jobqueue"
	"github.com/ignite/outreach-core/internal/service/suppression"
	"github.com/ignite/outreach-core/internal/verify"
	"github.com/ignite/outreach-core/internal/worker"
)

func main() {
	log.Println("Starting outreach worker...")

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/worker.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Configure(os.Stderr, cfg.Logging.Format, logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.ShouldRedact())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	redisClient := connectRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories and services
	jobRepo := postgres.NewJobRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	inboxRepo := postgres.NewInboxRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	healthRepo := postgres.NewHealthRepo(db)

	queue := jobqueue.NewQueue(jobRepo, jobqueue.WithMaxRetries(cfg.Jobs.MaxRetries))
	campaigns := campaign.NewService(campaignRepo)
	suppressions := suppression.NewService(postgres.NewSuppressionRepo(db))

	// Delivery
	creds, err := mailing.NewCredentialResolver(cfg.Mailing.EncryptionKey, cfg.Mailing.EncryptionKeyID)
	if err != nil {
		log.Fatalf("Invalid encryption key: %v", err)
	}
	smtpSender := mailing.NewSMTPSender(cfg.Mailing.SendRatePerSecond, cfg.Mailing.SMTPTimeout())
	var sesSender mailing.Sender
	if cfg.SES.Enabled {
		s, err := mailing.NewSESSender(ctx, cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey)
		if err != nil {
			log.Fatalf("Failed to initialize SES: %v", err)
		}
		sesSender = s
		log.Printf("SES sender enabled (region=%s)", cfg.SES.Region)
	}
	composer := mailing.NewComposer(mailing.NewRenderer(), cfg.Mailing.AppURL)

	// Background components
	scheduler := worker.NewCampaignScheduler(campaignRepo, inboxRepo, queue, worker.SchedulerConfig{
		LeadBatchSize:  cfg.Scheduler.LeadBatchSize,
		MinHealthScore: cfg.Scheduler.MinHealthScore,
		Strategy:       worker.ParseStrategy(cfg.Scheduler.Assignment),
	})
	processor := worker.NewJobProcessor(queue, worker.ProcessorDeps{
		Campaigns:    campaignRepo,
		Inboxes:      inboxRepo,
		Leads:        leadRepo,
		Suppressions: suppressions,
		Verifier:     verify.New(nil, cfg.Verify.MXTimeout(), cfg.Verify.ExtraDisposable...),
		Composer:     composer,
		Senders:      mailing.NewRouter(smtpSender, sesSender),
		Credentials:  creds,
		Scheduler:    scheduler,
	}, cfg.Jobs.BatchSize, cfg.Jobs.Timeout())
	warmup := worker.NewWarmupService(inboxRepo, queue, cfg.Warmup.HealthRecoveryStep, cfg.Warmup.ResetWindow())
	monitor := worker.NewAutoPauseMonitor(healthRepo, inboxRepo,
		time.Duration(cfg.AutoPause.MetricsWindowHours)*time.Hour,
		time.Duration(cfg.AutoPause.ReplyRateWindowHours)*time.Hour)
	recovery := worker.NewJobRecovery(queue, cfg.Jobs.StaleAfter())

	leaseGrace := cfg.Driver.LeaderLockTTL()
	driver := worker.NewDriver(cfg.Driver.Tick(), func(key string, period time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db.DB, key, period+leaseGrace)
	}, worker.StandardDuties(worker.Components{
		Processor: processor,
		Scheduler: scheduler,
		Warmup:    warmup,
		AutoPause: monitor,
		Recovery:  recovery,
	}, worker.Cadence{
		Scheduler: cfg.Driver.SchedulerEveryTicks,
		Warmup:    cfg.Driver.WarmupEveryTicks,
		AutoPause: cfg.Driver.AutoPauseEveryTicks,
		Recovery:  cfg.Driver.RecoveryEveryTicks,
	})...)

	if cfg.Driver.Mode == "loop" {
		driver.StartLoop(ctx)
	} else {
		driver.Start(ctx)
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           api.NewRouter(api.NewHandlers(queue, driver, campaigns), cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Ops server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Ops server error: %v", err)
			}
		}()
	}

	logger.Info("worker running", "mode", cfg.Driver.Mode, "tick", cfg.Driver.Tick().String(),
		"assignment", cfg.Scheduler.Assignment, "duties", driver.Duties())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Ops server shutdown error: %v", err)
		}
		shutdownCancel()
	}
	cancel()
	driver.Stop()
	log.Println("Worker stopped")
}

// connectRedis returns a client for the leader lock, or nil when Redis is not
// configured or unreachable, in which case locks use Postgres advisory locks.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Println("Redis not configured, using PG advisory locks for leader duties")
		return nil
	}

	opts, err := redis.ParseURL(cfg.Addr)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v, falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Println("Redis connected (distributed locking enabled)")
	return client
}
