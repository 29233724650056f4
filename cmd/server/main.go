package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/stayadmin/internal/api"
	"github.com/ignite/stayadmin/internal/config"
	"github.com/ignite/stayadmin/internal/notify"
	"github.com/ignite/stayadmin/internal/pkg/distlock"
	"github.com/ignite/stayadmin/internal/pkg/httpretry"
	"github.com/ignite/stayadmin/internal/pkg/logger"
	"github.com/ignite/stayadmin/internal/repository/postgres"
	"github.com/ignite/stayadmin/internal/service/notification"
	"github.com/ignite/stayadmin/internal/storage"
	"github.com/ignite/stayadmin/internal/trigger"
)

// checkPortAvailable fails fast when another process already holds the port.
func checkPortAvailable(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("port %d is already in use: %w", port, err)
	}
	return ln.Close()
}

// extractHost returns the host portion of a postgres DSN for logging
// without credentials.
func extractHost(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database.url (DATABASE_URL) is required")
	}
	dsn := cfg.URL
	if !strings.Contains(dsn, "connect_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "connect_timeout=5"
	}
	log.Printf("[DB] connecting to ...@%s/...", extractHost(dsn))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// openRedis returns nil when Redis is not configured or unreachable; the
// booking pass lock then uses PG advisory locks.
func openRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Println("[Redis] not configured, using PG advisory locks for booking pass lock")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: url})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[Redis] connection failed: %v, falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Println("[Redis] connected (distributed locking enabled)")
	return client
}

// buildTemplateStore returns the template source and, for S3, the client
// so the health checker can probe the bucket.
func buildTemplateStore(ctx context.Context, cfg config.TemplatesConfig, db *sql.DB) (notify.TemplateStore, *s3.Client, error) {
	if cfg.Source != config.TemplateSourceS3 {
		log.Println("[Templates] reading notification_templates from Postgres")
		return postgres.NewTemplateRepo(db), nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config for template bucket: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	log.Printf("[Templates] reading s3://%s/%s", cfg.Bucket, cfg.Prefix)
	return notify.NewS3TemplateStore(client, cfg.Bucket, cfg.Prefix), client, nil
}

func buildSender(ctx context.Context, cfg *config.Config) (notify.Sender, error) {
	switch cfg.Notify.Transport {
	case config.TransportSES:
		sender, err := notify.NewSESSenderFromCredentials(ctx,
			cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region, cfg.SES.ConfigurationSet)
		if err != nil {
			return nil, err
		}
		log.Printf("[Notify] SES transport (region=%s)", cfg.SES.Region)
		return sender, nil
	case config.TransportWebhook:
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Notify.Timeout()}, cfg.Notify.Webhook.MaxRetries)
		log.Printf("[Notify] webhook transport (retries=%d)", cfg.Notify.Webhook.MaxRetries)
		return notify.NewWebhookSender(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Secret, client), nil
	default:
		log.Println("[Notify] log transport, notifications are not delivered")
		return notify.NewLogSender(), nil
	}
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("[Server] stayadmin trigger engine starting")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("[Server] failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("[Server] pre-flight check failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("[DB] %v", err)
	}
	defer db.Close()
	log.Println("[DB] connected")

	redisClient := openRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	templateStore, s3Client, err := buildTemplateStore(ctx, cfg.Templates, db)
	if err != nil {
		log.Fatalf("[Templates] %v", err)
	}
	sender, err := buildSender(ctx, cfg)
	if err != nil {
		log.Fatalf("[Notify] %v", err)
	}
	templates := notify.NewTemplateService()
	notifier := notify.NewEmailNotifier(templateStore, templates, sender, cfg.Notify.FromName, cfg.Notify.FromEmail)

	loc, err := cfg.Triggers.Location()
	if err != nil {
		log.Fatalf("[Server] %v", err)
	}

	svc := notification.NewService(notification.Stores{
		Rules:     postgres.NewTriggerRuleRepo(db),
		Answers:   postgres.NewAnswerRepo(db),
		Questions: postgres.NewQuestionRepo(db),
		Bookings:  postgres.NewBookingRepo(db),
	}, notifier)
	svc.SetBinderOptions(trigger.BinderOptions{
		CheckInOutKey: cfg.Triggers.DateKeys.CheckInOut,
		CheckInKey:    cfg.Triggers.DateKeys.CheckIn,
		CheckOutKey:   cfg.Triggers.DateKeys.CheckOut,
		Location:      loc,
	})
	svc.SetDispatchTimeout(cfg.Notify.Timeout())
	if cfg.Triggers.DedupeEnabled {
		svc.SetDedupe(distlock.NewFactory(redisClient, db, "trigger"), cfg.Triggers.DedupeTTL())
		log.Printf("[Triggers] booking pass lock enabled (ttl=%s)", cfg.Triggers.DedupeTTL())
	}

	handlers := api.NewHandlers(svc)
	handlers.SetTemplates(notifier, templates)

	if cfg.FireHistory.Enabled {
		history, err := storage.NewFireHistoryFromRegion(ctx, cfg.FireHistory.Table, cfg.FireHistory.Region, cfg.FireHistory.TTL())
		if err != nil {
			log.Printf("[FireHistory] disabled: %v", err)
		} else {
			svc.SetFireHistory(history)
			handlers.SetFireHistory(history)
			log.Printf("[FireHistory] recording to DynamoDB table %s", cfg.FireHistory.Table)
		}
	}

	var bucketProbe api.BucketHeader
	if s3Client != nil {
		bucketProbe = s3Client
	}
	handlers.SetHealthChecker(api.NewHealthChecker(db, redisClient, bucketProbe, cfg.Templates.Bucket))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handlers, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Notify.Timeout() + 30*time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[Server] listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Server] %v", err)
		}
	}()

	<-done
	log.Println("[Server] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] shutdown error: %v", err)
	}
	log.Println("[Server] stopped")
}
