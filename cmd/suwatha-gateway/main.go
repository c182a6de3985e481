package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/KDHBuddhika/suwatha/internal/config"
	dbpkg "github.com/KDHBuddhika/suwatha/internal/db"
	"github.com/KDHBuddhika/suwatha/internal/httpapi"
	"github.com/KDHBuddhika/suwatha/internal/identity"
	"github.com/KDHBuddhika/suwatha/internal/notify"
	"github.com/KDHBuddhika/suwatha/internal/notify/discord"
	"github.com/KDHBuddhika/suwatha/internal/notify/inbox"
	"github.com/KDHBuddhika/suwatha/internal/notify/live"
	"github.com/KDHBuddhika/suwatha/internal/notify/logging"
	"github.com/KDHBuddhika/suwatha/internal/notify/mail"
	"github.com/KDHBuddhika/suwatha/internal/notify/rabbitmq"
	"github.com/KDHBuddhika/suwatha/internal/notify/webhook"
	"github.com/KDHBuddhika/suwatha/internal/registry"
	"github.com/KDHBuddhika/suwatha/internal/reports"
	"github.com/KDHBuddhika/suwatha/internal/session"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.LogLevel, logger.GetLevel())
	}

	gdb, err := dbpkg.OpenGorm(cfg.DB.Driver, cfg.DB.DSN, logger)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := dbpkg.Close(gdb); err != nil {
			logger.Errorf("database close error: %v", err)
		}
	}()

	ctx := context.Background()
	workers := registry.NewGormStore(gdb)
	notifications := inbox.New(gdb)
	hub := live.NewHub(logger)

	subs := []notify.Subscriber{logging.New(logger), notifications, hub}
	for idx, webhookURL := range cfg.Notify.WebhookURLs {
		subs = append(subs, webhook.New(
			webhookSubscriberName(idx, webhookURL),
			webhookURL,
			webhook.WithSharedSecret(cfg.Notify.WebhookSecret),
			webhook.WithKindFilter(func(k notify.Kind) bool { return k == notify.KindSessionRequested }),
		))
	}
	if cfg.Notify.DiscordBotToken != "" {
		sub, err := discord.New(cfg.Notify.DiscordBotToken, cfg.Notify.DiscordChannelID)
		if err != nil {
			logger.Fatalf("failed to initialize discord notifier: %v", err)
		}
		subs = append(subs, sub)
	}
	if cfg.Notify.AMQPURL != "" {
		publisher, err := rabbitmq.NewAMQPPublisher(cfg.Notify.AMQPURL)
		if err != nil {
			logger.Fatalf("failed to connect to amqp: %v", err)
		}
		defer publisher.Close()
		subs = append(subs, rabbitmq.New(publisher, cfg.Notify.AMQPExchange))
	}
	if cfg.SMTP.Enabled() {
		subs = append(subs, mail.New(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	dispatcher := notify.NewDispatcher(logger, subs)

	audit := session.NewAuditLog(gdb)
	sessions := session.NewService(gdb, workers, audit, dispatcher, logger, cfg.PublicBaseURL)

	if err := workers.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate workers: %v", err)
	}
	if err := sessions.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate sessions: %v", err)
	}
	if err := notifications.Migrate(ctx); err != nil {
		logger.Fatalf("failed to migrate notifications: %v", err)
	}

	resolver, err := identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		logger.Fatalf("failed to initialize identity resolver: %v", err)
	}

	deps := httpapi.Deps{
		Sessions: sessions,
		Workers:  workers,
		Audit:    audit,
		Reports:  reports.NewStore(gdb, workers),
		Inbox:    notifications,
		Live:     hub,
		Identity: resolver,
	}
	publicSrv := httpapi.NewServer(logger, cfg.HTTPAddr, deps, false)
	adminSrv := httpapi.NewServer(logger, "unix://"+cfg.AdminSocketPath, deps, true)

	if err := os.MkdirAll(filepath.Dir(cfg.AdminSocketPath), 0o700); err != nil {
		logger.Fatalf("failed to create admin socket dir: %v", err)
	}
	if err := os.Remove(cfg.AdminSocketPath); err != nil && !os.IsNotExist(err) {
		logger.Fatalf("failed to remove stale admin socket: %v", err)
	}
	adminListener, err := net.Listen("unix", cfg.AdminSocketPath)
	if err != nil {
		logger.Fatalf("failed to listen on admin socket: %v", err)
	}
	defer func() {
		_ = adminListener.Close()
		if err := os.Remove(cfg.AdminSocketPath); err != nil && !os.IsNotExist(err) {
			logger.Errorf("admin socket cleanup error: %v", err)
		}
	}()
	if err := os.Chmod(cfg.AdminSocketPath, 0o600); err != nil {
		logger.Warnf("admin socket chmod warning: %v", err)
	}

	go func() {
		logger.Infof("listening on %s", cfg.HTTPAddr)
		if err := publicSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()
	go func() {
		logger.Infof("admin socket listening on %s", cfg.AdminSocketPath)
		if err := adminSrv.Serve(adminListener); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("admin server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := publicSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("public server shutdown error: %v", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("admin server shutdown error: %v", err)
	}
	dispatcher.Wait()
}

func webhookSubscriberName(index int, webhookURL string) string {
	parsed, err := url.Parse(webhookURL)
	if err == nil {
		host := strings.TrimSpace(parsed.Host)
		if host != "" {
			return host
		}
	}
	return fmt.Sprintf("webhook-%d", index+1)
}
