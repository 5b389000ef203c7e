package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wagate/internal/api"
	"wagate/internal/command"
	"wagate/internal/delivery"
	"wagate/internal/httpclient"
	"wagate/internal/hub"
	"wagate/internal/metrics"
	"wagate/internal/notice"
	"wagate/internal/phone"
	"wagate/internal/session"
	"wagate/internal/whatsapp"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the session, the HTTP API and the command dispatcher",
		Long:  "Connects the WhatsApp session and serves the HTTP API, console and webhook. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(resolveConfigPath())
	if err != nil {
		return err
	}

	log, logCloser := newLogger(cfg.General)
	defer logCloser.Close()
	logger = log

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if err := ensureDir(cfg.WhatsApp.DBPath); err != nil {
		return fmt.Errorf("db dir: %w", err)
	}

	notices, err := notice.Load(cfg.Commands.NoticesPath)
	if err != nil {
		return err
	}

	store, err := whatsapp.OpenStore(cfg.WhatsApp.DBPath, logger)
	if err != nil {
		return fmt.Errorf("chat store: %w", err)
	}
	defer store.Close()

	client := whatsapp.New(whatsapp.Config{
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		AppSecret:     cfg.WhatsApp.AppSecret,
		APIBase:       cfg.WhatsApp.APIBase,
		WebhookPath:   cfg.WhatsApp.WebhookPath,

		MaxRetries:        cfg.WhatsApp.MaxRetries,
		SendRatePerMinute: cfg.WhatsApp.SendRatePerMinute,
		SendBurst:         cfg.WhatsApp.SendBurst,

		Store:  store,
		Logger: logger.With("component", "whatsapp"),
	})

	normalizer := phone.New(cfg.Phone.CountryCode)

	dispatcher := command.New(command.Config{
		Client:      client,
		Logger:      logger.With("component", "commands"),
		Notices:     notices,
		Normalizer:  normalizer,
		RejectCalls: cfg.Commands.RejectCalls,
	})

	sessCfg := session.Config{
		Client:              client,
		Logger:              logger.With("component", "session"),
		Notices:             notices,
		OnCall:              dispatcher.HandleCall,
		ReconnectBackoff:    time.Duration(cfg.Session.ReconnectBackoff) * time.Second,
		MaxReconnectBackoff: time.Duration(cfg.Session.MaxReconnectBackoff) * time.Second,
	}
	if cfg.Commands.Enabled {
		sessCfg.OnMessage = dispatcher.HandleMessage
	} else {
		logger.Info("command dispatcher disabled")
	}
	controller := session.New(sessCfg)

	notifications := hub.New(hub.Config{
		Session: controller,
		Logger:  logger.With("component", "hub"),
	})
	defer notifications.Close()

	deliveries := delivery.New(delivery.Config{
		Client:          client,
		Logger:          logger.With("component", "delivery"),
		Notices:         notices,
		Normalizer:      normalizer,
		HTTPClient:      httpclient.New(time.Duration(cfg.Media.FetchTimeout) * time.Second),
		MaxMediaBytes:   cfg.Media.MaxBytes,
		DefaultFilename: cfg.Media.DefaultFilename,
	})

	apiCfg := api.Config{
		Delivery: deliveries,
		Session:  controller,
		Notices:  notices,
		Logger:   logger.With("component", "api"),
		Auth: api.AuthConfig{
			Enabled:      cfg.Server.Auth.Enabled,
			Username:     cfg.Server.Auth.Username,
			PasswordHash: cfg.Server.Auth.PasswordHash,
		},
		Hub:         notifications,
		Webhook:     client.Handler(),
		WebhookPath: client.WebhookPath(),
		MaxBodySize: cfg.Server.MaxBodyBytes,
	}
	if cfg.Metrics.Enabled {
		apiCfg.Metrics = metrics.Collector.Handler()
		apiCfg.MetricsPath = cfg.Metrics.Endpoint
	}
	server := api.New(apiCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Server.Addr())
	})
	g.Go(func() error {
		if err := controller.Start(gctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return controller.Close(shutdownCtx)
	})

	logger.Info("wagate started. Press Ctrl+C to stop.", "version", version, "addr", cfg.Server.Addr())

	if err := g.Wait(); err != nil {
		logger.Error("wagate stopped", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
