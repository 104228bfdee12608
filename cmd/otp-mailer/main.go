package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/luxeledger/inventory-backend/internal/notifications"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "otp-mailer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "otp-mailer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	mailer, err := notifications.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		logg.Error(context.Background(), "failed to configure smtp mailer", err)
		os.Exit(1)
	}

	consumer, err := notifications.NewConsumer(cfg.Broker, mailer, cfg.SMTP.Subject, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create otp consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"queue": cfg.Broker.OTPQueue,
		"smtp":  cfg.SMTP.Host,
	})
	logg.Info(ctx, "starting otp mailer")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "otp mailer stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "otp mailer shutting down gracefully")
}
