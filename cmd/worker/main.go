package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zllovesuki/adbill/bootstrap"
	"github.com/zllovesuki/adbill/config"
	"github.com/zllovesuki/adbill/notification"
	"github.com/zllovesuki/adbill/task"

	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	// Determine running environment and initialize structural logger
	dotFile, environment := config.DotFile("ENV")
	logger, flush, err := bootstrap.NewLogger(environment, "worker", Version)
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer flush()

	// Load configurations from dotFile
	cfg, err := config.Load(dotFile, environment)
	if err != nil {
		logger.Fatal("Cannot load configurations",
			zap.Error(err),
		)
	}

	b, err := bootstrap.NewBroker(cfg, logger)
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	if b == nil {
		logger.Fatal("Worker needs BROKER=amqp or BROKER=nats to receive notifications")
	}
	defer b.Close()

	mailer, err := notification.NewMailer(notification.MailerOptions{
		Sender:  notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		From:    fmt.Sprintf("%s <%s>", cfg.SiteName, cfg.SMTPFrom),
		SiteURL: cfg.SiteURL,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Mailer",
			zap.Error(err),
		)
	}

	mailTask, err := task.NewMailTask(task.MailOptions{
		Receiver:  b,
		Deliverer: mailer,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot get mail task",
			zap.Error(err),
		)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	if err := mailTask.HandleNotifications(ctx); err != nil {
		logger.Fatal("Cannot handle notifications",
			zap.Error(err),
		)
	}

	logger.Info("Notification worker started")

	<-c
	cancel()
}
