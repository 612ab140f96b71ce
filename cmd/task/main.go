package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zllovesuki/adbill/bootstrap"
	"github.com/zllovesuki/adbill/config"
	"github.com/zllovesuki/adbill/task"

	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	once := flag.Bool("once", false, "run a single billing batch, print the result and exit")
	flag.Parse()

	// Determine running environment and initialize structural logger
	dotFile, environment := config.DotFile("ENV")
	logger, flush, err := bootstrap.NewLogger(environment, "task", Version)
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

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Cannot load billing time zone",
			zap.Error(err),
		)
	}

	engine, err := bootstrap.NewEngine(cfg, logger)
	if err != nil {
		logger.Fatal("Cannot initialize billing engine",
			zap.Error(err),
		)
	}
	defer engine.Close()

	billingTask, err := task.NewBillingTask(task.BillingOptions{
		Runner:   engine.Orchestrator,
		Schedule: cfg.Schedule,
		Location: loc,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot get billing task",
			zap.Error(err),
		)
	}

	if *once {
		result := billingTask.RunOnce(context.Background())
		json.NewEncoder(os.Stdout).Encode(result)
		if !result.Success {
			flush()
			engine.Close()
			os.Exit(1)
		}
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	done, err := billingTask.Start(ctx)
	if err != nil {
		logger.Fatal("Cannot start billing schedule",
			zap.Error(err),
		)
	}

	logger.Info("Billing task started")

	<-c
	cancel()
	<-done
}
