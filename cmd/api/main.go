package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zllovesuki/adbill/auth"
	"github.com/zllovesuki/adbill/billing"
	"github.com/zllovesuki/adbill/bootstrap"
	"github.com/zllovesuki/adbill/config"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	issueToken := flag.String("issue-token", "", "print an operator token for this email and exit")
	flag.Parse()

	// Determine running environment and initialize structural logger
	dotFile, environment := config.DotFile("ENV")
	logger, flush, err := bootstrap.NewLogger(environment, "api", Version)
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

	authenticator, err := auth.New(auth.Options{
		Logger:          logger,
		SchedulerSecret: cfg.CronSecret,
		JWTSigningKey:   cfg.JWTSigningKey,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	if *issueToken != "" {
		token, err := authenticator.CreateTokenFromClaims(auth.Claims{
			Email: *issueToken,
			Role:  auth.RoleOperator,
		})
		if err != nil {
			logger.Fatal("Cannot issue operator token",
				zap.Error(err),
			)
		}
		fmt.Println(token)
		return
	}

	engine, err := bootstrap.NewEngine(cfg, logger)
	if err != nil {
		logger.Fatal("Cannot initialize billing engine",
			zap.Error(err),
		)
	}
	defer engine.Close()

	billingRouter, err := billing.NewService(billing.ServiceOptions{
		Auth:   authenticator,
		Runner: engine.Orchestrator,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Billing Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(middleware.RequestID)
	rootRouter.Use(middleware.RealIP)
	rootRouter.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		rootRouter.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	rootRouter.Mount("/billing", billingRouter.Router())

	if environment == config.EnvDevelopment {
		rootRouter.HandleFunc("/pprof/*", pprof.Index)
		rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
		rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
		rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
		rootRouter.HandleFunc("/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Handler:           rootRouter,
		Addr:              cfg.ListenAddr,
		ReadHeaderTimeout: time.Second * 10,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server stopped",
				zap.Error(err),
			)
		}
	}()

	logger.Info("API server started",
		zap.String("Addr", cfg.ListenAddr),
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	// let an in-flight billing run finish
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Cannot shutdown API server gracefully",
			zap.Error(err),
		)
	}
}
