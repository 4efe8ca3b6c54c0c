// Command server runs the zaphost gateway: account and credential management,
// WhatsApp session control and the public send API.
//
// @title                      zaphost gateway API
// @version                    1.0
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/zaphost/gateway/docs"
	"github.com/zaphost/gateway/internal/api"
	"github.com/zaphost/gateway/internal/core/service"
	"github.com/zaphost/gateway/internal/infrastructure/config"
	"github.com/zaphost/gateway/internal/infrastructure/db/mongo"
	"github.com/zaphost/gateway/internal/infrastructure/db/redis"
	"github.com/zaphost/gateway/internal/infrastructure/http/handlers"
	"github.com/zaphost/gateway/internal/infrastructure/queue"
	"github.com/zaphost/gateway/internal/infrastructure/whatsapp"
	"github.com/zaphost/gateway/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.Init(logger.Options{Service: "zaphost"})
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "zaphost",
	})

	// --- Storage ---
	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "zaphost-gateway",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongo")
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	userRepo := mongo.NewUserRepository(db)
	credRepo := mongo.NewCredentialRepository(db)
	snapshotRepo := mongo.NewSnapshotRepository(db)
	auditRepo := mongo.NewAuditRepository(db)
	txnRepo := mongo.NewTransactionRepository(db)

	if err := mongo.EnsureIndexes(ctx, userRepo, credRepo, snapshotRepo, auditRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	// --- Usage log writer ---
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, auditRepo, logger.Component("audit"))
	dispatcher.Start()

	// --- Services ---
	authService := service.NewAuthService(userRepo, txnRepo, service.AuthOptions{
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
		TrialPeriod:  cfg.TrialPeriod(),
		PasswordCost: cfg.Auth.BcryptCost,
	}, logger.Component("auth"))
	credentialService := service.NewCredentialService(userRepo, credRepo, cfg.Auth.BcryptCost, logger.Component("credentials"))
	validator := service.NewCredentialValidator(userRepo, credRepo, authService, cfg.Auth.BcryptCost, logger.Component("validator"))

	transport := whatsapp.NewTransport(cfg.WhatsApp.StoreDir, logger.Component("whatsapp"))
	sessions := service.NewSessionManager(
		service.NewSessionRegistry(),
		transport,
		snapshotRepo,
		dispatcher,
		service.SessionOptions{
			ChallengeTimeout: cfg.WhatsApp.ChallengeTimeout,
			SendTimeout:      cfg.WhatsApp.SendTimeout,
		},
		logger.Component("sessions"),
	)
	messaging := service.NewMessagingService(sessions, redis.NewIdempotencyStore(rdb), dispatcher, logger.Component("messaging"))

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Auth:          authService,
		Tokens:        authService,
		Validator:     validator,
		Credentials:   credentialService,
		Sessions:      sessions,
		Messaging:     messaging,
		Readiness:     []handlers.Dependency{handlers.MongoCheck(db), handlers.RedisCheck(rdb)},
		WebhookSecret: cfg.Auth.PaymentWebhookSecret,
		Log:           logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		errCh <- e.Start(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("audit writer did not drain")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("redis close")
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mongo disconnect")
	}

	log.Info().Msg("server stopped")
}
