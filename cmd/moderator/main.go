package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	appModeration "github.com/juttuchat/modguard/pkg/app/moderation"
	"github.com/juttuchat/modguard/pkg/config"
	handlers "github.com/juttuchat/modguard/pkg/handlers/http"
	"github.com/juttuchat/modguard/pkg/heuristics"
	infraCache "github.com/juttuchat/modguard/pkg/infra/cache"
	"github.com/juttuchat/modguard/pkg/infra/database"
	"github.com/juttuchat/modguard/pkg/infra/httpx"
	infraLogger "github.com/juttuchat/modguard/pkg/infra/logger"
	"github.com/juttuchat/modguard/pkg/infra/oracle"
	"github.com/juttuchat/modguard/pkg/infra/repository"
	"github.com/juttuchat/modguard/pkg/policy"
	"github.com/juttuchat/modguard/pkg/sanction"
	"github.com/juttuchat/modguard/pkg/server"
	"github.com/juttuchat/modguard/pkg/version"
	"github.com/sirupsen/logrus"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger()
	logger.WithFields(logrus.Fields{
		"version": version.Version,
		"app":     version.AppName,
	}).Info("starting moderation service")

	if err := config.Load("./config"); err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	profile, err := policy.ProfileByName(cfg.Moderation.Profile)
	if err != nil {
		logger.Fatalf("invalid moderation profile %q: %v", cfg.Moderation.Profile, err)
	}
	logger.WithField("profile", profile.Name).Info("sensitivity profile selected")

	db, err := database.NewDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		logger.Fatalf("failed to migrate ledger schema: %v", err)
	}

	cacheClient, err := infraCache.NewClient(infraCache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatalf("failed to initialize cache: %v", err)
	}

	ledgerRepo := repository.NewGormLedgerRepository(db, logger)
	banCache := repository.NewBanStateCache(cacheClient, logger)

	breaker := httpx.NewCircuitBreaker("oracle-moderation", 30*time.Second, 5)
	classifier := oracle.NewClassifier(
		oracle.Config{
			APIKey: cfg.Oracle.APIKey,
			URL:    cfg.Oracle.URL,
			Model:  cfg.Oracle.Model,
		},
		profile,
		&http.Client{Timeout: time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second},
		breaker,
		logger,
	)

	analyzer := heuristics.NewAnalyzer(logger)
	engine := policy.NewEngine(profile, logger)
	executor := sanction.NewExecutor(ledgerRepo, profile, banCache, logger)
	service := appModeration.NewService(classifier, analyzer, engine, executor, ledgerRepo, banCache, logger)

	srv := server.New(
		server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		logger,
		server.Handlers{
			Moderate:   handlers.NewModerateHandler(logger, service),
			UserStatus: handlers.NewUserStatusHandler(logger, ledgerRepo),
			Health:     handlers.NewHealthHandler(),
		},
	)

	go func() {
		if err := srv.Listen(); err != nil {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
}
