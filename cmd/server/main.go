package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"wuwareport/internal/config"
	"wuwareport/internal/database/boltstore"
	"wuwareport/internal/filecheck"
	"wuwareport/internal/handlers"
	"wuwareport/internal/metrics"
	"wuwareport/internal/report"
	"wuwareport/internal/routing"
	"wuwareport/internal/session"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure zerolog
	// Set log level from environment (default: info)
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting WuWa Report Gatekeeper")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := boltstore.Open(boltstore.Options{
		Path: cfg.DBPath,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer store.Close()

	log.Info().Str("path", cfg.DBPath).Msg("Database opened")

	cipher, err := report.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize report cipher")
	}

	ctx := context.Background()

	// Load persisted state before accepting traffic
	reports := report.NewService(store.ReportStore(), cipher, cfg.BackupDir)
	if err := reports.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load reports")
	}
	log.Info().Int("reports", reports.Count()).Msg("Report store loaded")

	engine := session.NewEngine(session.Options{
		PerSessionLimit:     cfg.PerSessionLimit,
		PerFingerprintLimit: cfg.PerFingerprintLimit,
		TTL:                 cfg.SessionTTL,
		MediumThreshold:     cfg.RiskMediumThreshold,
		BlacklistThreshold:  cfg.RiskBlacklistThreshold,
		FreeSubmissions:     cfg.RiskVolumeFreeSubmissions,
		VolumePenalty:       cfg.RiskVolumePenalty,
		ContentPenalty:      cfg.RiskContentPenalty,
	}, store.SessionStore())
	if err := engine.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore sessions")
	}

	stopSweeper := engine.StartSweeper(cfg.SweepInterval)
	defer stopSweeper()
	log.Info().Dur("interval", cfg.SweepInterval).Msg("Session sweeper started")

	metrics.StartCollector(ctx, metrics.StatsSource{
		ReportCount:         reports.Count,
		ReportCountByStatus: reports.CountByStatus,
		SessionCount:        engine.Count,
	}, 30*time.Second)

	if cfg.AdminToken == "" {
		log.Warn().Msg("WUWA_ADMIN_TOKEN not set, admin endpoints disabled")
	}

	// Set SECURE_COOKIES=true in production with HTTPS
	secureCookies := os.Getenv("SECURE_COOKIES") == "true"

	h := handlers.NewHandler(
		engine,
		filecheck.New(cfg.MaxFileBytes),
		reports,
		handlers.Config{
			SecureCookies: secureCookies,
			UploadDir:     cfg.UploadDir,
			AddressSalt:   cfg.AddressSalt,
			MaxFileBytes:  cfg.MaxFileBytes,
		},
	)

	handler := routing.SetupRouter(routing.Config{
		Handlers:   h,
		AdminToken: cfg.AdminToken,
		Logger:     log.Logger,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
	}

	log.Info().
		Str("address", srv.Addr).
		Bool("secure_cookies", secureCookies).
		Str("database", cfg.DBPath).
		Msg("Starting HTTP server")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
