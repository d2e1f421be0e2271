package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/harbinger-sec/warden/internal/api"
	"github.com/harbinger-sec/warden/internal/approval"
	"github.com/harbinger-sec/warden/internal/audit"
	"github.com/harbinger-sec/warden/internal/classify"
	"github.com/harbinger-sec/warden/internal/classify/rules"
	"github.com/harbinger-sec/warden/internal/config"
	"github.com/harbinger-sec/warden/internal/enforce"
	"github.com/harbinger-sec/warden/internal/storage"
	"github.com/harbinger-sec/warden/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("WARDEN_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from optional YAML file + env
	httpPort := envOrDefault("WARDEN_HTTP_PORT", "8080")
	ruleTimeoutMs := envOrDefaultInt("WARDEN_RULE_TIMEOUT_MS", 100)
	cacheTTL := envOrDefaultInt("WARDEN_AUTH_CACHE_TTL_S", 30)
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")

	cfg, err := config.Load(os.Getenv("WARDEN_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	for _, msg := range cfg.Validate() {
		logger.Warn("config problem", zap.String("problem", msg))
	}

	logger.Info("starting warden server",
		zap.String("http_port", httpPort),
		zap.Bool("enabled", cfg.Enabled),
		zap.String("mode", cfg.Mode),
		zap.Strings("approval_methods", cfg.Approval.Methods),
		zap.Int("approval_timeout_s", cfg.Approval.EffectiveTimeoutSeconds()),
	)

	// Postgres pool (optional: persisted API keys and rule overrides)
	var pgStore *store.Store
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore = store.NewStore(db)
		logger.Info("postgres connected")

		// Persisted rule overrides win over file/env settings.
		settings, err := pgStore.LoadRuleSettings(context.Background())
		if err != nil {
			logger.Warn("failed to load rule settings from postgres", zap.Error(err))
		} else if len(settings) > 0 {
			if cfg.Rules == nil {
				cfg.Rules = make(map[string]config.RuleSetting)
			}
			for name, rs := range settings {
				cfg.Rules[name] = rs
			}
			logger.Info("rule settings loaded from postgres", zap.Int("count", len(settings)))
		}
	} else {
		logger.Info("no POSTGRES_DSN set, using dev-mode auth")
	}

	// Classifier. Rules are wired up here to avoid an import cycle.
	ruleSet := []classify.Rule{
		rules.NewDestructiveRule(),
		rules.NewInjectionRule(),
		rules.NewExfiltrationRule(),
		rules.NewPurchaseRule(),
		rules.NewPIIRule(),
	}
	if path := os.Getenv("WARDEN_TOOL_SCHEMAS"); path != "" {
		schemaRule, err := loadArgSchemaRule(path)
		if err != nil {
			logger.Error("failed to load tool schemas, skipping schema rule",
				zap.String("path", path),
				zap.Error(err),
			)
		} else {
			ruleSet = append(ruleSet, schemaRule)
			logger.Info("argument schema rule enabled", zap.String("path", path))
		}
	}
	ruleNames := make([]string, len(ruleSet))
	for i, r := range ruleSet {
		ruleNames[i] = r.Name()
	}
	classifier := classify.NewRuleClassifier(ruleSet, time.Duration(ruleTimeoutMs)*time.Millisecond, logger)

	// Audit: in-memory store, teed to ClickHouse (or log export fallback)
	memStore := audit.NewMemoryStore(0)
	var exporter storage.ExportWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log export",
				zap.Error(err),
			)
			exporter = storage.NewLogWriter(logger)
		} else {
			exporter = chWriter
			logger.Info("clickhouse export connected")
		}
	} else {
		exporter = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log export")
	}
	defer exporter.Close()
	sink := audit.Tee(memStore, exporter)

	// Approval coordinator with optional webhook channel
	var notifier approval.Notifier
	if cfg.Approval.WebhookURL != "" {
		notifier = approval.NewWebhookNotifier(cfg.Approval.WebhookURL, logger)
	}
	coordinator := approval.NewCoordinator(cfg.Approval.EffectiveMaxPending(), sink, notifier, logger)
	defer coordinator.Close()

	router := enforce.NewRouter(sink, coordinator, logger)

	deps := &api.Dependencies{
		Classifier:  classifier,
		Router:      router,
		Coordinator: coordinator,
		Audit:       sink,
		Config:      cfg,
		Store:       pgStore,
		RuleNames:   ruleNames,
		Logger:      logger,
		CacheTTL:    time.Duration(cacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("warden server stopped")
}

// loadArgSchemaRule reads a JSON file mapping tool name to JSON Schema.
func loadArgSchemaRule(path string) (*rules.ArgSchemaRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schemas map[string]json.RawMessage
	if err := json.Unmarshal(raw, &schemas); err != nil {
		return nil, err
	}
	return rules.NewArgSchemaRule(schemas)
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
