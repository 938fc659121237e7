// Package bootstrap wires the journal's services from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/agents"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/analysis"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/capture"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/credentials"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/extraction"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/ingestion"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/resilience"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/server"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/telegram"
)

// AuthorizePath is the route that starts the Google consent flow.
const AuthorizePath = "/api/auth/google/authorize"

// Container holds every wired service. Optional services are nil when their
// configuration is missing.
type Container struct {
	Config *config.Config
	Logger zerolog.Logger

	Sessions store.SessionStore
	Records  store.RecordStore
	// Local is the SQLite database. It is nil when neither the session
	// backend nor the journal uses it.
	Local   *store.SQLiteStore
	Journal ingestion.Journal

	Auditor   *security.AuditLogger
	Tokens    *credentials.TokenService
	Ingestion *ingestion.Service
	Capture   *capture.Orchestrator
	Analyst   *agents.Analyst

	PubSub *gochannel.GoChannel
	Queue  *analysis.Queue
	Worker *analysis.Worker

	Bot      *telegram.Client
	Telegram *telegram.Handler

	ModelBreaker *resilience.Breaker
	Health       *resilience.HealthMonitor

	closers []func() error
}

// NewContainer builds the services described by cfg. Every resource opened
// before a failure is released.
func NewContainer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (c *Container, err error) {
	c = &Container{Config: cfg, Logger: logger, Health: resilience.NewHealthMonitor(5 * time.Second)}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if err := c.openStores(ctx); err != nil {
		return nil, err
	}
	if err := c.openAuditor(); err != nil {
		return nil, err
	}
	if err := c.openCredentials(); err != nil {
		return nil, err
	}
	if err := c.openJournal(); err != nil {
		return nil, err
	}

	llm := agents.NewOpenAIClient(cfg.LLM)
	c.ModelBreaker = resilience.NewBreaker("model", resilience.BreakerConfig{
		FailureThreshold: cfg.LLM.BreakerThreshold,
		Cooldown:         cfg.LLM.BreakerCooldown,
	})
	c.Health.Register("model", resilience.BreakerCheck(c.ModelBreaker))
	gateway := extraction.NewGateway(agents.NewTradeExtractor(llm), cfg.LLM.Timeout, logger).WithBreaker(c.ModelBreaker)

	validator := ingestion.NewValidator(cfg.Attachments.MaxBytes, cfg.Attachments.AllowedMimeTypes)
	c.Ingestion = ingestion.NewService(validator, c.uploader(), c.Journal, logger)

	opts := []capture.Option{
		capture.WithValidator(c.Ingestion),
		capture.WithLogger(logger),
	}
	if c.Auditor != nil {
		opts = append(opts, capture.WithAuditor(c.Auditor))
	}
	c.Capture = capture.NewOrchestrator(c.Sessions, gateway, c.Ingestion, opts...)

	c.Analyst = agents.NewAnalyst(llm, c.Journal)
	if cfg.Analysis.SearchAPIKey != "" {
		c.Analyst.WithWebSearch(agents.NewSerpAPIClient(cfg.Analysis.SearchAPIKey, cfg.Analysis.SearchEngine))
	}
	c.PubSub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          true,
	}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, c.PubSub.Close)
	c.Queue = analysis.NewQueue(c.PubSub, c.Records, cfg.Analysis.Topic, logger)
	c.Worker = analysis.NewWorker(c.PubSub, c.Records, c.Analyst, cfg.Analysis.Topic, cfg.Analysis.Workers, logger)

	if cfg.TelegramEnabled() {
		c.openTelegram(llm)
	}

	return c, nil
}

func (c *Container) openStores(ctx context.Context) error {
	cfg := c.Config
	opts := store.Options{TTL: cfg.Capture.SessionTTL}

	switch cfg.Capture.Backend {
	case "memory":
		mem := store.NewMemoryStore(opts)
		c.closers = append(c.closers, mem.Close)
		c.Sessions, c.Records = mem, mem
	case "redis":
		client, err := store.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		rs := store.NewRedisStore(client, cfg.Redis.Prefix, opts)
		c.Health.Register("redis", resilience.PingCheck(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}, 250*time.Millisecond))
		c.closers = append(c.closers, rs.Close)
		c.Sessions, c.Records = rs, rs
	default:
		sqlite, err := c.openSQLite()
		if err != nil {
			return err
		}
		c.Sessions, c.Records = sqlite, sqlite
	}

	c.Logger.Debug().Str("backend", cfg.Capture.Backend).Msg("Session store ready")
	return nil
}

// openSQLite opens the database once and reuses it for every caller.
func (c *Container) openSQLite() (*store.SQLiteStore, error) {
	if c.Local != nil {
		return c.Local, nil
	}
	path := c.Config.Capture.DBPath
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	sqlite, err := store.NewSQLiteStore(path, store.Options{TTL: c.Config.Capture.SessionTTL})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, sqlite.Close)
	c.Local = sqlite
	c.Health.Register("database", resilience.PingCheck(sqlite.DB().PingContext, 100*time.Millisecond))
	return sqlite, nil
}

func (c *Container) openAuditor() error {
	if !c.Config.Security.AuditEnabled || c.Config.Security.AuditPath == "" {
		return nil
	}
	auditor, err := security.NewAuditLogger(security.DefaultAuditConfig(c.Config.Security.AuditPath))
	if err != nil {
		return err
	}
	c.closers = append(c.closers, auditor.Close)
	c.Auditor = auditor
	return nil
}

// openCredentials enables the Google integration when OAuth client
// credentials are configured.
func (c *Container) openCredentials() error {
	cfg := c.Config
	if !cfg.GoogleEnabled() {
		return nil
	}
	cipher, err := security.NewTokenCipher(cfg.Security.TokenKey)
	if err != nil {
		return err
	}
	states, err := credentials.NewStateEncoder(cfg.StateSecret(), cfg.OAuth.StateTTL)
	if err != nil {
		return err
	}
	var opts []credentials.Option
	if c.Auditor != nil {
		opts = append(opts, credentials.WithAuditor(c.Auditor))
	}
	c.Tokens = credentials.NewTokenService(cfg.Google, c.Records, cipher, states, c.Logger, opts...)
	return nil
}

func (c *Container) openJournal() error {
	if c.Tokens != nil {
		c.Journal = ingestion.NewSheetsJournal(c.Tokens)
		return nil
	}
	sqlite, err := c.openSQLite()
	if err != nil {
		return err
	}
	c.Journal = sqlite
	c.Logger.Info().Str("path", c.Config.Capture.DBPath).Msg("Google is not configured, journaling locally")
	return nil
}

func (c *Container) uploader() ingestion.FileUploader {
	if c.Tokens != nil {
		return ingestion.NewDriveUploader(c.Tokens, c.Config.Google.DriveFolderID)
	}
	return ingestion.NewLocalUploader(c.Config.Capture.JournalDir)
}

func (c *Container) openTelegram(llm *agents.OpenAIClient) {
	cfg := c.Config
	c.Bot = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIBaseURL, c.Logger)

	sheetID := cfg.Telegram.DefaultSheetID
	if sheetID == "" {
		sheetID = cfg.Google.DefaultSheetID
	}
	hcfg := telegram.HandlerConfig{SheetID: sheetID, SheetRange: cfg.Google.SheetRange}

	opts := []telegram.HandlerOption{
		telegram.WithBot(c.Bot),
		telegram.WithComposer(agents.NewReplyComposer(llm.WithModel(cfg.LLM.ReplyModel))),
	}
	if c.Tokens != nil {
		hcfg.ConnectURL = strings.TrimRight(cfg.Server.PublicURL, "/") + AuthorizePath
		opts = append(opts, telegram.WithConnectionChecker(c.Tokens))
	}
	c.Telegram = telegram.NewHandler(c.Capture, hcfg, c.Logger, opts...)
}

// ServerDeps returns the services behind the HTTP routes. Unset optional
// services stay nil interfaces.
func (c *Container) ServerDeps() server.Deps {
	deps := server.Deps{
		Capture:  c.Capture,
		Ingestor: c.Ingestion,
		Jobs:     c.Queue,
		Health:   c.Health,
	}
	if c.Tokens != nil {
		deps.Connector = c.Tokens
	}
	if c.Telegram != nil {
		deps.Telegram = c.Telegram
	}
	if c.Auditor != nil {
		deps.Auditor = c.Auditor
	}
	return deps
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
