// Package server exposes the journal over HTTP: trade capture, direct
// ingestion, analysis jobs, the Google connect flow and the Telegram webhook.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/credentials"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/resilience"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/telegram"
)

// CaptureService runs conversational capture turns.
type CaptureService interface {
	Process(ctx context.Context, sub models.Submission, dest models.Destination) (*models.SubmissionResult, error)
	Cancel(ctx context.Context, userID string) (bool, error)
}

// TradeIngestor journals a complete trade.
type TradeIngestor interface {
	IngestTrade(ctx context.Context, draft *models.TradeDraft, dest models.Destination, attachments []models.Attachment) (*models.IngestionResult, error)
}

// Connector runs the Google consent flow.
type Connector interface {
	AuthorizationURL(userID, redirectTo string) (string, string, error)
	HandleCallback(ctx context.Context, state, code string) (*credentials.State, error)
	EnsureConnected(ctx context.Context, userID string) error
}

// JobQueue queues analysis jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisJob, error)
	Status(ctx context.Context, userID, jobID string) (*models.AnalysisJob, error)
}

// UpdateHandler handles Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update) (*telegram.Response, error)
}

// Auditor records security-relevant requests.
type Auditor interface {
	LogWebhookRejected(ctx context.Context, source, remoteAddr string) error
	LogAnalysisQueued(ctx context.Context, userID, jobID string) error
	LogInputValidation(ctx context.Context, field, value, reason string) error
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) resilience.SystemHealth
}

// Deps are the services behind the routes. Connector, Jobs, Telegram,
// Auditor and Health are optional; their routes answer 503 or 404 when unset.
type Deps struct {
	Capture   CaptureService
	Ingestor  TradeIngestor
	Connector Connector
	Jobs      JobQueue
	Telegram  UpdateHandler
	Auditor   Auditor
	Health    HealthChecker
}

// Server is the HTTP API.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger
}

// New builds the fiber app and registers every route under /api.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http").Logger()

	app := fiber.New(fiber.Config{
		AppName:               cfg.Server.AppName,
		ReadTimeout:           cfg.Server.ReadTimeout,
		BodyLimit:             bodyLimit(cfg.Attachments.MaxBytes),
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if cfg.Server.FrontendURL != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.Server.FrontendURL,
			AllowHeaders: "Origin, Content-Type, Accept",
			AllowMethods: "GET, POST, DELETE, OPTIONS",
		}))
	}
	app.Use(requestLogger(logger))

	s := &Server{app: app, cfg: cfg, deps: deps, logger: logger}
	s.registerRoutes(app.Group("/api"))
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.logger.Info().Str("addr", s.cfg.Server.Addr).Msg("HTTP server listening")
	return s.app.Listen(s.cfg.Server.Addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes(api fiber.Router) {
	api.Get("/health", s.health)

	api.Post("/trades", s.ingestTrade)
	api.Post("/trades/submit", s.submitTrade)
	api.Delete("/trades/session", s.cancelSession)

	api.Post("/analysis/jobs", s.requestAnalysis)
	api.Get("/analysis/jobs/:job_id", s.analysisStatus)

	auth := api.Group("/auth/google")
	auth.Get("/authorize", s.authorize)
	auth.Get("/callback", s.callback)
	auth.Post("/callback", s.callback)

	api.Post("/integrations/telegram/webhook", s.telegramWebhook)
}

// bodyLimit leaves room for a few base64 attachments per request.
func bodyLimit(maxAttachment int64) int {
	if maxAttachment <= 0 {
		return 4 * 1024 * 1024
	}
	return int(maxAttachment*4) + 1024*1024
}

// requestLogger logs each request and threads the request id into the
// request context for audit events.
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		c.SetUserContext(security.WithRequestID(c.UserContext(), id))

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = classify(err)
		}
		event := logger.Info()
		if status >= fiber.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("request_id", id).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
		return err
	}
}
