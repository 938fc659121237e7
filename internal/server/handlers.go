package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/resilience"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/telegram"
)

// telegramSecretHeader carries the secret configured with setWebhook.
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type ingestRequest struct {
	models.TradeDraft
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type callbackRequest struct {
	Code  string `json:"code" query:"code"`
	State string `json:"state" query:"state"`
}

type cancelRequest struct {
	UserID string `json:"user_id" query:"user_id"`
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.deps.Health == nil {
		return c.JSON(fiber.Map{"status": "ok"})
	}
	report := s.deps.Health.Check(c.UserContext())
	status := "ok"
	code := fiber.StatusOK
	switch report.Status {
	case resilience.HealthStatusDegraded:
		status = "degraded"
	case resilience.HealthStatusUnhealthy:
		status = "unavailable"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"uptime":     report.Uptime,
		"components": report.Components,
	})
}

// ingestTrade journals a complete trade without running capture.
func (s *Server) ingestTrade(c *fiber.Ctx) error {
	var req ingestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed trade payload.")
	}
	if err := req.TradeDraft.Validate(); err != nil {
		return err
	}
	dest, err := s.destination(c)
	if err != nil {
		return err
	}
	if err := s.ensureConnected(c, req.UserID); err != nil {
		return err
	}

	draft := req.TradeDraft
	draft.Ticker = strings.ToUpper(strings.TrimSpace(draft.Ticker))
	result, err := s.deps.Ingestor.IngestTrade(c.UserContext(), &draft, dest, req.Attachments)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// submitTrade runs one capture turn. A committed trade answers 201, a turn
// still waiting on fields answers 202.
func (s *Server) submitTrade(c *fiber.Ctx) error {
	var sub models.Submission
	if err := c.BodyParser(&sub); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed submission payload.")
	}
	if err := security.ValidateUserID(sub.UserID); err != nil {
		return s.rejectInput(c, err)
	}
	sub.Content = security.SanitizeText(sub.Content)
	if err := security.ValidateText("content", sub.Content, security.MaxContentLength); err != nil {
		return s.rejectInput(c, err)
	}
	dest, err := s.destination(c)
	if err != nil {
		return err
	}
	if err := s.ensureConnected(c, sub.UserID); err != nil {
		return err
	}

	result, err := s.deps.Capture.Process(c.UserContext(), sub, dest)
	if err != nil {
		return err
	}
	status := fiber.StatusAccepted
	if result.Completed() {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(result)
}

// cancelSession discards the user's capture session.
func (s *Server) cancelSession(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed query.")
	}
	if err := security.ValidateUserID(req.UserID); err != nil {
		return s.rejectInput(c, err)
	}
	cleared, err := s.deps.Capture.Cancel(c.UserContext(), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"cleared": cleared})
}

func (s *Server) requestAnalysis(c *fiber.Ctx) error {
	if s.deps.Jobs == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Analysis is not configured.")
	}
	var req models.AnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed analysis request.")
	}
	if req.SheetID == "" {
		req.SheetID = s.cfg.Google.DefaultSheetID
	}
	if req.Range == "" {
		req.Range = s.cfg.Google.SheetRange
	}
	for _, check := range []error{
		security.ValidateUserID(req.UserID),
		security.ValidateSheetID(req.SheetID),
		security.ValidateRange(req.Range),
		security.ValidateText("prompt", req.Prompt, security.MaxContentLength),
	} {
		if check != nil {
			return s.rejectInput(c, check)
		}
	}
	if err := s.ensureConnected(c, req.UserID); err != nil {
		return err
	}

	job, err := s.deps.Jobs.Enqueue(c.UserContext(), req)
	if err != nil {
		return err
	}
	if s.deps.Auditor != nil {
		_ = s.deps.Auditor.LogAnalysisQueued(c.UserContext(), req.UserID, job.JobID)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.JobID, "status": job.Status})
}

func (s *Server) analysisStatus(c *fiber.Ctx) error {
	if s.deps.Jobs == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Analysis is not configured.")
	}
	userID := c.Query("user_id")
	jobID := c.Params("job_id")
	if err := security.ValidateUserID(userID); err != nil {
		return s.rejectInput(c, err)
	}
	if err := security.ValidateJobID(jobID); err != nil {
		return s.rejectInput(c, err)
	}

	job, err := s.deps.Jobs.Status(c.UserContext(), userID, jobID)
	if err != nil {
		return err
	}
	return c.JSON(job)
}

// authorize starts the consent flow. Browsers are redirected; API clients
// get the URL and state as JSON.
func (s *Server) authorize(c *fiber.Ctx) error {
	if s.deps.Connector == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Google integration is not configured.")
	}
	userID := c.Query("user_id")
	if err := security.ValidateUserID(userID); err != nil {
		return s.rejectInput(c, err)
	}

	authURL, state, err := s.deps.Connector.AuthorizationURL(userID, c.Query("redirect_to"))
	if err != nil {
		return err
	}
	if wantsHTML(c) {
		return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
	}
	return c.JSON(fiber.Map{"authorization_url": authURL, "state": state})
}

// callback completes the consent flow. Google redirects browsers here with
// a GET; API clients POST the code and state.
func (s *Server) callback(c *fiber.Ctx) error {
	if s.deps.Connector == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Google integration is not configured.")
	}
	var req callbackRequest
	var err error
	if c.Method() == fiber.MethodGet {
		err = c.QueryParser(&req)
	} else {
		err = c.BodyParser(&req)
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed callback payload.")
	}
	if req.State == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing OAuth state.")
	}

	state, err := s.deps.Connector.HandleCallback(c.UserContext(), req.State, req.Code)
	if err != nil {
		return err
	}

	redirect := state.RedirectTo
	if redirect == "" {
		redirect = s.cfg.Server.FrontendURL
	}
	if wantsHTML(c) && redirect != "" {
		return c.Redirect(redirect, fiber.StatusTemporaryRedirect)
	}

	var redirectTo any
	if state.RedirectTo != "" {
		redirectTo = state.RedirectTo
	}
	return c.JSON(fiber.Map{"status": "connected", "redirect_to": redirectTo})
}

// telegramWebhook accepts a bot update. The secret travels either as the
// token query parameter or in Telegram's secret header.
func (s *Server) telegramWebhook(c *fiber.Ctx) error {
	if s.deps.Telegram == nil {
		return fiber.NewError(fiber.StatusNotFound, "Telegram integration is not configured.")
	}
	if !s.webhookAuthorized(c) {
		if s.deps.Auditor != nil {
			_ = s.deps.Auditor.LogWebhookRejected(c.UserContext(), "telegram", c.IP())
		}
		return fiber.NewError(fiber.StatusForbidden, "Invalid webhook token.")
	}

	var update telegram.Update
	if err := c.BodyParser(&update); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed update.")
	}

	resp, err := s.deps.Telegram.HandleUpdate(c.UserContext(), update)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (s *Server) webhookAuthorized(c *fiber.Ctx) bool {
	expected := s.cfg.Telegram.WebhookSecret
	if expected == "" {
		expected = s.cfg.Telegram.BotToken
	}
	if expected == "" {
		return false
	}
	got := c.Query("token")
	if got == "" {
		got = c.Get(telegramSecretHeader)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// destination reads the sheet query parameters, falling back to the
// configured defaults.
func (s *Server) destination(c *fiber.Ctx) (models.Destination, error) {
	dest := models.Destination{
		SheetID: c.Query("sheet_id", s.cfg.Google.DefaultSheetID),
		Range:   c.Query("sheet_range", s.cfg.Google.SheetRange),
	}
	if err := security.ValidateSheetID(dest.SheetID); err != nil {
		return dest, s.rejectInput(c, err)
	}
	if err := security.ValidateRange(dest.Range); err != nil {
		return dest, s.rejectInput(c, err)
	}
	return dest, nil
}

// ensureConnected requires a linked Google account when Google is enabled.
func (s *Server) ensureConnected(c *fiber.Ctx, userID string) error {
	if s.deps.Connector == nil {
		return nil
	}
	return s.deps.Connector.EnsureConnected(c.UserContext(), userID)
}

// rejectInput audits a validation failure and returns it.
func (s *Server) rejectInput(c *fiber.Ctx, err error) error {
	var verr *apperrors.ValidationError
	if s.deps.Auditor != nil && apperrors.As(err, &verr) {
		_ = s.deps.Auditor.LogInputValidation(c.UserContext(), verr.Field, security.MaskSensitive(toString(verr.Value)), verr.Message)
	}
	return err
}

func wantsHTML(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
