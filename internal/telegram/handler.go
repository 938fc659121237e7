package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/agents"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/capture"
	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/logging"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// Reply statuses that are not capture outcomes.
const (
	StatusHelp        = "help"
	StatusConnect     = "connect"
	StatusCancelled   = "cancelled"
	StatusIgnored     = "ignored"
	StatusUnavailable = "unavailable"
	StatusRejected    = "rejected"
)

const helpText = `Send me your trades in plain language, e.g. "Long NVDA, in 9:30 out 15:45, +150". Screenshots, documents and voice notes are welcome.

I'll ask for anything I still need: ticker, PnL, long or short, entry and exit time.

/cancel  discard the trade in progress
/connect  link your Google account
/help  show this message`

// Capturer runs capture turns.
type Capturer interface {
	Process(ctx context.Context, sub models.Submission, dest models.Destination) (*models.SubmissionResult, error)
	Cancel(ctx context.Context, userID string) (bool, error)
	History(ctx context.Context, userID string) []string
}

// Composer writes conversational replies.
type Composer interface {
	Compose(ctx context.Context, rc agents.ReplyContext) (string, error)
}

// Bot is the subset of the Bot API the handler needs.
type Bot interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// ConnectionChecker reports whether a user has linked Google.
type ConnectionChecker interface {
	EnsureConnected(ctx context.Context, userID string) error
}

// Response is the webhook reply body.
type Response struct {
	Status    string `json:"status"`
	Reply     string `json:"reply,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
}

// HandlerConfig holds static handler settings.
type HandlerConfig struct {
	SheetID    string
	SheetRange string
	// ConnectURL is the authorize endpoint users are sent to by /connect.
	ConnectURL string
}

// Handler turns Telegram updates into capture turns.
type Handler struct {
	capture  Capturer
	composer Composer
	bot      Bot
	checker  ConnectionChecker
	cfg      HandlerConfig
	logger   zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithComposer sets the reply composer. Without one, deterministic replies
// are used.
func WithComposer(c Composer) HandlerOption {
	return func(h *Handler) { h.composer = c }
}

// WithBot sets the Bot API client used for downloads and outbound replies.
func WithBot(b Bot) HandlerOption {
	return func(h *Handler) { h.bot = b }
}

// WithConnectionChecker requires a linked Google account before capture.
func WithConnectionChecker(c ConnectionChecker) HandlerOption {
	return func(h *Handler) { h.checker = c }
}

// NewHandler creates a Handler.
func NewHandler(capture Capturer, cfg HandlerConfig, logger zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		capture: capture,
		cfg:     cfg,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpdate processes one update and sends the reply to the chat.
func (h *Handler) HandleUpdate(ctx context.Context, update Update) (*Response, error) {
	msg := update.Msg()
	if msg == nil {
		return &Response{Status: StatusIgnored}, nil
	}

	resp, err := h.respond(ctx, msg)
	if err != nil {
		return nil, err
	}
	resp.ChatID = msg.Chat.ID

	if resp.Reply != "" && h.bot != nil {
		if err := h.bot.SendMessage(ctx, msg.Chat.ID, resp.Reply); err != nil {
			h.logger.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to deliver reply")
		}
	}
	return resp, nil
}

func (h *Handler) respond(ctx context.Context, msg *Message) (*Response, error) {
	userID := UserID(msg.Chat.ID)
	logger := logging.WithUser(h.logger, userID)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	if cmd := command(text); cmd != "" {
		switch cmd {
		case "/start", "/help":
			return &Response{Status: StatusHelp, Reply: helpText}, nil
		case "/connect":
			return &Response{Status: StatusConnect, Reply: h.connectReply(userID)}, nil
		case "/cancel":
			cleared, err := h.capture.Cancel(ctx, userID)
			if err != nil {
				return nil, apperrors.Wrap(err, "failed to cancel capture session")
			}
			if !cleared {
				return &Response{Status: StatusCancelled, Reply: "There's no trade in progress."}, nil
			}
			return &Response{Status: StatusCancelled, Reply: "Okay, I've discarded the trade in progress."}, nil
		}
	}

	if h.checker != nil {
		if err := h.checker.EnsureConnected(ctx, userID); err != nil {
			if errors.Is(err, apperrors.ErrNotConnected) {
				return &Response{Status: StatusConnect, Reply: h.connectReply(userID)}, nil
			}
			return nil, err
		}
	}

	attachments, err := h.attachments(ctx, msg)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch attachment")
		return &Response{
			Status: StatusRejected,
			Reply:  "I couldn't download that file. Could you send it again?",
		}, nil
	}
	if text == "" && len(attachments) == 0 {
		return &Response{Status: StatusIgnored}, nil
	}

	sub := models.Submission{UserID: userID, Content: text, Attachments: attachments}
	dest := models.Destination{SheetID: h.cfg.SheetID, Range: h.cfg.SheetRange}

	result, err := h.capture.Process(ctx, sub, dest)
	if err != nil {
		return h.failureResponse(logger, userID, err)
	}

	return &Response{
		Status:    string(result.Status),
		Reply:     h.compose(ctx, logger, text, userID, result),
		SessionID: result.SessionID,
	}, nil
}

func (h *Handler) failureResponse(logger zerolog.Logger, userID string, err error) (*Response, error) {
	switch {
	case errors.Is(err, apperrors.ErrNotConnected):
		return &Response{Status: StatusConnect, Reply: h.connectReply(userID)}, nil
	case errors.Is(err, apperrors.ErrExtraction):
		logger.Info().Err(err).Msg("Extracted trade failed validation")
		return &Response{Status: StatusRejected, Reply: extractionReply(err)}, nil
	case errors.Is(err, apperrors.ErrModelUnavailable):
		logger.Warn().Err(err).Msg("Capture unavailable")
		return &Response{Status: StatusUnavailable, Reply: agents.UnavailableReply}, nil
	case errors.Is(err, apperrors.ErrInvalidAttachment):
		var attErr *apperrors.AttachmentError
		reply := "I can't use that attachment."
		if errors.As(err, &attErr) {
			reply = fmt.Sprintf("I can't use %s: %s.", attErr.Filename, attErr.Reason)
		}
		return &Response{Status: StatusRejected, Reply: reply}, nil
	case errors.Is(err, apperrors.ErrCommitFailed):
		logger.Error().Err(err).Msg("Trade commit failed")
		return &Response{
			Status: StatusUnavailable,
			Reply:  "I have everything I need but couldn't save the trade yet. Send any message to retry.",
		}, nil
	}
	return nil, err
}

// extractionReply asks the user to restate the field the model got wrong.
func extractionReply(err error) string {
	var extErr *apperrors.ExtractionError
	if !errors.As(err, &extErr) || extErr.Field == "" {
		return "I couldn't make sense of one of the trade details. Could you restate them?"
	}
	return fmt.Sprintf("I couldn't read the %s value (%s). Could you restate it?",
		capture.HumanizeField(extErr.Field), extErr.Message)
}

// compose asks the model for a reply and falls back to the deterministic one.
func (h *Handler) compose(ctx context.Context, logger zerolog.Logger, text, userID string, result *models.SubmissionResult) string {
	if h.composer == nil {
		return agents.FallbackReply(result)
	}
	reply, err := h.composer.Compose(ctx, agents.ReplyContext{
		UserMessage: text,
		History:     h.capture.History(ctx, userID),
		Result:      result,
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Reply composer unavailable, using fallback")
		return agents.FallbackReply(result)
	}
	return reply
}

func (h *Handler) connectReply(userID string) string {
	link := h.cfg.ConnectURL
	if link == "" {
		return "Connect your Google account to start journaling. Ask your administrator for the link and use user_id=" + userID + "."
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return "Connect your Google account to start journaling: " + link + sep + "user_id=" + url.QueryEscape(userID)
}

// attachments downloads every file in the message as a base64 attachment.
func (h *Handler) attachments(ctx context.Context, msg *Message) ([]models.Attachment, error) {
	refs := mediaRefs(msg)
	if len(refs) == 0 {
		return nil, nil
	}
	if h.bot == nil {
		return nil, errors.New("no bot client configured for downloads")
	}

	out := make([]models.Attachment, 0, len(refs))
	for _, ref := range refs {
		data, err := h.bot.DownloadFile(ctx, ref.fileID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Attachment{
			Filename: ref.filename,
			MimeType: ref.mimeType,
			Content:  base64.StdEncoding.EncodeToString(data),
			Tags:     []string{"telegram", ref.kind},
		})
	}
	return out, nil
}

type mediaRef struct {
	fileID   string
	filename string
	mimeType string
	kind     string
}

// mediaRefs lists the files attached to a message. Only the largest photo
// size is kept.
func mediaRefs(msg *Message) []mediaRef {
	var refs []mediaRef
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		refs = append(refs, mediaRef{
			fileID:   best.FileID,
			filename: "photo_" + fallback(best.FileUniqueID, best.FileID) + ".jpg",
			mimeType: "image/jpeg",
			kind:     "photo",
		})
	}
	if d := msg.Document; d != nil {
		refs = append(refs, mediaRef{
			fileID:   d.FileID,
			filename: fallback(d.FileName, "document_"+fallback(d.FileUniqueID, d.FileID)),
			mimeType: fallback(d.MimeType, "application/octet-stream"),
			kind:     "document",
		})
	}
	if v := msg.Voice; v != nil {
		refs = append(refs, mediaRef{
			fileID:   v.FileID,
			filename: "voice_" + fallback(v.FileUniqueID, v.FileID) + ".ogg",
			mimeType: fallback(v.MimeType, "audio/ogg"),
			kind:     "voice",
		})
	}
	if a := msg.Audio; a != nil {
		refs = append(refs, mediaRef{
			fileID:   a.FileID,
			filename: fallback(a.FileName, "audio_"+fallback(a.FileUniqueID, a.FileID)+".mp3"),
			mimeType: fallback(a.MimeType, "audio/mpeg"),
			kind:     "audio",
		})
	}
	return refs
}

// command returns the lowercased bot command at the start of text, without
// any @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// UserID maps a chat to the journal user id.
func UserID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
