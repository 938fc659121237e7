package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

const (
	// ProviderGoogle names the only supported provider.
	ProviderGoogle = "google"
	// TokenSortKey is the record sort key for Google tokens.
	TokenSortKey = "oauth#google"
	// RefreshWindow refreshes access tokens this long before they expire.
	RefreshWindow = 5 * time.Minute
)

// DefaultScopes grants file-level Drive access and Sheets access.
var DefaultScopes = []string{drive.DriveFileScope, sheets.SpreadsheetsScope}

// Cipher encrypts tokens at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Auditor records account events.
type Auditor interface {
	LogOAuthConnected(ctx context.Context, userID string, err error) error
	LogTokenRefreshed(ctx context.Context, userID string) error
}

// StoredToken is the persisted token record.
type StoredToken struct {
	UserID                string    `json:"user_id"`
	Provider              string    `json:"provider"`
	AccessTokenEncrypted  string    `json:"access_token_encrypted"`
	RefreshTokenEncrypted string    `json:"refresh_token_encrypted"`
	ExpiresAt             time.Time `json:"expires_at"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TokenService runs the consent flow and hands out authorised clients.
type TokenService struct {
	oauth   *oauth2.Config
	records store.RecordStore
	cipher  Cipher
	states  *StateEncoder
	auditor Auditor
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithEndpoint overrides the OAuth endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(s *TokenService) { s.oauth.Endpoint = endpoint }
}

// WithAuditor records connection and refresh events.
func WithAuditor(a Auditor) Option {
	return func(s *TokenService) { s.auditor = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a token service from the Google settings.
func NewTokenService(cfg config.GoogleConfig, records store.RecordStore, cipher Cipher, states *StateEncoder, logger zerolog.Logger, opts ...Option) *TokenService {
	s := &TokenService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       DefaultScopes,
			Endpoint:     google.Endpoint,
		},
		records: records,
		cipher:  cipher,
		states:  states,
		now:     time.Now,
		logger:  logger.With().Str("component", "credentials").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthorizationURL issues a signed state and the consent URL carrying it.
func (s *TokenService) AuthorizationURL(userID, redirectTo string) (string, string, error) {
	state, _, err := s.states.Encode(userID, redirectTo)
	if err != nil {
		return "", "", err
	}
	url := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	return url, state, nil
}

// HandleCallback verifies the state, exchanges the code and stores the
// encrypted tokens.
func (s *TokenService) HandleCallback(ctx context.Context, rawState, code string) (*State, error) {
	state, err := s.states.Decode(rawState)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.NewValidationError("code", code, "is required")
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.audit(ctx, state.UserID, err)
		return nil, apperrors.Wrapf(apperrors.ErrOAuthExchange, "exchange failed: %v", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" || tok.Expiry.IsZero() {
		err := apperrors.Wrap(apperrors.ErrOAuthExchange, "incomplete token payload returned from Google")
		s.audit(ctx, state.UserID, err)
		return nil, err
	}

	now := s.now().UTC()
	if err := s.save(ctx, state.UserID, tok, now, now); err != nil {
		return nil, err
	}

	s.audit(ctx, state.UserID, nil)
	s.logger.Info().Str("user_id", state.UserID).Msg("Google account connected")
	return state, nil
}

// EnsureConnected reports ErrNotConnected unless usable tokens are stored.
func (s *TokenService) EnsureConnected(ctx context.Context, userID string) error {
	_, _, err := s.load(ctx, userID)
	return err
}

// Disconnect removes stored tokens.
func (s *TokenService) Disconnect(ctx context.Context, userID string) error {
	return s.records.DeleteRecord(ctx, store.UserPK(userID), TokenSortKey)
}

// Client returns an HTTP client authorised as userID. Tokens within the
// refresh window are refreshed on first use and re-persisted.
func (s *TokenService) Client(ctx context.Context, userID string) (*http.Client, error) {
	rec, tok, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Pull expiry forward so the oauth2 package refreshes inside the window.
	early := *tok
	early.Expiry = tok.Expiry.Add(-RefreshWindow)

	src := &persistingSource{
		base:      s.oauth.TokenSource(ctx, &early),
		service:   s,
		userID:    userID,
		createdAt: rec.CreatedAt,
		last:      tok.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}

func (s *TokenService) load(ctx context.Context, userID string) (*StoredToken, *oauth2.Token, error) {
	var rec StoredToken
	if err := s.records.GetRecord(ctx, store.UserPK(userID), TokenSortKey, &rec); err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			return nil, nil, apperrors.ErrNotConnected
		}
		return nil, nil, fmt.Errorf("failed to load oauth token: %w", err)
	}
	if rec.AccessTokenEncrypted == "" || rec.RefreshTokenEncrypted == "" || rec.ExpiresAt.IsZero() {
		return nil, nil, apperrors.Wrap(apperrors.ErrNotConnected, "stored oauth token is missing required fields")
	}

	access, err := s.cipher.Decrypt(rec.AccessTokenEncrypted)
	if err != nil {
		return nil, nil, apperrors.Wrapf(apperrors.ErrNotConnected, "stored access token unreadable: %v", err)
	}
	refresh, err := s.cipher.Decrypt(rec.RefreshTokenEncrypted)
	if err != nil {
		return nil, nil, apperrors.Wrapf(apperrors.ErrNotConnected, "stored refresh token unreadable: %v", err)
	}

	return &rec, &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       rec.ExpiresAt,
	}, nil
}

func (s *TokenService) save(ctx context.Context, userID string, tok *oauth2.Token, created, updated time.Time) error {
	access, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	refresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypting refresh token: %w", err)
	}

	rec := StoredToken{
		UserID:                userID,
		Provider:              ProviderGoogle,
		AccessTokenEncrypted:  access,
		RefreshTokenEncrypted: refresh,
		ExpiresAt:             tok.Expiry.UTC(),
		CreatedAt:             created,
		UpdatedAt:             updated,
	}
	if err := s.records.PutRecord(ctx, store.UserPK(userID), TokenSortKey, rec); err != nil {
		return fmt.Errorf("failed to store oauth token: %w", err)
	}
	return nil
}

func (s *TokenService) audit(ctx context.Context, userID string, err error) {
	if s.auditor == nil {
		return
	}
	if auditErr := s.auditor.LogOAuthConnected(ctx, userID, err); auditErr != nil {
		s.logger.Warn().Err(auditErr).Msg("Failed to write audit event")
	}
}

// persistingSource stores every newly minted access token.
type persistingSource struct {
	base      oauth2.TokenSource
	service   *TokenService
	userID    string
	createdAt time.Time

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}

	ctx := context.Background()
	if err := p.service.save(ctx, p.userID, tok, p.createdAt, p.service.now().UTC()); err != nil {
		p.service.logger.Error().Err(err).Str("user_id", p.userID).Msg("Failed to persist refreshed token")
	} else {
		p.last = tok.AccessToken
		p.service.logger.Debug().Str("user_id", p.userID).Msg("Access token refreshed")
		if p.service.auditor != nil {
			_ = p.service.auditor.LogTokenRefreshed(ctx, p.userID)
		}
	}
	return tok, nil
}
