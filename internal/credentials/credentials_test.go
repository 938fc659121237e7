package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

type prefixCipher struct{}

func (prefixCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (prefixCipher) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", fmt.Errorf("not encrypted")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

type recordingAuditor struct {
	mu        sync.Mutex
	connected []string
	refreshed []string
}

func (a *recordingAuditor) LogOAuthConnected(_ context.Context, userID string, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		a.connected = append(a.connected, userID)
	}
	return nil
}

func (a *recordingAuditor) LogTokenRefreshed(_ context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshed = append(a.refreshed, userID)
	return nil
}

func TestStateEncoder_RoundTrip(t *testing.T) {
	enc, err := NewStateEncoder("state-secret", time.Minute)
	require.NoError(t, err)

	token, issued, err := enc.Encode("user-1", "https://app.example.com/done")
	require.NoError(t, err)

	got, err := enc.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "https://app.example.com/done", got.RedirectTo)
	assert.Equal(t, issued.Nonce, got.Nonce)
	assert.Equal(t, issued.IssuedAt, got.IssuedAt)
}

func TestStateEncoder_Expired(t *testing.T) {
	now := time.Now()
	enc, err := NewStateEncoder("state-secret", time.Minute)
	require.NoError(t, err)
	enc.WithClock(func() time.Time { return now })

	token, _, err := enc.Encode("user-1", "")
	require.NoError(t, err)

	enc.WithClock(func() time.Time { return now.Add(2 * time.Minute) })
	_, err = enc.Decode(token)
	assert.ErrorIs(t, err, apperrors.ErrStateExpired)
}

func TestStateEncoder_Invalid(t *testing.T) {
	a, err := NewStateEncoder("secret-a", 0)
	require.NoError(t, err)
	b, err := NewStateEncoder("secret-b", 0)
	require.NoError(t, err)

	token, _, err := a.Encode("user-1", "")
	require.NoError(t, err)

	_, err = b.Decode(token)
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)

	_, err = a.Decode("not-a-token")
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)

	_, _, err = a.Encode("", "")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = NewStateEncoder("", 0)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

// tokenServer fakes Google's token endpoint and counts grants.
func tokenServer(t *testing.T, grants *[]string) *httptest.Server {
	t.Helper()
	var n int
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		*grants = append(*grants, r.PostForm.Get("grant_type"))
		n++
		access := fmt.Sprintf("access-%d", n)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") == "bad" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			fmt.Fprintf(w, `{"access_token":%q,"refresh_token":"refresh-1","expires_in":3600,"token_type":"Bearer"}`, access)
		case "refresh_token":
			fmt.Fprintf(w, `{"access_token":%q,"expires_in":3600,"token_type":"Bearer"}`, access)
		}
	}))
}

func newService(t *testing.T, tokenURL string, records store.RecordStore, auditor Auditor) *TokenService {
	t.Helper()
	states, err := NewStateEncoder("state-secret", time.Minute)
	require.NoError(t, err)
	return NewTokenService(config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/api/auth/google/callback",
	}, records, prefixCipher{}, states, zerolog.Nop(),
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		WithAuditor(auditor),
	)
}

func TestTokenService_ConsentFlowStoresEncryptedTokens(t *testing.T) {
	var grants []string
	srv := tokenServer(t, &grants)
	defer srv.Close()

	records := store.NewMemoryStore(store.Options{})
	auditor := &recordingAuditor{}
	svc := newService(t, srv.URL, records, auditor)

	authURL, state, err := svc.AuthorizationURL("user-1", "https://app.example.com")
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Equal(t, "consent", u.Query().Get("prompt"))

	got, err := svc.HandleCallback(context.Background(), state, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "https://app.example.com", got.RedirectTo)
	assert.Equal(t, []string{"authorization_code"}, grants)
	assert.Equal(t, []string{"user-1"}, auditor.connected)

	var rec StoredToken
	require.NoError(t, records.GetRecord(context.Background(), "user#user-1", TokenSortKey, &rec))
	assert.Equal(t, "enc:access-1", rec.AccessTokenEncrypted)
	assert.Equal(t, "enc:refresh-1", rec.RefreshTokenEncrypted)
	assert.Equal(t, ProviderGoogle, rec.Provider)

	assert.NoError(t, svc.EnsureConnected(context.Background(), "user-1"))
}

func TestTokenService_CallbackFailures(t *testing.T) {
	var grants []string
	srv := tokenServer(t, &grants)
	defer srv.Close()
	svc := newService(t, srv.URL, store.NewMemoryStore(store.Options{}), nil)

	_, err := svc.HandleCallback(context.Background(), "garbage", "code")
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)

	_, state, err := svc.AuthorizationURL("user-1", "")
	require.NoError(t, err)
	_, err = svc.HandleCallback(context.Background(), state, "bad")
	assert.ErrorIs(t, err, apperrors.ErrOAuthExchange)
}

func TestTokenService_NotConnected(t *testing.T) {
	svc := newService(t, "http://127.0.0.1:0/token", store.NewMemoryStore(store.Options{}), nil)

	_, err := svc.Client(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
	assert.ErrorIs(t, svc.EnsureConnected(context.Background(), "nobody"), apperrors.ErrNotConnected)
}

func TestTokenService_RefreshesInsideWindowAndPersists(t *testing.T) {
	var grants []string
	tokens := tokenServer(t, &grants)
	defer tokens.Close()

	var seen []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	records := store.NewMemoryStore(store.Options{})
	auditor := &recordingAuditor{}
	svc := newService(t, tokens.URL, records, auditor)

	ctx := context.Background()
	require.NoError(t, records.PutRecord(ctx, "user#u1", TokenSortKey, StoredToken{
		UserID:                "u1",
		Provider:              ProviderGoogle,
		AccessTokenEncrypted:  "enc:stale",
		RefreshTokenEncrypted: "enc:refresh-1",
		ExpiresAt:             time.Now().Add(time.Minute),
	}))

	client, err := svc.Client(ctx, "u1")
	require.NoError(t, err)
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"refresh_token"}, grants)
	assert.Equal(t, []string{"Bearer access-1"}, seen)
	assert.Equal(t, []string{"u1"}, auditor.refreshed)

	var rec StoredToken
	require.NoError(t, records.GetRecord(ctx, "user#u1", TokenSortKey, &rec))
	assert.Equal(t, "enc:access-1", rec.AccessTokenEncrypted)
	assert.Equal(t, "enc:refresh-1", rec.RefreshTokenEncrypted)
	assert.True(t, rec.ExpiresAt.After(time.Now().Add(50*time.Minute)))
}

func TestTokenService_FreshTokenIsNotRefreshed(t *testing.T) {
	var grants []string
	tokens := tokenServer(t, &grants)
	defer tokens.Close()

	var seen string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
	}))
	defer api.Close()

	records := store.NewMemoryStore(store.Options{})
	svc := newService(t, tokens.URL, records, nil)
	ctx := context.Background()
	require.NoError(t, records.PutRecord(ctx, "user#u1", TokenSortKey, StoredToken{
		AccessTokenEncrypted:  "enc:current",
		RefreshTokenEncrypted: "enc:refresh-1",
		ExpiresAt:             time.Now().Add(time.Hour),
	}))

	client, err := svc.Client(ctx, "u1")
	require.NoError(t, err)
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, grants)
	assert.Equal(t, "Bearer current", seen)
}
