package hrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"kintai/internal/config"
	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Client talks to the HR platform's REST API on behalf of one employee
// account. It owns the OAuth token lifecycle: EnsureValidToken refreshes
// proactively a few minutes before expiry so scheduled punches never race
// an expiring token.
type Client struct {
	cfg        config.HRConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *zerolog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

func NewClient(cfg config.HRConfig, logger *zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// EnsureValidToken returns a usable access token, refreshing when fewer
// than TokenRefreshMargin remain before expiry.
func (c *Client) EnsureValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && time.Until(c.token.Expiry) > models.TokenRefreshMargin {
		return c.token.AccessToken, nil
	}

	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", domain.ErrAppCredentialsMissing
	}

	refreshToken := c.cfg.RefreshToken
	if c.token != nil && c.token.RefreshToken != "" {
		refreshToken = c.token.RefreshToken
	}
	if refreshToken == "" {
		return "", domain.ErrNoRefreshToken
	}

	seed := &oauth2.Token{RefreshToken: refreshToken}
	token, err := c.oauth.TokenSource(ctx, seed).Token()
	if err != nil {
		c.logger.Error().Err(err).Msg("token refresh failed")
		return "", fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}

	c.token = token
	c.logger.Debug().Time("expiry", token.Expiry).Msg("access token refreshed")
	return token.AccessToken, nil
}

// Request performs one authenticated API call and returns the raw JSON
// response. HTTP failures are mapped onto the shared error taxonomy.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	token, err := c.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hr api request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, c.mapStatusError(resp.StatusCode, payload)
	}
	return payload, nil
}

func (c *Client) mapStatusError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		// Token was just validated; a 401 here means the authorization
		// itself was revoked. Not retryable.
		c.invalidateToken()
		return domain.ErrAuthExpired
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, truncate(body, 200))
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	return &domain.APIError{Status: status, Body: truncate(body, 500)}
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ domain.APIClient = (*Client)(nil)

// get unmarshals a GET response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	raw, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ErrorStatus extracts the HTTP status from an API error, 0 otherwise.
func ErrorStatus(err error) int {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
