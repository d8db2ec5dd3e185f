package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"gopherchat/internal/logger"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
)

var (
	// ErrSessionExpired means the refresh token was rejected; stored tokens are cleared.
	ErrSessionExpired = errors.New("session expired, please log in again")
	ErrNotLoggedIn    = errors.New("not logged in")
)

// APIError is a non-2xx reply decoded from the server envelope.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the chat API with bearer auth. A 401 from any route except
// login and refresh triggers one shared refresh; every waiting call replays
// with the new access token or fails together.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	refreshes  singleflight.Group
	log        *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		tokens:     NewMemoryTokenStore(),
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "client")
	return c
}

func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// call sends one request and decodes the envelope data into out (which may be nil).
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request failed: %w", err)
		}
		payload = raw
	}

	tokens, err := c.tokens.Load()
	if err != nil {
		return err
	}

	status, env, err := c.send(ctx, method, path, payload, tokens.AccessToken)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && retryable(path) && tokens.RefreshToken != "" {
		access, err := c.refreshAccess(ctx, tokens.AccessToken)
		if err != nil {
			return err
		}
		status, env, err = c.send(ctx, method, path, payload, access)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{Status: status, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data failed: %w", err)
		}
	}
	return nil
}

// refreshAccess returns a fresh access token. Concurrent callers share one
// refresh request. stale is the token the caller was rejected with; if the
// store already holds a different one, no request is made.
func (c *Client) refreshAccess(ctx context.Context, stale string) (string, error) {
	v, err, shared := c.refreshes.Do("refresh", func() (interface{}, error) {
		current, err := c.tokens.Load()
		if err != nil {
			return "", err
		}
		if current.AccessToken != "" && current.AccessToken != stale {
			return current.AccessToken, nil
		}
		if current.RefreshToken == "" {
			return "", ErrSessionExpired
		}

		// the request outlives the first caller's cancellation; other callers wait on it
		refreshCtx := context.WithoutCancel(ctx)
		payload, _ := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
		status, env, err := c.send(refreshCtx, http.MethodPost, refreshPath, payload, "")
		if err != nil {
			return "", err
		}
		if status != http.StatusOK {
			c.log.Warnw("refresh rejected, clearing session", "status", status, "code", env.Code)
			if clearErr := c.tokens.Clear(); clearErr != nil {
				c.log.Errorw("clear tokens failed", "error", clearErr)
			}
			return "", ErrSessionExpired
		}

		var data struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" {
			return "", fmt.Errorf("decode refresh response failed: %w", ErrSessionExpired)
		}
		current.AccessToken = data.AccessToken
		if err := c.tokens.Save(current); err != nil {
			return "", err
		}
		c.log.Debugw("access token refreshed")
		return data.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.log.Debugw("joined in-flight refresh")
	}
	return v.(string), nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, accessToken string) (int, envelope, error) {
	var env envelope
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, env, fmt.Errorf("build request failed: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, env, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, env, fmt.Errorf("read response failed: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			env.Message = strings.TrimSpace(string(raw))
		}
	}
	return resp.StatusCode, env, nil
}

func retryable(path string) bool {
	return path != loginPath && path != refreshPath
}
