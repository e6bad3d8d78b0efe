// Package portal implements backup.Catalog against an ArcGIS-style sharing
// REST API: token sign-in, item search, service metadata, export jobs,
// downloads and item deletion.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"ago-backup/internal/backup"
	apperrors "ago-backup/internal/errors"
	"ago-backup/internal/logging"
)

const restPath = "/sharing/rest"

var _ backup.Catalog = (*Client)(nil)

// PortalError is the error envelope returned by the portal, or an HTTP error
// status when the response carried no envelope.
type PortalError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Op      string   `json:"-"`
}

func (e *PortalError) Error() string {
	msg := fmt.Sprintf("portal %s: %d %s", e.Op, e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// StatusCode lets the error classifier treat portal codes like HTTP codes
func (e *PortalError) StatusCode() int {
	return e.Code
}

// IsTokenError reports whether err is an invalid or missing token response
func IsTokenError(err error) bool {
	var pe *PortalError
	return errors.As(err, &pe) && (pe.Code == 498 || pe.Code == 499)
}

type errorEnvelope struct {
	Error *PortalError `json:"error"`
}

// Options configures a Client
type Options struct {
	Portal       backup.PortalConfig
	PollInterval time.Duration
	Retry        apperrors.RetryConfig
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Client talks to one portal on behalf of one user. It is safe for
// concurrent use once signed in.
type Client struct {
	baseURL      string
	config       backup.PortalConfig
	http         *http.Client
	logger       *logging.Logger
	retry        *apperrors.RetryHandler
	pollInterval time.Duration

	mu       sync.RWMutex
	token    string
	expires  time.Time
	username string
}

// NewClient creates a portal client. Call SignIn before any other method.
func NewClient(opts Options) (*Client, error) {
	if opts.Portal.URL == "" {
		return nil, fmt.Errorf("portal URL is required")
	}
	u, err := url.Parse(opts.Portal.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid portal URL %q", opts.Portal.URL)
	}

	opts.Portal.SetDefaults()
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = apperrors.DefaultRetryConfig()
	}
	if opts.HTTPClient == nil {
		// Per-call deadlines come from contexts; a client timeout would cut
		// long archive downloads short
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}

	base := strings.TrimRight(opts.Portal.URL, "/")
	if !strings.HasSuffix(base, restPath) {
		base += restPath
	}

	return &Client{
		baseURL:      base,
		config:       opts.Portal,
		http:         opts.HTTPClient,
		logger:       opts.Logger,
		retry:        apperrors.NewRetryHandler(opts.Retry),
		pollInterval: opts.PollInterval,
	}, nil
}

// SignIn exchanges the configured credentials for a portal token
func (c *Client) SignIn(ctx context.Context) error {
	if c.config.Username == "" || c.config.Password == "" {
		return apperrors.NewAppError(apperrors.ErrorTypeAuthentication,
			"portal username and password are required", nil)
	}

	params := url.Values{}
	params.Set("username", c.config.Username)
	params.Set("password", c.config.Password)
	params.Set("referer", c.config.Referer)
	params.Set("client", "referer")
	params.Set("expiration", strconv.Itoa(c.config.TokenExpiration))

	var resp struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"`
	}
	if err := c.do(ctx, "generateToken", http.MethodPost, c.baseURL+"/generateToken", params, false, &resp); err != nil {
		// Rejected credentials come back as a 400 envelope
		var pe *PortalError
		if errors.As(err, &pe) && pe.Code < 500 {
			return apperrors.NewAppError(apperrors.ErrorTypeAuthentication, "portal sign-in failed", err).
				WithContext("username", c.config.Username)
		}
		return apperrors.NewErrorClassifier().ClassifyError(err).
			WithContext("username", c.config.Username)
	}
	if resp.Token == "" {
		return apperrors.NewAppError(apperrors.ErrorTypeAuthentication, "portal returned an empty token", nil)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.expires = time.UnixMilli(resp.Expires)
	c.username = c.config.Username
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"portal":   c.baseURL,
		"username": c.config.Username,
		"token":    logging.RedactToken(resp.Token),
		"expires":  c.expires.Format(time.RFC3339),
	}).Info("Signed in to portal")
	return nil
}

// SignedIn reports whether the client holds a token that has not expired
func (c *Client) SignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && (c.expires.IsZero() || time.Now().Before(c.expires))
}

// Username returns the signed-in user
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// read performs an idempotent GET with retries on recoverable failures
func (c *Client) read(ctx context.Context, op, endpoint string, params url.Values, out interface{}) error {
	return c.retry.Retry(ctx, func() error {
		return c.call(ctx, op, http.MethodGet, endpoint, params, out)
	})
}

// call performs an authenticated request, signing in again once if the
// portal reports the token as invalid or expired.
func (c *Client) call(ctx context.Context, op, method, endpoint string, params url.Values, out interface{}) error {
	err := c.do(ctx, op, method, endpoint, params, true, out)
	if err == nil || !IsTokenError(err) || c.config.Password == "" {
		return err
	}

	c.logger.WithField("operation", op).Warn("Portal token rejected, signing in again")
	if signInErr := c.SignIn(ctx); signInErr != nil {
		return signInErr
	}
	return c.do(ctx, op, method, endpoint, params, true, out)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, params url.Values, withToken bool, out interface{}) error {
	values := url.Values{}
	for k, v := range params {
		values[k] = append([]string(nil), v...)
	}
	values.Set("f", "json")
	if withToken {
		if token := c.currentToken(); token != "" {
			values.Set("token", token)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, method, endpoint, values)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("portal %s: read response: %w", op, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"operation": op,
		"method":    method,
		"status":    resp.StatusCode,
		"duration":  time.Since(start).String(),
	}).Debug("Portal request")

	return decodeResponse(op, resp.StatusCode, body, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, values url.Values) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+values.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(values.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create portal request: %w", err)
	}

	// Tokens are bound to the referer they were generated for
	req.Header.Set("Referer", c.config.Referer)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// decodeResponse turns a portal response into out or a *PortalError.
// The portal reports most errors with HTTP 200 and an error envelope.
func decodeResponse(op string, status int, body []byte, out interface{}) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.Op = op
		return env.Error
	}

	if status >= 400 {
		return &PortalError{Code: status, Message: http.StatusText(status), Op: op}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("portal %s: invalid response: %w", op, err)
	}
	return nil
}
