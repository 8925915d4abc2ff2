// Package metaclient implements the protected call-out to the external
// metadata service that validates bearer tokens, layering exponential
// backoff retry inside a three-state circuit breaker.
package metaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/auth"
)

// RetryConfig configures the retry loop wrapped around each breaker-gated
// call.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig returns the spec defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}
}

// Client validates bearer tokens against an external metadata service
// over HTTP, protected by a circuit breaker and retry loop.
type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
	breaker    *Breaker
	retry      RetryConfig
}

// Config configures a Client.
type Config struct {
	BaseURL string
	AdminKey string
	Timeout  time.Duration
	Breaker  BreakerConfig
	Retry    RetryConfig
}

// New constructs a metadata-service Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		adminKey:   cfg.AdminKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    NewBreaker(cfg.Breaker),
		retry:      retry,
	}
}

// BreakerState exposes the current circuit breaker state, for metrics.
func (c *Client) BreakerState() State { return c.breaker.State() }

// transientError marks an error as retryable (network failure or 5xx);
// deterministic 4xx responses (expired, invalid signature) are not
// wrapped and therefore never retried.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// ValidateToken calls out to the metadata service to resolve tokenString
// into Claims. The call is gated by the circuit breaker and retried with
// exponential backoff on transient faults only.
func (c *Client) ValidateToken(ctx context.Context, tokenString string) (auth.Claims, error) {
	if err := c.breaker.Allow(); err != nil {
		return auth.Claims{}, ErrCircuitOpen
	}

	var claims auth.Claims
	op := func() error {
		var err error
		claims, err = c.doValidate(ctx, tokenString)
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retry.BaseDelay
	bo := backoff.WithMaxRetries(exp, uint64(c.retry.MaxAttempts-1))

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		logger.WarnCtx(ctx, "meta client call failed", logger.Attempt(attempt), logger.Err(err))

		var te *transientError
		if !errors.As(err, &te) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		c.breaker.Failure()
		return auth.Claims{}, err
	}

	c.breaker.Success()
	return claims, nil
}

// ErrCircuitOpen is returned when the breaker is tripped; the HTTP layer
// maps this to 503.
var ErrCircuitOpen = fmt.Errorf("metadata service circuit open")

func (c *Client) doValidate(ctx context.Context, tokenString string) (auth.Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", nil)
	if err != nil {
		return auth.Claims{}, err
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)
	if c.adminKey != "" {
		req.Header.Set("X-Meta-Key", c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auth.Claims{}, &transientError{err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return auth.Claims{}, &transientError{err: fmt.Errorf("meta service returned %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return auth.Claims{}, fmt.Errorf("token rejected: %s", string(body))
	case resp.StatusCode != http.StatusOK:
		return auth.Claims{}, fmt.Errorf("unexpected meta service status %d", resp.StatusCode)
	}

	var claims auth.Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		return auth.Claims{}, fmt.Errorf("decoding meta service response: %w", err)
	}
	return claims, nil
}
