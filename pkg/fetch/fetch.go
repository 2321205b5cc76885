// Package fetch is the HTTP client the ingest steps use to pull upstream
// exports. Retries with exponential backoff live here, not in the
// persistence core.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/logger"
)

const userAgent = "subsets-market-connectors/1.0"

// Config tunes retry behavior. RetryAttempts is the total number of tries,
// including the first.
type Config struct {
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMax      time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns the retry policy used by the connectors.
func DefaultConfig() Config {
	return Config{
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
		RetryMax:      30 * time.Second,
		Timeout:       60 * time.Second,
	}
}

// Client fetches upstream files.
type Client struct {
	http *http.Client
	cfg  Config
	log  *zap.Logger
}

// NewClient creates a fetch client.
func NewClient(cfg Config) *Client {
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  logger.With(zap.String("component", "fetch")),
	}
}

// Get fetches a URL, retrying transient failures and 5xx responses with
// exponential backoff. Returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.log.Warn("retrying fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
			if delay > c.cfg.RetryMax {
				delay = c.cfg.RetryMax
			}
		}

		body, retryable, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, errors.Newf(errors.ErrorTypeConnection, "server error %d from %s", resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, errors.Newf(errors.ErrorTypeConnection, "unexpected status %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}
	return data, false, nil
}
