package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rewired-gh/comfortdash/internal/models"
)

// maxBodyBytes caps a collaborator response.
const maxBodyBytes = 8 << 20

// ClientConfig holds optional HTTP client tuning.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client fetches the reading batch over HTTP.
type Client struct {
	url            string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a collaborator client for url.
func NewClient(url string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = 200 * time.Millisecond
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// URL returns the collaborator endpoint.
func (c *Client) URL() string {
	return c.url
}

// FetchReadings performs one fetch. Every error wraps ErrFetchFailure.
func (c *Client) FetchReadings(ctx context.Context) ([]models.RawReading, error) {
	resp, err := c.doRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrFetchFailure, err)
	}

	raws, err := DecodeBatch(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode readings: %v", ErrFetchFailure, err)
	}
	return raws, nil
}

// doRequest performs the GET, retrying transport errors and 5xx responses.
func (c *Client) doRequest(ctx context.Context) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
