// Package backbone is the typed REST client of the backbone: external
// events, datawallet modifications, sync error reports and file content.
//
// Every request is rate limited, authenticated with an OAuth2 bearer token
// and retried with exponential backoff on network errors and 408/429/5xx
// responses. Failures surface as *APIError wrapping a sentinel error.
package backbone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "datawallet/1"
	apiPrefix      = "/api/v1"
)

// TokenSource provides bearer access tokens.
type TokenSource interface {
	Token() (string, error)
}

type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	Tokens            TokenSource
	DeviceID          string
	RequestsPerSecond float64
	Logger            logging.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	deviceID   string
	limiter    *rate.Limiter
	log        logging.Logger

	// sleepFunc waits between retries; tests replace it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     opts.Tokens,
		deviceID:   opts.DeviceID,
		limiter:    rate.NewLimiter(limit, burst),
		log:        opts.Logger.With("module", "backbone"),
		sleepFunc:  timeSleep,
	}
}

// WithTokens returns a copy of c that authenticates with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// do sends one API call. in is JSON encoded when non-nil, the response is
// decoded into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("backbone: encode request: %w", err)
		}
	}

	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.send(ctx, method, path, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backbone: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, target string, body []byte) (*http.Response, error) {
	var attempt int
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("backbone: request canceled: %w", err)
		}

		resp, err := c.doOnce(ctx, method, target, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("backbone: request canceled: %w", ctx.Err())
			}
			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.log.Warn(ctx, "retrying after network error",
					"method", method, "path", path, "attempt", attempt+1,
					"backoff", backoff, "error", err)
				if err := c.sleepFunc(ctx, backoff); err != nil {
					return nil, fmt.Errorf("backbone: request canceled: %w", err)
				}
				attempt++
				continue
			}
			return nil, fmt.Errorf("%w: %s %s failed after %d retries: %v", ErrUnavailable, method, path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.log.Debug(ctx, "request succeeded", "method", method, "path", path, "status", resp.StatusCode)
			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.log.Warn(ctx, "retrying after HTTP error",
				"method", method, "path", path, "status", resp.StatusCode,
				"attempt", attempt+1, "backoff", backoff)
			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("backbone: request canceled: %w", err)
			}
			attempt++
			continue
		}

		if attempt > 0 {
			c.log.Error(ctx, "request failed after retries",
				"method", method, "path", path, "status", resp.StatusCode, "attempts", attempt+1)
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("X-Request-Id"),
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+tok)
	}
	if c.deviceID != "" {
		req.Header.Set(common.DeviceHeader, c.deviceID)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryBackoff honors Retry-After (in seconds) on 429 and 503 responses.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	return time.Duration(backoff + jitter)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
