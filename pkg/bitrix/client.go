// Package bitrix is a rate-limited client for the Bitrix24 REST API. It
// covers the surface the aggregation engine needs: filtered list methods
// with ID-watermark pagination and batched single-entity reads.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/economy-energy/crm-aggregator/internal/resilience"
)

// pageSize is the fixed Bitrix list page size. The remote caps pages at 50
// regardless of the requested limit, so the paginator assumes exactly this.
const pageSize = 50

// maxBatchCommands is the Bitrix limit on commands per batch call.
const maxBatchCommands = 50

// Client is the Bitrix24 API surface used by the aggregation engine.
type Client interface {
	// List fetches one page of a list method (crm.lead.list, crm.deal.list).
	List(ctx context.Context, method string, req ListRequest) (*ListPage, error)

	// Batch executes up to 50 read commands in one call and returns the raw
	// result per command label.
	Batch(ctx context.Context, commands map[string]string) (map[string]json.RawMessage, error)
}

// Options configures the HTTP client.
type Options struct {
	Host  string
	User  int
	Token string

	// MaxInFlight bounds concurrent requests to the remote, process-wide.
	// Default: 10.
	MaxInFlight int

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64

	// Timeout is the per-attempt deadline. Default: 15s.
	Timeout time.Duration

	// Retry is the retry policy for transient failures.
	Retry resilience.Policy

	// Breaker optionally short-circuits calls while the remote is down.
	Breaker *resilience.Breaker

	// HTTPClient overrides the default http.Client (used in tests).
	HTTPClient *http.Client

	// BaseURL overrides the https://{Host} prefix (used in tests).
	BaseURL string
}

type httpClient struct {
	baseURL string
	path    string
	http    *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	retry   resilience.Policy
	breaker *resilience.Breaker
}

// NewClient creates a Bitrix24 REST client.
func NewClient(opts Options) Client {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://" + opts.Host
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: opts.MaxInFlight,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	c := &httpClient{
		baseURL: baseURL,
		path:    fmt.Sprintf("/rest/%d/%s", opts.User, opts.Token),
		http:    hc,
		sem:     semaphore.NewWeighted(int64(opts.MaxInFlight)),
		retry:   opts.Retry,
		breaker: opts.Breaker,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(int(opts.RequestsPerSecond), 1))
	}
	return c
}

func (c *httpClient) List(ctx context.Context, method string, req ListRequest) (*ListPage, error) {
	env, err := c.call(ctx, method, req)
	if err != nil {
		return nil, err
	}

	var records []Record
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &records); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("bitrix: decode %s result", method))
		}
	}
	return &ListPage{Records: records, Next: env.Next}, nil
}

func (c *httpClient) Batch(ctx context.Context, commands map[string]string) (map[string]json.RawMessage, error) {
	if len(commands) == 0 {
		return nil, nil
	}
	if len(commands) > maxBatchCommands {
		return nil, eris.Errorf("bitrix: batch of %d exceeds the %d command limit", len(commands), maxBatchCommands)
	}

	env, err := c.call(ctx, "batch", batchRequest{Halt: 0, Cmd: commands})
	if err != nil {
		return nil, err
	}

	var br batchResult
	if err := json.Unmarshal(env.Result, &br); err != nil {
		return nil, eris.Wrap(err, "bitrix: decode batch result")
	}
	return br.Result, nil
}

// call issues one logical request: slot acquisition, then per-attempt
// throttle, breaker check, and HTTP round trip under the retry policy. The
// slot is held for the whole logical call and released on every exit path.
func (c *httpClient) call(ctx context.Context, method string, payload any) (*envelope, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "bitrix: acquire slot")
	}
	defer c.sem.Release(1)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("bitrix: marshal %s request", method))
	}

	policy := c.retry
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger(method)
	}

	return resilience.DoVal(ctx, policy, func(ctx context.Context) (*envelope, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "bitrix: rate limit")
			}
		}
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				return nil, err
			}
		}
		env, err := c.attempt(ctx, method, body)
		if c.breaker != nil {
			c.breaker.Record(err)
		}
		return env, err
	})
}

func (c *httpClient) attempt(ctx context.Context, method string, body []byte) (*envelope, error) {
	url := c.baseURL + c.path + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("bitrix: create %s request", method))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("bitrix: %s request", method))
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("bitrix: read %s response", method))
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("bitrix: %s returned status %d", method, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("bitrix: decode %s envelope", method))
	}
	if env.Error != "" {
		return nil, eris.Errorf("bitrix: %s failed: %s (%s)", method, env.Error, env.ErrorDescription)
	}
	return &env, nil
}
