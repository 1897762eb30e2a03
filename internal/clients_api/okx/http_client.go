package okx

// Client for the OKX DEX aggregator API
// This file is the transport layer: request signing, rate limiting, circuit breaker, retries
// Endpoint wrappers live in aggregator.go

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"airdrop-bot/internal/infra/log"
	"airdrop-bot/internal/infra/retry"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://www.okx.com"

// Credentials are the four values issued with an OKX Web3 API key.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	ProjectID  string
}

type Client struct {
	baseURL         string
	creds           Credentials
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	circuitBreaker  *gobreaker.CircuitBreaker
	retryOpts       retry.Options
	maxResponseSize int64
	now             func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func WithRetry(opts retry.Options) Option { return func(c *Client) { c.retryOpts = opts } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithRateLimit sets requests per second, burst is twice the rate.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.rateLimiter = nil
			return
		}
		burst := int(perSecond * 2)
		if burst < 1 {
			burst = 1
		}
		c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		creds:       creds,
		rateLimiter: rate.NewLimiter(rate.Limit(2), 4),
		circuitBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "OKXAggregator",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		retryOpts:       retry.HTTPOptions,
		maxResponseSize: 10 * 1024 * 1024, // 10MB
		now:             time.Now,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timestamp formats t as the UTC ISO-8601 millisecond value OKX expects.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Sign returns base64(HMAC-SHA256(secret, timestamp+method+requestPath+body)).
// requestPath carries "?query" for GET, body is the JSON payload for POST.
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Get performs a signed GET of path with params.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	requestPath := path
	if len(params) > 0 {
		requestPath += "?" + params.Encode()
	}
	return c.MakeRequest(ctx, http.MethodGet, requestPath, nil)
}

// MakeRequest sends a signed request through the rate limiter, breaker and retry policy.
func (c *Client) MakeRequest(ctx context.Context, method, requestPath string, body interface{}) ([]byte, error) {
	requestID := log.GenerateRequestID()
	startTime := time.Now()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	err := retry.Do(ctx, c.retryOpts, func() error {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		out, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.makeRequestWithContext(ctx, requestID, method, requestPath, payload)
		})
		if err != nil {
			return err
		}
		respBody = out.([]byte)
		return nil
	})
	if err != nil {
		log.LogError("OKX request failed",
			zap.String("request_id", requestID),
			zap.String("endpoint", requestPath),
			zap.Int64("duration_ms", time.Since(startTime).Milliseconds()),
			zap.Error(err))
		return nil, err
	}

	return respBody, nil
}

func (c *Client) makeRequestWithContext(ctx context.Context, requestID, method, requestPath string, payload []byte) ([]byte, error) {
	startTime := time.Now()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := Timestamp(c.now())
	signed := ""
	if method != http.MethodGet {
		signed = string(payload)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.creds.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", Sign(c.creds.SecretKey, timestamp, method, requestPath, signed))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.creds.Passphrase)
	req.Header.Set("OK-ACCESS-PROJECT", c.creds.ProjectID)

	log.LogRequest(requestID, method, requestPath)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(startTime).Milliseconds(), zap.String("endpoint", requestPath), zap.Error(err))
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		log.LogResponse(requestID, resp.StatusCode, time.Since(startTime).Milliseconds(), zap.String("endpoint", requestPath), zap.Error(err))
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	duration := time.Since(startTime).Milliseconds()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", requestPath))
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", requestPath))
	log.LogDebugJSON("OKX response "+requestPath, respBody)
	return respBody, nil
}
