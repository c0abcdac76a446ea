// Package transport issues authenticated HTTP requests to the wallet platform.
//
// Every request gets its own freshly minted bearer token; tokens are never
// cached or shared between calls. The underlying *http.Client is shared by all
// callers and carries no per-call state: authentication headers are attached
// to each *http.Request only.
//
// The transport never retries. Some platform operations (faucet, transfers)
// are not idempotent, so retry policy is left to the caller.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/better-wallet/wallet-agent/internal/logger"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

// DefaultTimeout bounds a request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes = 4 << 20

// Validator is implemented by response schemas that check themselves after decoding.
type Validator interface {
	Validate() error
}

// Config configures a Transport.
type Config struct {
	// BaseURL is the platform origin, e.g. https://api.cdp.coinbase.com.
	BaseURL string

	// Minter produces the bearer token for each request.
	Minter TokenMinter

	// HTTPClient is shared between transports and goroutines. Defaults to a
	// new client.
	HTTPClient *http.Client

	// Timeout bounds each request. It is clamped to the minter's TTL so that a
	// token cannot expire while its request is in flight.
	Timeout time.Duration

	// RateLimit is the sustained outbound request rate; 0 disables limiting.
	RateLimit float64
	Burst     int

	// Metrics is optional.
	Metrics *Metrics

	// MaxResponseBytes bounds response bodies. Larger bodies are rejected, not
	// truncated. Defaults to DefaultMaxResponseBytes.
	MaxResponseBytes int64

	UserAgent string
}

// Transport is a signed-request client for one platform base URL.
// It is safe for concurrent use.
type Transport struct {
	baseURL   string
	minter    TokenMinter
	client    *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   *Metrics
	maxBody   int64
	userAgent string
}

// New validates cfg and creates a Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Minter == nil {
		return nil, apperrors.Configuration("token minter is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.Configuration(fmt.Sprintf("base URL must be absolute, got %q", cfg.BaseURL))
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, apperrors.Configuration(fmt.Sprintf("base URL scheme must be http or https, got %q", base.Scheme))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl := cfg.Minter.TTL(); ttl > 0 && timeout > ttl {
		timeout = ttl
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "wallet-agent"
	}

	return &Transport{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		minter:    cfg.Minter,
		client:    client,
		timeout:   timeout,
		limiter:   limiter,
		metrics:   cfg.Metrics,
		maxBody:   maxBody,
		userAgent: userAgent,
	}, nil
}

// BaseURL returns the platform origin this transport targets.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Scheme returns the token scheme in use.
func (t *Transport) Scheme() Scheme {
	return t.minter.Scheme()
}

// Timeout returns the effective per-request timeout.
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// MintToken mints a fresh token for method and path.
func (t *Transport) MintToken(method, path string) (string, error) {
	token, err := t.minter.Mint(method, path)
	t.metrics.observeMint(t.minter.Scheme(), err)
	return token, err
}

// Request sends one signed request and decodes a 2xx JSON body into out.
//
// query is appended to the URL but is not part of the signed path. body, when
// non-nil, is encoded as JSON. out may be nil, in which case a non-empty body
// only has to be valid JSON. If out implements Validator it is validated after
// decoding.
//
// Errors: remote_error for non-2xx responses (status and verbatim body),
// decode_error for a 2xx body that does not fit out, transport_error when no
// response was received, crypto_error when the token cannot be minted.
func (t *Transport) Request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	method = strings.ToUpper(method)

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInvalidArgument, "Request body is not serializable", err)
		}
		payload = data
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeRateLimited, "Outbound rate limit wait aborted", err)
		}
	}

	// Mint immediately before sending so the whole validity window is
	// available to this request.
	token, err := t.MintToken(method, path)
	if err != nil {
		logger.Error(ctx, "failed to mint platform token", "method", method, "path", path, "error", err)
		return err
	}

	target := t.baseURL + path
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidArgument, "Cannot build platform request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.metrics.observeRequest(method, 0, time.Since(start))
		logger.Warn(ctx, "platform request failed", "method", method, "path", path, "error", err)
		return apperrors.Transport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	elapsed := time.Since(start)
	t.metrics.observeRequest(method, resp.StatusCode, elapsed)
	if err != nil {
		return apperrors.Transport(fmt.Errorf("read response body: %w", err))
	}
	if int64(len(data)) > t.maxBody {
		logger.Warn(ctx, "platform response too large", "method", method, "path", path, "status", resp.StatusCode, "limit", t.maxBody)
		return apperrors.ResponseTooLarge(resp.StatusCode, t.maxBody)
	}

	logger.Debug(ctx, "platform request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
		"headers", RedactHeaders(req.Header),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn(ctx, "platform returned error status", "method", method, "path", path, "status", resp.StatusCode)
		return apperrors.Remote(resp.StatusCode, string(data))
	}

	return decodeBody(data, out)
}

// Get is Request with method GET and no body.
func (t *Transport) Get(ctx context.Context, path string, query url.Values, out any) error {
	return t.Request(ctx, http.MethodGet, path, query, nil, out)
}

// Post is Request with method POST.
func (t *Transport) Post(ctx context.Context, path string, query url.Values, body, out any) error {
	return t.Request(ctx, http.MethodPost, path, query, body, out)
}

func decodeBody(data []byte, out any) error {
	trimmed := bytes.TrimSpace(data)

	if out == nil {
		if len(trimmed) > 0 && !json.Valid(trimmed) {
			return apperrors.Decode(errors.New("response body is not valid JSON"))
		}
		return nil
	}

	if len(trimmed) == 0 {
		return apperrors.Decode(errors.New("empty response body"))
	}

	if err := json.Unmarshal(trimmed, out); err != nil {
		return apperrors.Decode(err)
	}

	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return apperrors.Decode(err)
		}
	}
	return nil
}
