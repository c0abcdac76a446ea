package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/wallet-agent/internal/keystore"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
	"github.com/better-wallet/wallet-agent/tests/helpers"
	"github.com/better-wallet/wallet-agent/tests/mocks"
)

type walletResponse struct {
	ID        string `json:"id"`
	NetworkID string `json:"network_id"`
}

func (w *walletResponse) Validate() error {
	if w.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

type testEnv struct {
	platform *mocks.MockPlatform
	store    *keystore.KeyStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cred := helpers.GenerateCredential(t)
	store, err := keystore.New(keystore.Credential{KeyID: cred.Name, PrivateKey: cred.PEM})
	require.NoError(t, err)

	platform := mocks.NewMockPlatform()
	t.Cleanup(platform.Close)
	platform.RegisterKey(cred.Name, &cred.PrivateKey.PublicKey)

	return &testEnv{platform: platform, store: store}
}

func (e *testEnv) transport(t *testing.T, scheme Scheme, mutate func(*Config)) *Transport {
	t.Helper()

	minter, err := NewMinter(scheme, e.store, 0)
	require.NoError(t, err)

	cfg := Config{
		BaseURL:    e.platform.URL(),
		Minter:     minter,
		HTTPClient: e.platform.Client(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	tr, err := New(cfg)
	require.NoError(t, err)
	return tr
}

func TestTransport_SignedRequest(t *testing.T) {
	env := newTestEnv(t)
	wallet := env.platform.AddWallet("base-sepolia")
	tr := env.transport(t, SchemeURIBound, nil)

	var out walletResponse
	err := tr.Get(context.Background(), "/platform/v1/wallets/"+wallet.ID, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, out.ID)
	assert.Equal(t, "base-sepolia", out.NetworkID)

	req, ok := env.platform.LastRequest()
	require.True(t, ok)
	assert.Equal(t, []interface{}{"GET /platform/v1/wallets/" + wallet.ID}, req.Claims["uris"])
	assert.Equal(t, helpers.TestKeyName, req.Claims["sub"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "wallet-agent", req.Header.Get("User-Agent"))
}

func TestTransport_PostBody(t *testing.T) {
	env := newTestEnv(t)
	tr := env.transport(t, SchemeURIBound, nil)

	body := map[string]interface{}{
		"wallet": map[string]interface{}{"network_id": "base-sepolia", "use_server_signer": true},
	}

	var out walletResponse
	require.NoError(t, tr.Post(context.Background(), "/platform/v1/wallets", nil, body, &out))
	assert.NotEmpty(t, out.ID)

	req, ok := env.platform.LastRequest()
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.JSONEq(t, `{"wallet":{"network_id":"base-sepolia","use_server_signer":true}}`, string(req.Body))
}

func TestTransport_FreshTokenPerRequest(t *testing.T) {
	env := newTestEnv(t)
	wallet := env.platform.AddWallet("base-sepolia")
	tr := env.transport(t, SchemeURIBound, nil)

	ctx := context.Background()
	path := "/platform/v1/wallets/" + wallet.ID
	require.NoError(t, tr.Get(ctx, path, nil, nil))
	require.NoError(t, tr.Get(ctx, path, nil, nil))

	reqs := env.platform.Requests()
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].Token, reqs[1].Token)
	assert.NotEqual(t, reqs[0].TokenHeader["nonce"], reqs[1].TokenHeader["nonce"])
	assert.NotEqual(t, reqs[0].Header.Get("Authorization"), reqs[1].Header.Get("Authorization"))
}

func TestTransport_QueryIsNotSigned(t *testing.T) {
	env := newTestEnv(t)
	wallet := env.platform.AddWallet("base-sepolia")
	tr := env.transport(t, SchemeURIBound, nil)

	path := "/platform/v1/wallets/" + wallet.ID + "/addresses/" + wallet.AddressID + "/faucet"
	err := tr.Post(context.Background(), path, url.Values{"asset_id": {"eth"}}, nil, nil)
	require.NoError(t, err)

	req, ok := env.platform.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "asset_id=eth", req.RawQuery)
	assert.Equal(t, []interface{}{"POST " + path}, req.Claims["uris"])
}

func TestTransport_StaticScheme(t *testing.T) {
	env := newTestEnv(t)
	env.platform.SetStaticMode(true)
	wallet := env.platform.AddWallet("base-sepolia")
	tr := env.transport(t, SchemeStatic, nil)
	assert.Equal(t, SchemeStatic, tr.Scheme())

	var out walletResponse
	require.NoError(t, tr.Get(context.Background(), "/platform/v1/wallets/"+wallet.ID, nil, &out))
	assert.Equal(t, wallet.ID, out.ID)

	req, ok := env.platform.LastRequest()
	require.True(t, ok)
	assert.Equal(t, req.Claims["iss"], req.Claims["sub"])
	assert.NotContains(t, req.TokenHeader, "nonce")
}

func TestTransport_RemoteError(t *testing.T) {
	env := newTestEnv(t)
	tr := env.transport(t, SchemeURIBound, nil)

	body := `{"code":"unauthorized","message":"Invalid API key"}`
	env.platform.SetFailure(http.StatusUnauthorized, body)

	err := tr.Get(context.Background(), "/platform/v1/wallets/abc", nil, &walletResponse{})
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeRemote, appErr.Code)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode)
	assert.Equal(t, body, appErr.Body)
}

func TestTransport_RemoteNotFound(t *testing.T) {
	env := newTestEnv(t)
	tr := env.transport(t, SchemeURIBound, nil)

	err := tr.Get(context.Background(), "/platform/v1/wallets/missing", nil, &walletResponse{})

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeRemote, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.Contains(t, appErr.Body, "wallet not found")
}

func TestTransport_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		out  any
	}{
		{name: "not json", body: "<html>oops</html>", out: &walletResponse{}},
		{name: "empty body", body: "", out: &walletResponse{}},
		{name: "type mismatch", body: `{"id": 42}`, out: &walletResponse{}},
		{name: "missing required field", body: `{"network_id":"base-sepolia"}`, out: &walletResponse{}},
		{name: "invalid json without target", body: `{"id":`, out: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tr := env.transport(t, SchemeURIBound, nil)
			env.platform.SetRawResponse(http.MethodGet, "/platform/v1/wallets/w1", tt.body)

			err := tr.Get(context.Background(), "/platform/v1/wallets/w1", nil, tt.out)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDecode), "got %v", err)
		})
	}
}

func TestTransport_ResponseTooLarge(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(p *mocks.MockPlatform, body string)
		status int
	}{
		{
			name:   "success body",
			setup:  func(p *mocks.MockPlatform, body string) { p.SetRawResponse(http.MethodGet, "/platform/v1/wallets/w1", body) },
			status: http.StatusOK,
		},
		{
			name:   "error body",
			setup:  func(p *mocks.MockPlatform, body string) { p.SetFailure(http.StatusBadGateway, body) },
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tr := env.transport(t, SchemeURIBound, func(c *Config) { c.MaxResponseBytes = 64 })

			body := `{"id":"w1","network_id":"base-sepolia","padding":"` + strings.Repeat("x", 64) + `"}`
			tt.setup(env.platform, body)

			var out walletResponse
			err := tr.Get(context.Background(), "/platform/v1/wallets/w1", nil, &out)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok, "expected AppError, got %v", err)
			assert.Equal(t, apperrors.ErrCodeDecode, appErr.Code)
			assert.Equal(t, "Platform response too large", appErr.Message)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Empty(t, appErr.Body)
		})
	}
}

func TestTransport_ResponseAtLimitAccepted(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":"w1","network_id":"base-sepolia"}`
	tr := env.transport(t, SchemeURIBound, func(c *Config) { c.MaxResponseBytes = int64(len(body)) })
	env.platform.SetRawResponse(http.MethodGet, "/platform/v1/wallets/w1", body)

	var out walletResponse
	require.NoError(t, tr.Get(context.Background(), "/platform/v1/wallets/w1", nil, &out))
	assert.Equal(t, "w1", out.ID)
}

func TestTransport_UnknownFieldsTolerated(t *testing.T) {
	env := newTestEnv(t)
	tr := env.transport(t, SchemeURIBound, nil)
	env.platform.SetRawResponse(http.MethodGet, "/platform/v1/wallets/w1", `{"id":"w1","network_id":"base-sepolia","feature_set":{"faucet":true}}`)

	var out walletResponse
	require.NoError(t, tr.Get(context.Background(), "/platform/v1/wallets/w1", nil, &out))
	assert.Equal(t, "w1", out.ID)
}

func TestTransport_Unreachable(t *testing.T) {
	env := newTestEnv(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	tr := env.transport(t, SchemeURIBound, func(c *Config) {
		c.BaseURL = deadURL
		c.HTTPClient = &http.Client{}
	})

	err := tr.Get(context.Background(), "/platform/v1/wallets/w1", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
}

func TestTransport_Timeout(t *testing.T) {
	env := newTestEnv(t)
	env.platform.SetDelayResponse(300 * time.Millisecond)
	tr := env.transport(t, SchemeURIBound, func(c *Config) {
		c.Timeout = 50 * time.Millisecond
	})

	err := tr.Get(context.Background(), "/platform/v1/wallets/w1", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTransport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_ConcurrentRequests(t *testing.T) {
	env := newTestEnv(t)
	wallet := env.platform.AddWallet("base-sepolia")
	tr := env.transport(t, SchemeURIBound, nil)

	const workers = 20
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out walletResponse
			errs[i] = tr.Get(context.Background(), "/platform/v1/wallets/"+wallet.ID, nil, &out)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	reqs := env.platform.Requests()
	require.Len(t, reqs, workers)
	nonces := make(map[interface{}]bool)
	for _, r := range reqs {
		nonces[r.TokenHeader["nonce"]] = true
	}
	assert.Len(t, nonces, workers)
}

func TestTransport_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	wallet := env.platform.AddWallet("base-sepolia")
	tr := env.transport(t, SchemeURIBound, func(c *Config) {
		c.RateLimit = 0.01
		c.Burst = 1
	})

	path := "/platform/v1/wallets/" + wallet.ID
	require.NoError(t, tr.Get(context.Background(), path, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Get(ctx, path, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimited))
	assert.Len(t, env.platform.Requests(), 1)
}

func TestTransport_Metrics(t *testing.T) {
	env := newTestEnv(t)
	wallet := env.platform.AddWallet("base-sepolia")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	tr := env.transport(t, SchemeURIBound, func(c *Config) {
		c.Metrics = metrics
	})

	ctx := context.Background()
	require.NoError(t, tr.Get(ctx, "/platform/v1/wallets/"+wallet.ID, nil, nil))
	require.Error(t, tr.Get(ctx, "/platform/v1/wallets/missing", nil, nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "404")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.mints.WithLabelValues("uri-bound", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
}

func TestNew_Validation(t *testing.T) {
	env := newTestEnv(t)
	minter, err := NewURIBoundMinter(env.store, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing minter", cfg: Config{BaseURL: "https://api.cdp.coinbase.com"}},
		{name: "relative base URL", cfg: Config{BaseURL: "/platform", Minter: minter}},
		{name: "empty base URL", cfg: Config{Minter: minter}},
		{name: "unsupported scheme", cfg: Config{BaseURL: "ftp://api.cdp.coinbase.com", Minter: minter}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
		})
	}
}

func TestNew_TimeoutClampedToTokenTTL(t *testing.T) {
	env := newTestEnv(t)

	short, err := NewURIBoundMinter(env.store, 20*time.Second)
	require.NoError(t, err)

	tr, err := New(Config{BaseURL: "https://api.cdp.coinbase.com/", Minter: short, Timeout: 2 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, tr.Timeout())
	assert.Equal(t, "https://api.cdp.coinbase.com", tr.BaseURL())

	tr, err = New(Config{BaseURL: "https://api.cdp.coinbase.com", Minter: short})
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, tr.Timeout())

	long, err := NewStaticMinter(env.store, 0)
	require.NoError(t, err)
	tr, err = New(Config{BaseURL: "https://api.cdp.coinbase.com", Minter: long})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, tr.Timeout())
}
