// Package mocks provides mock implementations for testing.
package mocks

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var noncePattern = regexp.MustCompile(`^[0-9]{16}$`)

// RecordedRequest is one request received by the mock platform.
type RecordedRequest struct {
	Method      string
	Path        string
	RawQuery    string
	Header      http.Header
	Body        []byte
	Token       string
	TokenHeader map[string]interface{}
	Claims      jwt.MapClaims
}

// MockWallet is a wallet held by the mock platform.
type MockWallet struct {
	ID        string
	NetworkID string
	AddressID string
}

// MockPlatform is an httptest server that behaves like the wallet platform:
// it verifies ES256 bearer tokens against registered public keys, enforces the
// method+path binding and nonce uniqueness of uri-bound tokens, and serves the
// wallet, faucet, transfer and balance endpoints from memory.
type MockPlatform struct {
	server *httptest.Server
	mu     sync.RWMutex

	keys       map[string]*ecdsa.PublicKey
	staticMode bool
	nonces     map[string]bool

	wallets  map[string]*MockWallet
	balances map[string][2]string

	// Behavior controls
	failStatus    int
	failBody      string
	rawResponses  map[string]string
	delayResponse time.Duration

	requests []RecordedRequest
}

// NewMockPlatform creates and starts a mock platform.
func NewMockPlatform() *MockPlatform {
	m := &MockPlatform{
		keys:         make(map[string]*ecdsa.PublicKey),
		nonces:       make(map[string]bool),
		wallets:      make(map[string]*MockWallet),
		balances:     make(map[string][2]string),
		rawResponses: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /platform/v1/wallets", m.handleCreateWallet)
	mux.HandleFunc("GET /platform/v1/wallets/{wallet_id}", m.handleGetWallet)
	mux.HandleFunc("POST /platform/v1/wallets/{wallet_id}/addresses/{address_id}/faucet", m.handleFaucet)
	mux.HandleFunc("POST /platform/v1/wallets/{wallet_id}/addresses/{address_id}/transfers", m.handleTransfer)
	mux.HandleFunc("GET /v2/accounts/{account_id}/balance", m.handleBalance)

	m.server = httptest.NewServer(m.authenticate(mux))
	return m
}

// URL returns the server origin.
func (m *MockPlatform) URL() string {
	return m.server.URL
}

// Client returns an HTTP client configured for the server.
func (m *MockPlatform) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the test server.
func (m *MockPlatform) Close() {
	m.server.Close()
}

// RegisterKey trusts pub for tokens whose key id is kid.
func (m *MockPlatform) RegisterKey(kid string, pub *ecdsa.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[kid] = pub
}

// SetStaticMode makes the server accept legacy static tokens instead of
// uri-bound ones.
func (m *MockPlatform) SetStaticMode(static bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staticMode = static
}

// AddWallet seeds a wallet with a default address.
func (m *MockPlatform) AddWallet(networkID string) *MockWallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addWalletLocked(networkID)
}

func (m *MockPlatform) addWalletLocked(networkID string) *MockWallet {
	w := &MockWallet{
		ID:        uuid.NewString(),
		NetworkID: networkID,
		AddressID: randomAddress(),
	}
	m.wallets[w.ID] = w
	return w
}

// SetBalance seeds the public API balance of an account.
func (m *MockPlatform) SetBalance(accountID, amount, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = [2]string{amount, currency}
}

// SetFailure makes every authenticated request return status with body.
// A zero status clears the failure.
func (m *MockPlatform) SetFailure(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
	m.failBody = body
}

// SetRawResponse makes "<METHOD> <path>" return body verbatim with status 200.
func (m *MockPlatform) SetRawResponse(method, path, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawResponses[method+" "+path] = body
}

// SetDelayResponse sets a delay before responding.
func (m *MockPlatform) SetDelayResponse(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayResponse = delay
}

// Requests returns a copy of every authenticated request received so far.
func (m *MockPlatform) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent authenticated request.
func (m *MockPlatform) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

func (m *MockPlatform) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		delay := m.delayResponse
		m.mu.RUnlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		token, err := m.verify(parts[1], r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		body, _ := io.ReadAll(r.Body)
		claims, _ := token.Claims.(jwt.MapClaims)

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			RawQuery:    r.URL.RawQuery,
			Header:      r.Header.Clone(),
			Body:        body,
			Token:       parts[1],
			TokenHeader: token.Header,
			Claims:      claims,
		})
		failStatus, failBody := m.failStatus, m.failBody
		raw, hasRaw := m.rawResponses[r.Method+" "+r.URL.Path]
		m.mu.Unlock()

		if failStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failStatus)
			w.Write([]byte(failBody))
			return
		}

		if hasRaw {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(raw))
			return
		}

		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next.ServeHTTP(w, r)
	})
}

func (m *MockPlatform) verify(tokenString string, r *http.Request) (*jwt.Token, error) {
	m.mu.RLock()
	static := m.staticMode
	m.mu.RUnlock()

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if static {
			kid, _ = token.Claims.(jwt.MapClaims)["sub"].(string)
		}
		if kid == "" {
			return nil, fmt.Errorf("missing key id")
		}

		m.mu.RLock()
		defer m.mu.RUnlock()
		pub, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("key %s not registered", kid)
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if static {
		iss, _ := claims["iss"].(string)
		sub, _ := claims["sub"].(string)
		if iss == "" || iss != sub {
			return nil, fmt.Errorf("static token must have iss == sub")
		}
		return token, nil
	}

	return token, m.verifyURIBound(token, claims, r)
}

func (m *MockPlatform) verifyURIBound(token *jwt.Token, claims jwt.MapClaims, r *http.Request) error {
	kid, _ := token.Header["kid"].(string)
	if sub, _ := claims["sub"].(string); sub != kid {
		return fmt.Errorf("sub %q does not match kid %q", sub, kid)
	}
	if iss, _ := claims["iss"].(string); iss != "cdp" {
		return fmt.Errorf("unexpected issuer %q", iss)
	}

	aud, err := claims.GetAudience()
	if err != nil || len(aud) != 1 || aud[0] != "cdp_service" {
		return fmt.Errorf("unexpected audience %v", aud)
	}

	nbf, err := claims.GetNotBefore()
	if err != nil || nbf == nil {
		return fmt.Errorf("missing nbf")
	}
	exp, _ := claims.GetExpirationTime()
	if exp.Sub(nbf.Time) > 60*time.Second {
		return fmt.Errorf("token window exceeds 60s")
	}

	want := r.Method + " " + r.URL.Path
	uris, _ := claims["uris"].([]interface{})
	if len(uris) != 1 || uris[0] != want {
		return fmt.Errorf("token is bound to %v, not %q", uris, want)
	}

	nonce, _ := token.Header["nonce"].(string)
	if !noncePattern.MatchString(nonce) {
		return fmt.Errorf("nonce must be 16 digits")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nonces[nonce] {
		return fmt.Errorf("nonce replayed")
	}
	m.nonces[nonce] = true
	return nil
}

func (m *MockPlatform) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet struct {
			NetworkID string `json:"network_id"`
		} `json:"wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet.NetworkID == "" {
		writeError(w, http.StatusBadRequest, "invalid_wallet", "wallet.network_id is required")
		return
	}

	m.mu.Lock()
	wallet := m.addWalletLocked(req.Wallet.NetworkID)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, walletJSON(wallet))
}

func (m *MockPlatform) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, ok := m.wallet(r.PathValue("wallet_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "wallet not found")
		return
	}
	writeJSON(w, http.StatusOK, walletJSON(wallet))
}

func (m *MockPlatform) handleFaucet(w http.ResponseWriter, r *http.Request) {
	wallet, ok := m.wallet(r.PathValue("wallet_id"))
	if !ok || wallet.AddressID != r.PathValue("address_id") {
		writeError(w, http.StatusNotFound, "not_found", "address not found")
		return
	}

	hash := "0x" + randomHex(32)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_hash": hash,
		"transaction_link": "https://sepolia.basescan.org/tx/" + hash,
		"asset_id":         r.URL.Query().Get("asset_id"),
	})
}

func (m *MockPlatform) handleTransfer(w http.ResponseWriter, r *http.Request) {
	wallet, ok := m.wallet(r.PathValue("wallet_id"))
	if !ok || wallet.AddressID != r.PathValue("address_id") {
		writeError(w, http.StatusNotFound, "not_found", "address not found")
		return
	}

	var req struct {
		Amount      string `json:"amount"`
		AssetID     string `json:"asset_id"`
		Destination string `json:"destination"`
		NetworkID   string `json:"network_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == "" || req.Destination == "" {
		writeError(w, http.StatusBadRequest, "invalid_transfer", "amount and destination are required")
		return
	}

	unsigned := randomHex(64)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transfer_id": uuid.NewString(),
		"network_id":  req.NetworkID,
		"wallet_id":   wallet.ID,
		"address_id":  wallet.AddressID,
		"destination": req.Destination,
		"amount":      req.Amount,
		"asset_id":    req.AssetID,
		"status":      "pending",
		"unsigned_payload": unsigned,
		"transaction": map[string]interface{}{
			"network_id":       req.NetworkID,
			"from_address_id":  wallet.AddressID,
			"to_address_id":    req.Destination,
			"unsigned_payload": unsigned,
			"status":           "pending",
		},
	})
}

func (m *MockPlatform) handleBalance(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	bal, ok := m.balances[r.PathValue("account_id")]
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"amount": bal[0], "currency": bal[1]},
	})
}

func (m *MockPlatform) wallet(id string) (*MockWallet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[id]
	return w, ok
}

func walletJSON(w *MockWallet) map[string]interface{} {
	return map[string]interface{}{
		"id":         w.ID,
		"network_id": w.NetworkID,
		"default_address": map[string]interface{}{
			"wallet_id":  w.ID,
			"network_id": w.NetworkID,
			"address_id": w.AddressID,
			"public_key": "0x02" + randomHex(32),
			"index":      0,
		},
		"server_signer_status": "active_seed",
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func randomAddress() string {
	return "0x" + randomHex(20)
}
