// Package cdp is a typed client for the wallet platform endpoints used by the
// wallet tools. Every call goes through a signed transport.
package cdp

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/better-wallet/wallet-agent/internal/transport"
)

const walletsPath = "/platform/v1/wallets"

// Config configures a Client.
type Config struct {
	PlatformURL  string
	PublicAPIURL string

	Minter     transport.TokenMinter
	HTTPClient *http.Client
	Timeout    time.Duration
	RateLimit  float64
	Burst      int
	Metrics    *transport.Metrics
}

// Client calls the platform (/platform/v1) and public (/v2) APIs.
type Client struct {
	platform *transport.Transport
	public   *transport.Transport
}

// New creates both transports over one shared http.Client and one minter.
func New(cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	base := transport.Config{
		Minter:     cfg.Minter,
		HTTPClient: httpClient,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.Burst,
		Metrics:    cfg.Metrics,
	}

	platformCfg := base
	platformCfg.BaseURL = cfg.PlatformURL
	platform, err := transport.New(platformCfg)
	if err != nil {
		return nil, err
	}

	publicCfg := base
	publicCfg.BaseURL = cfg.PublicAPIURL
	public, err := transport.New(publicCfg)
	if err != nil {
		return nil, err
	}

	return NewWithTransports(platform, public), nil
}

// NewWithTransports wraps existing transports.
func NewWithTransports(platform, public *transport.Transport) *Client {
	return &Client{platform: platform, public: public}
}

// CreateWallet creates a wallet on req.NetworkID.
func (c *Client) CreateWallet(ctx context.Context, req CreateWalletRequest) (*Wallet, error) {
	body := struct {
		Wallet CreateWalletRequest `json:"wallet"`
	}{Wallet: req}

	var wallet Wallet
	if err := c.platform.Post(ctx, walletsPath, nil, body, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetWallet fetches a wallet by id.
func (c *Client) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	var wallet Wallet
	if err := c.platform.Get(ctx, walletPath(walletID), nil, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FundAddress requests testnet funds for one address of a wallet. An empty
// assetID lets the platform pick its default asset.
func (c *Client) FundAddress(ctx context.Context, walletID, addressID, assetID string) (*FaucetTransaction, error) {
	var query url.Values
	if assetID != "" {
		query = url.Values{"asset_id": {assetID}}
	}

	var tx FaucetTransaction
	if err := c.platform.Post(ctx, addressPath(walletID, addressID)+"/faucet", query, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// CreateTransfer creates a transfer from addressID of walletID. The returned
// transfer still carries its unsigned payload; call Redact before handing it on.
func (c *Client) CreateTransfer(ctx context.Context, walletID, addressID string, req TransferRequest) (*Transfer, error) {
	var transfer Transfer
	if err := c.platform.Post(ctx, addressPath(walletID, addressID)+"/transfers", nil, req, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

// GetAccountBalance fetches an account balance from the public API.
func (c *Client) GetAccountBalance(ctx context.Context, accountID string) (*AccountBalance, error) {
	var balance AccountBalance
	if err := c.public.Get(ctx, "/v2/accounts/"+url.PathEscape(accountID)+"/balance", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// MintToken mints a token for a platform path, for operator debugging.
func (c *Client) MintToken(method, path string) (string, error) {
	return c.platform.MintToken(method, path)
}

func walletPath(walletID string) string {
	return walletsPath + "/" + url.PathEscape(walletID)
}

func addressPath(walletID, addressID string) string {
	return walletPath(walletID) + "/addresses/" + url.PathEscape(addressID)
}
