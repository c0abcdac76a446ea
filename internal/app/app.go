// Package app wires configuration, credentials, the signed transports and the
// wallet tools into one object.
package app

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/better-wallet/wallet-agent/internal/cdp"
	"github.com/better-wallet/wallet-agent/internal/config"
	"github.com/better-wallet/wallet-agent/internal/keystore"
	"github.com/better-wallet/wallet-agent/internal/logger"
	"github.com/better-wallet/wallet-agent/internal/tools"
	"github.com/better-wallet/wallet-agent/internal/transport"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

// Options carries the dependencies that do not come from configuration.
type Options struct {
	// HTTPClient is shared by both transports. Defaults to a new client.
	HTTPClient *http.Client

	// Registerer receives the transport metrics. Nil disables registration.
	Registerer prometheus.Registerer

	// LookupEnv resolves the credential path fallback. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// App is a fully wired wallet agent backend.
type App struct {
	Config   *config.Config
	KeyStore *keystore.KeyStore
	Minter   transport.TokenMinter
	Metrics  *transport.Metrics
	Client   *cdp.Client
	Tools    *tools.Registry
}

// New loads the credential and builds the transports and tools from cfg.
// Credential and configuration failures are returned as AppErrors.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	sealer, err := NewSealer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := keystore.Load(ctx, keystore.Config{
		Path:      cfg.APIKeyFile,
		LookupEnv: opts.LookupEnv,
		Sealer:    sealer,
	})
	if err != nil {
		return nil, err
	}

	minter, err := transport.NewMinter(transport.Scheme(cfg.TokenScheme), store, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	metrics := transport.NewMetrics(opts.Registerer)

	client, err := cdp.New(cdp.Config{
		PlatformURL:  cfg.PlatformURL,
		PublicAPIURL: cfg.PublicAPIURL,
		Minter:       minter,
		HTTPClient:   opts.HTTPClient,
		Timeout:      cfg.HTTPTimeout,
		RateLimit:    cfg.RateLimitRPS,
		Burst:        cfg.RateLimitBurst,
		Metrics:      metrics,
	})
	if err != nil {
		return nil, err
	}

	registry := tools.NewWalletRegistry(client, tools.Config{
		NetworkID:       cfg.NetworkID,
		DefaultWalletID: cfg.DefaultWallet,
		UseServerSigner: cfg.UseServerSigner,
		MaxTransferWei:  cfg.MaxTransferWei(),
	})

	logger.Info(ctx, "wallet agent ready",
		"key_id", store.KeyID(),
		"token_scheme", string(minter.Scheme()),
		"token_ttl", minter.TTL().String(),
		"platform_url", cfg.PlatformURL,
		"network_id", cfg.NetworkID,
	)

	return &App{
		Config:   cfg,
		KeyStore: store,
		Minter:   minter,
		Metrics:  metrics,
		Client:   client,
		Tools:    registry,
	}, nil
}

// NewSealer builds the configured credential sealer, or nil when credential
// files are stored unsealed.
func NewSealer(ctx context.Context, cfg *config.Config) (keystore.Sealer, error) {
	sealer, err := keystore.NewSealer(ctx, keystore.SealerConfig{
		Provider:        cfg.KeySealer,
		LocalKeyHex:     cfg.KeySealerLocalKey,
		AWSKMSKeyID:     cfg.KeySealerAWSKeyID,
		AWSKMSRegion:    cfg.KeySealerAWSRegion,
		VaultAddress:    cfg.KeySealerVaultAddr,
		VaultToken:      cfg.KeySealerVaultToken,
		VaultTransitKey: cfg.KeySealerVaultKey,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration, "Invalid credential sealer configuration", err)
	}
	return sealer, nil
}
