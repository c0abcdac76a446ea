package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/better-wallet/wallet-agent/internal/validation"
)

// Token schemes
const (
	TokenSchemeURIBound = "uri-bound"
	TokenSchemeStatic   = "static"
)

// MaxURIBoundTTL is the longest validity window accepted for uri-bound tokens.
const MaxURIBoundTTL = 60 * time.Second

// Config holds process-level configuration for the wallet agent.
// It is built once at startup and passed to constructors explicitly.
type Config struct {
	// Credentials
	APIKeyFile string

	// Platform
	PlatformURL   string
	PublicAPIURL  string
	NetworkID     string
	DefaultWallet string

	// Wallet tools
	UseServerSigner bool
	MaxTransferETH  string // decimal ETH; empty means no cap

	// Token minting
	TokenScheme string
	TokenTTL    time.Duration

	// Outbound HTTP
	HTTPTimeout    time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Credential sealing
	KeySealer           string // "", local, aws-kms or vault
	KeySealerLocalKey   string
	KeySealerAWSKeyID   string
	KeySealerAWSRegion  string
	KeySealerVaultAddr  string
	KeySealerVaultToken string
	KeySealerVaultKey   string
}

// Load loads configuration from environment variables.
// envFiles are read with godotenv into a private map; the process environment
// is never modified. Non-empty process variables win over file values, and
// earlier files win over later ones. Missing env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	src := &envSource{file: make(map[string]string)}
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		values, err := godotenv.Read(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read env file %s: %w", f, err)
		}
		for k, v := range values {
			if _, seen := src.file[k]; !seen {
				src.file[k] = v
			}
		}
	}

	scheme := src.get("CDP_TOKEN_SCHEME", TokenSchemeURIBound)
	defaultTTL := 60
	if scheme == TokenSchemeStatic {
		defaultTTL = 600
	}

	cfg := &Config{
		APIKeyFile:          src.get("CDP_API_KEY_FILE", ""),
		PlatformURL:         src.get("CDP_PLATFORM_URL", "https://api.cdp.coinbase.com"),
		PublicAPIURL:        src.get("CDP_PUBLIC_API_URL", "https://api.coinbase.com"),
		NetworkID:           src.get("CDP_NETWORK_ID", "base-sepolia"),
		DefaultWallet:       src.get("DEFAULT_WALLET_ID", ""),
		UseServerSigner:     src.getBool("CDP_USE_SERVER_SIGNER", true),
		MaxTransferETH:      src.get("CDP_MAX_TRANSFER_ETH", ""),
		TokenScheme:         scheme,
		TokenTTL:            time.Duration(src.getInt("CDP_TOKEN_TTL_SECONDS", defaultTTL)) * time.Second,
		HTTPTimeout:         time.Duration(src.getInt("CDP_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitRPS:        src.getFloat("CDP_RATE_LIMIT_RPS", 0),
		RateLimitBurst:      src.getInt("CDP_RATE_LIMIT_BURST", 1),
		KeySealer:           src.get("CDP_KEY_SEALER", ""),
		KeySealerLocalKey:   src.get("CDP_KEY_SEALER_LOCAL_KEY", ""),
		KeySealerAWSKeyID:   src.get("CDP_KEY_SEALER_AWS_KEY_ID", ""),
		KeySealerAWSRegion:  src.get("CDP_KEY_SEALER_AWS_REGION", ""),
		KeySealerVaultAddr:  src.get("CDP_KEY_SEALER_VAULT_ADDR", ""),
		KeySealerVaultToken: src.get("CDP_KEY_SEALER_VAULT_TOKEN", ""),
		KeySealerVaultKey:   src.get("CDP_KEY_SEALER_VAULT_KEY", ""),
	}

	if src.err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", src.err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// A token must not expire while its request is still in flight.
	if cfg.HTTPTimeout > cfg.TokenTTL {
		cfg.HTTPTimeout = cfg.TokenTTL
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PlatformURL == "" {
		return fmt.Errorf("CDP_PLATFORM_URL is required")
	}

	if c.PublicAPIURL == "" {
		return fmt.Errorf("CDP_PUBLIC_API_URL is required")
	}

	if c.DefaultWallet != "" {
		if err := validation.ValidateWalletID(c.DefaultWallet); err != nil {
			return fmt.Errorf("DEFAULT_WALLET_ID: %w", err)
		}
	}

	if c.MaxTransferETH != "" {
		if _, err := validation.ParseEtherAmount(c.MaxTransferETH); err != nil {
			return fmt.Errorf("CDP_MAX_TRANSFER_ETH: %w", err)
		}
	}

	switch c.TokenScheme {
	case TokenSchemeURIBound:
		if c.TokenTTL > MaxURIBoundTTL {
			return fmt.Errorf("CDP_TOKEN_TTL_SECONDS must be at most %d for the %s scheme, got: %d",
				int(MaxURIBoundTTL.Seconds()), TokenSchemeURIBound, int(c.TokenTTL.Seconds()))
		}
	case TokenSchemeStatic:
	default:
		return fmt.Errorf("CDP_TOKEN_SCHEME must be '%s' or '%s', got: %s", TokenSchemeURIBound, TokenSchemeStatic, c.TokenScheme)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("CDP_TOKEN_TTL_SECONDS must be positive")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("CDP_HTTP_TIMEOUT_SECONDS must be positive")
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("CDP_RATE_LIMIT_RPS cannot be negative")
	}

	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("CDP_RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}

	switch c.KeySealer {
	case "":
	case "local":
		if c.KeySealerLocalKey == "" {
			return fmt.Errorf("CDP_KEY_SEALER_LOCAL_KEY is required when CDP_KEY_SEALER is 'local'")
		}
	case "aws-kms":
		if c.KeySealerAWSKeyID == "" || c.KeySealerAWSRegion == "" {
			return fmt.Errorf("CDP_KEY_SEALER_AWS_KEY_ID and CDP_KEY_SEALER_AWS_REGION are required when CDP_KEY_SEALER is 'aws-kms'")
		}
	case "vault":
		if c.KeySealerVaultAddr == "" || c.KeySealerVaultToken == "" || c.KeySealerVaultKey == "" {
			return fmt.Errorf("CDP_KEY_SEALER_VAULT_ADDR, CDP_KEY_SEALER_VAULT_TOKEN and CDP_KEY_SEALER_VAULT_KEY are required when CDP_KEY_SEALER is 'vault'")
		}
	default:
		return fmt.Errorf("CDP_KEY_SEALER must be empty, 'local', 'aws-kms' or 'vault', got: %s", c.KeySealer)
	}

	return nil
}

// envSource resolves settings from the process environment, then from values
// read out of env files. Malformed values are collected in err.
type envSource struct {
	file map[string]string
	err  error
}

func (s *envSource) lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[key])
}

func (s *envSource) fail(key, value, want string) {
	s.err = errors.Join(s.err, fmt.Errorf("%s must be %s, got: %q", key, want, value))
}

// get gets a string setting with a default value
func (s *envSource) get(key, defaultValue string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultValue
}

// getInt gets an integer setting with a default value
func (s *envSource) getInt(key string, defaultValue int) int {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		s.fail(key, valueStr, "an integer")
		return defaultValue
	}
	return value
}

// getBool gets a boolean setting with a default value
func (s *envSource) getBool(key string, defaultValue bool) bool {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		s.fail(key, valueStr, "a boolean")
		return defaultValue
	}
	return value
}

// getFloat gets a float setting with a default value
func (s *envSource) getFloat(key string, defaultValue float64) float64 {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		s.fail(key, valueStr, "a number")
		return defaultValue
	}
	return value
}

// MaxTransferWei returns the transfer cap in wei, or nil when there is none.
func (c *Config) MaxTransferWei() *big.Int {
	if c.MaxTransferETH == "" {
		return nil
	}
	wei, err := validation.ParseEtherAmount(c.MaxTransferETH)
	if err != nil {
		return nil
	}
	return wei
}
