package app

import (
	"context"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/wallet-agent/internal/cdp"
	"github.com/better-wallet/wallet-agent/internal/config"
	"github.com/better-wallet/wallet-agent/internal/keystore"
	"github.com/better-wallet/wallet-agent/internal/transport"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
	"github.com/better-wallet/wallet-agent/tests/helpers"
	"github.com/better-wallet/wallet-agent/tests/mocks"
)

func noEnv(string) (string, bool) { return "", false }

func testConfig(platformURL, keyFile string) *config.Config {
	return &config.Config{
		APIKeyFile:      keyFile,
		PlatformURL:     platformURL,
		PublicAPIURL:    platformURL,
		NetworkID:       "base-sepolia",
		UseServerSigner: true,
		TokenScheme:     config.TokenSchemeURIBound,
		TokenTTL:        60 * time.Second,
		HTTPTimeout:     10 * time.Second,
	}
}

func TestNew_WiresTools(t *testing.T) {
	cred := helpers.GenerateCredential(t)
	keyFile := helpers.WriteCredentialFile(t, cred.Name, cred.PEM)

	platform := mocks.NewMockPlatform()
	defer platform.Close()
	platform.RegisterKey(cred.Name, &cred.PrivateKey.PublicKey)

	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), testConfig(platform.URL(), keyFile), Options{
		HTTPClient: platform.Client(),
		Registerer: reg,
		LookupEnv:  noEnv,
	})
	require.NoError(t, err)

	assert.Equal(t, cred.Name, a.KeyStore.KeyID())
	assert.Equal(t, transport.SchemeURIBound, a.Minter.Scheme())

	res := a.Tools.Invoke(context.Background(), "create_wallet", nil)
	require.True(t, res.OK, res.String())
	wallet, ok := res.Data.(*cdp.Wallet)
	require.True(t, ok)
	assert.Equal(t, "base-sepolia", wallet.NetworkID)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestTransferFunds_EnvelopedResponseRedacted(t *testing.T) {
	cred := helpers.GenerateCredential(t)
	keyFile := helpers.WriteCredentialFile(t, cred.Name, cred.PEM)

	platform := mocks.NewMockPlatform()
	defer platform.Close()
	platform.RegisterKey(cred.Name, &cred.PrivateKey.PublicKey)
	wallet := platform.AddWallet("base-sepolia")
	platform.SetRawResponse(http.MethodPost,
		"/platform/v1/wallets/"+wallet.ID+"/addresses/"+wallet.AddressID+"/transfers",
		`{"transfer":{"model":{"transfer_id":"t1","network_id":"base-sepolia","amount":"1000000000000000",
		"destination":"0xa7979BF6Ce644E4e36da2Ee65Db73c3f5A0dF895","asset_id":"eth",
		"unsigned_payload":"02f8aa","transaction":{"unsigned_payload":"02f8bb","status":"pending"}}}}`)

	a, err := New(context.Background(), testConfig(platform.URL(), keyFile), Options{
		HTTPClient: platform.Client(),
		LookupEnv:  noEnv,
	})
	require.NoError(t, err)

	res := a.Tools.Invoke(context.Background(), "transfer_funds", map[string]string{
		"source_wallet_id":    wallet.ID,
		"destination_address": "0xa7979BF6Ce644E4e36da2Ee65Db73c3f5A0dF895",
		"amount":              "0.001",
	})
	require.True(t, res.OK, res.String())

	out := res.JSON()
	assert.NotContains(t, out, "unsigned_payload")
	assert.NotContains(t, out, "02f8")
	assert.Contains(t, out, `"transfer_id":"t1"`)
}

func TestNew_MissingCredentialPath(t *testing.T) {
	_, err := New(context.Background(), testConfig("https://api.cdp.coinbase.com", ""), Options{LookupEnv: noEnv})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
}

func TestNew_MissingPrivateKeyNeverMints(t *testing.T) {
	platform := mocks.NewMockPlatform()
	defer platform.Close()

	keyFile := helpers.WriteCredentialFile(t, "k1", "")
	_, err := New(context.Background(), testConfig(platform.URL(), keyFile), Options{LookupEnv: noEnv})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFormat))
	assert.Empty(t, platform.Requests())
}

func TestNew_SealedCredential(t *testing.T) {
	cred := helpers.GenerateCredential(t)

	sealKey := hex.EncodeToString(make([]byte, 32))
	sealer, err := keystore.NewLocalSealer(sealKey)
	require.NoError(t, err)
	sealed, err := sealer.Seal(context.Background(), []byte(cred.PEM))
	require.NoError(t, err)

	cfg := testConfig("https://api.cdp.coinbase.com", helpers.WriteCredentialFile(t, cred.Name, sealed))
	cfg.KeySealer = "local"
	cfg.KeySealerLocalKey = sealKey

	a, err := New(context.Background(), cfg, Options{LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, cred.PEM, a.KeyStore.Credential().PrivateKey)
}

func TestNewSealer_InvalidConfiguration(t *testing.T) {
	cfg := testConfig("https://api.cdp.coinbase.com", "")
	cfg.KeySealer = "local"
	cfg.KeySealerLocalKey = "not-hex"

	_, err := NewSealer(context.Background(), cfg)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	cfg.KeySealer = ""
	sealer, err := NewSealer(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, sealer)
}
