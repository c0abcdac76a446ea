package keystore

import (
	"bytes"
	"context"
	"crypto/elliptic"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
	"github.com/better-wallet/wallet-agent/tests/helpers"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoad_RoundTrip(t *testing.T) {
	cred := helpers.GenerateCredential(t)

	tests := []struct {
		name       string
		privateKey string
	}{
		{name: "SEC1 PEM", privateKey: cred.PEM},
		{name: "PKCS8 PEM", privateKey: cred.PKCS8PEM(t)},
		{name: "escaped newlines", privateKey: strings.ReplaceAll(cred.PEM, "\n", `\n`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := helpers.WriteCredentialFile(t, "k1", tt.privateKey)

			ks, err := Load(context.Background(), Config{Path: path, LookupEnv: noEnv})
			require.NoError(t, err)

			got := ks.Credential()
			assert.Equal(t, "k1", got.KeyID)
			assert.Equal(t, tt.privateKey, got.PrivateKey)
			assert.Equal(t, "k1", ks.KeyID())
			assert.Equal(t, path, ks.Source())
			require.NotNil(t, ks.SigningKey())
			assert.True(t, cred.PrivateKey.Equal(ks.SigningKey()))
		})
	}
}

func TestLoad_PathResolution(t *testing.T) {
	cred := helpers.GenerateCredential(t)
	path := helpers.WriteCredentialFile(t, "k1", cred.PEM)

	t.Run("falls back to environment variable", func(t *testing.T) {
		lookup := func(key string) (string, bool) {
			if key == DefaultEnvVar {
				return path, true
			}
			return "", false
		}

		ks, err := Load(context.Background(), Config{LookupEnv: lookup})
		require.NoError(t, err)
		assert.Equal(t, path, ks.Source())
	})

	t.Run("custom environment variable", func(t *testing.T) {
		lookup := func(key string) (string, bool) {
			if key == "WALLET_KEY" {
				return path, true
			}
			return "", false
		}

		ks, err := Load(context.Background(), Config{EnvVar: "WALLET_KEY", LookupEnv: lookup})
		require.NoError(t, err)
		assert.Equal(t, "k1", ks.KeyID())
	})

	t.Run("explicit path wins over environment", func(t *testing.T) {
		lookup := func(string) (string, bool) { return "/nonexistent/env.json", true }

		ks, err := Load(context.Background(), Config{Path: path, LookupEnv: lookup})
		require.NoError(t, err)
		assert.Equal(t, path, ks.Source())
	})

	t.Run("no path and no environment is a configuration error without file access", func(t *testing.T) {
		cfg := Config{
			LookupEnv: noEnv,
			readFile: func(name string) ([]byte, error) {
				t.Fatalf("unexpected file access: %s", name)
				return nil, nil
			},
		}

		ks, err := Load(context.Background(), cfg)
		require.Error(t, err)
		assert.Nil(t, ks)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
		assert.Contains(t, err.Error(), DefaultEnvVar)
	})

	t.Run("blank environment value counts as unset", func(t *testing.T) {
		lookup := func(string) (string, bool) { return "   ", true }

		_, err := Load(context.Background(), Config{LookupEnv: lookup})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
	})
}

func TestLoad_Failures(t *testing.T) {
	cred := helpers.GenerateCredential(t)

	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") },
			wantCode: apperrors.ErrCodeNotFound,
			wantMsg:  "absent.json",
		},
		{
			name:     "not JSON",
			path:     func(t *testing.T) string { return helpers.WriteRawFile(t, []byte("name=k1")) },
			wantCode: apperrors.ErrCodeFormat,
			wantMsg:  "not valid JSON",
		},
		{
			name:     "missing privateKey",
			path:     func(t *testing.T) string { return helpers.WriteRawFile(t, []byte(`{"name":"k1"}`)) },
			wantCode: apperrors.ErrCodeFormat,
			wantMsg:  "privateKey",
		},
		{
			name: "missing name",
			path: func(t *testing.T) string {
				return helpers.WriteCredentialFile(t, "", cred.PEM)
			},
			wantCode: apperrors.ErrCodeFormat,
			wantMsg:  "'name'",
		},
		{
			name:     "privateKey of wrong type",
			path:     func(t *testing.T) string { return helpers.WriteRawFile(t, []byte(`{"name":"k1","privateKey":42}`)) },
			wantCode: apperrors.ErrCodeFormat,
			wantMsg:  "not valid JSON",
		},
		{
			name: "privateKey not PEM",
			path: func(t *testing.T) string {
				return helpers.WriteCredentialFile(t, "k1", "not-a-key")
			},
			wantCode: apperrors.ErrCodeFormat,
			wantMsg:  "not a valid EC private key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, err := Load(context.Background(), Config{Path: tt.path(t), LookupEnv: noEnv})
			require.Error(t, err)
			assert.Nil(t, ks)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_AcceptsNonP256Curves(t *testing.T) {
	// Curve checks belong to the signer; the store only requires an EC key.
	cred := helpers.GenerateCredentialOnCurve(t, elliptic.P384())
	path := helpers.WriteCredentialFile(t, "k384", cred.PEM)

	ks, err := Load(context.Background(), Config{Path: path, LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, elliptic.P384(), ks.SigningKey().Curve)
}

func TestLoad_Sealed(t *testing.T) {
	ctx := context.Background()
	cred := helpers.GenerateCredential(t)

	sealer, err := NewLocalSealer(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := sealer.Seal(ctx, []byte(cred.PEM))
	require.NoError(t, err)

	t.Run("unseals before parsing", func(t *testing.T) {
		path := helpers.WriteCredentialFile(t, "k1", sealed)

		ks, err := Load(ctx, Config{Path: path, LookupEnv: noEnv, Sealer: sealer})
		require.NoError(t, err)
		assert.Equal(t, cred.PEM, ks.Credential().PrivateKey)
		assert.True(t, cred.PrivateKey.Equal(ks.SigningKey()))
	})

	t.Run("unseal failure is a crypto error", func(t *testing.T) {
		other, err := NewLocalSealer(strings.Repeat("cd", 32))
		require.NoError(t, err)
		path := helpers.WriteCredentialFile(t, "k1", sealed)

		_, err = Load(ctx, Config{Path: path, LookupEnv: noEnv, Sealer: other})
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCrypto))
	})

	t.Run("plain PEM with sealer configured fails", func(t *testing.T) {
		path := helpers.WriteCredentialFile(t, "k1", cred.PEM)

		_, err := Load(ctx, Config{Path: path, LookupEnv: noEnv, Sealer: sealer})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCrypto))
	})
}

func TestNew(t *testing.T) {
	cred := helpers.GenerateCredential(t)

	ks, err := New(Credential{KeyID: "k1", PrivateKey: cred.PEM})
	require.NoError(t, err)
	assert.Empty(t, ks.Source())

	_, err = New(Credential{PrivateKey: cred.PEM})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFormat))

	_, err = New(Credential{KeyID: "k1"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFormat))
}

func TestCredential_NeverPrintsKey(t *testing.T) {
	cred := helpers.GenerateCredential(t)
	c := Credential{KeyID: "k1", PrivateKey: cred.PEM}

	assert.NotContains(t, c.String(), "PRIVATE KEY")
	assert.NotContains(t, fmt.Sprintf("%v", c), "PRIVATE KEY")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	log.Info("credential", "cred", c)
	assert.NotContains(t, buf.String(), "PRIVATE KEY")
	assert.Contains(t, buf.String(), `"key_id":"k1"`)
}
