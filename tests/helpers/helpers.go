// Package helpers provides common test utilities for the wallet-agent test suite.
package helpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestKeyName is the key id used by credentials generated in tests.
const TestKeyName = "organizations/test-org/apiKeys/test-key"

// TestCredential holds a generated EC key and its PEM encoding.
type TestCredential struct {
	Name       string
	PrivateKey *ecdsa.PrivateKey
	PEM        string
}

// GenerateCredential creates a P-256 credential in SEC1 PEM form.
func GenerateCredential(t *testing.T) *TestCredential {
	t.Helper()
	return GenerateCredentialOnCurve(t, elliptic.P256())
}

// GenerateCredentialOnCurve creates a credential on an arbitrary curve.
func GenerateCredentialOnCurve(t *testing.T, curve elliptic.Curve) *TestCredential {
	t.Helper()

	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	return &TestCredential{
		Name:       TestKeyName,
		PrivateKey: key,
		PEM:        string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})),
	}
}

// PKCS8PEM returns the credential's key in PKCS#8 PEM form.
func (c *TestCredential) PKCS8PEM(t *testing.T) string {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(c.PrivateKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// WriteCredentialFile writes {"name": ..., "privateKey": ...} to a temp dir and
// returns the path.
func WriteCredentialFile(t *testing.T, name, privateKey string) string {
	t.Helper()

	data, err := json.Marshal(map[string]string{
		"name":       name,
		"privateKey": privateKey,
	})
	require.NoError(t, err)

	return WriteRawFile(t, data)
}

// WriteRawFile writes arbitrary bytes to a temp credential file.
func WriteRawFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cdp_api_key.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
