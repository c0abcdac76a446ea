package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

// Sealer protects the privateKey field of a credential file at rest.
// When a KeyStore is configured with a Sealer, the privateKey field holds the
// sealed form and is unsealed once, at load time.
type Sealer interface {
	// Seal encrypts a PEM private key into the string stored in the credential file
	Seal(ctx context.Context, plaintext []byte) (string, error)

	// Unseal reverses Seal
	Unseal(ctx context.Context, sealed string) ([]byte, error)

	// Provider returns the provider name (e.g., "local", "aws-kms", "vault")
	Provider() string
}

// SealerType represents supported sealing backends
type SealerType string

const (
	// SealerLocal uses a local 256-bit key with AES-GCM
	SealerLocal SealerType = "local"

	// SealerAWSKMS uses AWS KMS Encrypt/Decrypt
	SealerAWSKMS SealerType = "aws-kms"

	// SealerVault uses the HashiCorp Vault Transit engine
	SealerVault SealerType = "vault"
)

// SealerConfig contains configuration for sealing backends
type SealerConfig struct {
	Provider string

	// Local sealer: hex-encoded 32-byte key
	LocalKeyHex string

	// AWS KMS
	AWSKMSKeyID  string
	AWSKMSRegion string

	// Vault
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// NewSealer creates a Sealer based on the configuration.
// An empty provider means credential files are not sealed and nil is returned.
func NewSealer(ctx context.Context, cfg SealerConfig) (Sealer, error) {
	switch SealerType(cfg.Provider) {
	case "":
		return nil, nil
	case SealerLocal:
		return NewLocalSealer(cfg.LocalKeyHex)
	case SealerAWSKMS:
		return NewAWSKMSSealer(ctx, cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case SealerVault:
		return NewVaultSealer(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported sealer: %s (supported: %s, %s, %s)",
			cfg.Provider, SealerLocal, SealerAWSKMS, SealerVault)
	}
}

// LocalSealer seals with AES-256-GCM under a locally held key.
// The sealed form is base64(nonce || ciphertext).
type LocalSealer struct {
	key []byte
}

// NewLocalSealer creates a local sealer from a hex-encoded 32-byte key
func NewLocalSealer(keyHex string) (*LocalSealer, error) {
	if keyHex == "" {
		return nil, fmt.Errorf("key is required for local sealer")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("local sealer key must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("local sealer key must be 32 bytes, got %d", len(key))
	}
	return &LocalSealer{key: key}, nil
}

func (s *LocalSealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-GCM
func (s *LocalSealer) Seal(ctx context.Context, plaintext []byte) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Unseal decrypts a value produced by Seal
func (s *LocalSealer) Unseal(ctx context.Context, sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("sealed value is not base64: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (s *LocalSealer) Provider() string {
	return string(SealerLocal)
}

// kmsAPI is the subset of the AWS KMS client used by AWSKMSSealer
type kmsAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSSealer seals with AWS KMS. The sealed form is base64(CiphertextBlob).
type AWSKMSSealer struct {
	keyID  string
	client kmsAPI
}

// NewAWSKMSSealer creates a new AWS KMS sealer
func NewAWSKMSSealer(ctx context.Context, keyID, region string) (*AWSKMSSealer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	// Uses default credential chain: env vars, shared config, IAM role, etc.
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSSealer{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

// Seal encrypts plaintext using AWS KMS
func (s *AWSKMSSealer) Seal(ctx context.Context, plaintext []byte) (string, error) {
	output, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(s.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return "", fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(output.CiphertextBlob), nil
}

// Unseal decrypts a value using AWS KMS
func (s *AWSKMSSealer) Unseal(ctx context.Context, sealed string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("sealed value is not base64: %w", err)
	}
	output, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(s.keyID),
		CiphertextBlob: blob,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

// Provider returns the provider name
func (s *AWSKMSSealer) Provider() string {
	return string(SealerAWSKMS)
}

// VaultSealer seals with the Vault Transit engine. The sealed form is the
// vault:v1:... ciphertext string as returned by Vault.
type VaultSealer struct {
	transitKey string
	client     *vault.Client
}

// NewVaultSealer creates a new Vault sealer
func NewVaultSealer(address, token, transitKey string) (*VaultSealer, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultSealer{
		transitKey: transitKey,
		client:     client,
	}, nil
}

// Seal encrypts plaintext using Vault Transit
func (s *VaultSealer) Seal(ctx context.Context, plaintext []byte) (string, error) {
	path := fmt.Sprintf("transit/encrypt/%s", s.transitKey)
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("Vault Transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("Vault Transit encrypt: ciphertext not found in response")
	}
	return ciphertext, nil
}

// Unseal decrypts a vault:v1:... ciphertext using Vault Transit
func (s *VaultSealer) Unseal(ctx context.Context, sealed string) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", s.transitKey)
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": sealed,
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: plaintext not found in response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (s *VaultSealer) Provider() string {
	return string(SealerVault)
}

var (
	_ Sealer = (*LocalSealer)(nil)
	_ Sealer = (*AWSKMSSealer)(nil)
	_ Sealer = (*VaultSealer)(nil)
)
