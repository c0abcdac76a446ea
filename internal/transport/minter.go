package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

// Scheme names a token minting strategy.
type Scheme string

const (
	// SchemeURIBound mints ES256 tokens carrying a nonce header and a claim that
	// binds the token to one "<METHOD> <path>". This is the default.
	SchemeURIBound Scheme = "uri-bound"

	// SchemeStatic mints the legacy ES256 tokens: iss/sub/iat/exp only, no
	// nonce and no binding to the request.
	SchemeStatic Scheme = "static"
)

const (
	// Issuer is the iss claim of uri-bound tokens.
	Issuer = "cdp"
	// Audience is the aud claim of uri-bound tokens.
	Audience = "cdp_service"

	// MaxURIBoundTTL caps the validity window of uri-bound tokens.
	MaxURIBoundTTL = 60 * time.Second
	// DefaultURIBoundTTL is the validity window used when none is configured.
	DefaultURIBoundTTL = 60 * time.Second
	// DefaultStaticTTL matches the ten-minute window of the legacy scheme.
	DefaultStaticTTL = 600 * time.Second
)

// SigningIdentity supplies the key id and key a minter signs with.
// *keystore.KeyStore implements it.
type SigningIdentity interface {
	KeyID() string
	SigningKey() *ecdsa.PrivateKey
}

// TokenMinter produces a fresh bearer token for one outbound request.
// Implementations must not cache tokens.
type TokenMinter interface {
	Mint(method, path string) (string, error)
	Scheme() Scheme
	TTL() time.Duration
}

// URIBoundClaims is the claim set of a uri-bound token.
type URIBoundClaims struct {
	URIs []string `json:"uris"`
	jwt.RegisteredClaims
}

// MinterOption configures a minter.
type MinterOption func(*minterOptions)

type minterOptions struct {
	now   func() time.Time
	nonce func() (string, error)
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MinterOption {
	return func(o *minterOptions) {
		o.now = now
	}
}

// WithNonceSource overrides the nonce generator.
func WithNonceSource(nonce func() (string, error)) MinterOption {
	return func(o *minterOptions) {
		o.nonce = nonce
	}
}

func buildOptions(opts []MinterOption) minterOptions {
	o := minterOptions{now: time.Now, nonce: NewNonce}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// URIBoundMinter mints tokens bound to a single method and path.
type URIBoundMinter struct {
	identity SigningIdentity
	ttl      time.Duration
	opts     minterOptions
}

// NewURIBoundMinter creates a uri-bound minter. A zero ttl selects
// DefaultURIBoundTTL; anything above MaxURIBoundTTL is rejected.
func NewURIBoundMinter(identity SigningIdentity, ttl time.Duration, opts ...MinterOption) (*URIBoundMinter, error) {
	if identity == nil {
		return nil, apperrors.Configuration("signing identity is required")
	}
	if ttl == 0 {
		ttl = DefaultURIBoundTTL
	}
	if ttl < 0 || ttl > MaxURIBoundTTL {
		return nil, apperrors.Configuration(fmt.Sprintf("uri-bound token ttl must be in (0, %s], got %s", MaxURIBoundTTL, ttl))
	}

	return &URIBoundMinter{
		identity: identity,
		ttl:      ttl,
		opts:     buildOptions(opts),
	}, nil
}

// Mint signs a token whose uris claim is exactly "<METHOD> <path>".
func (m *URIBoundMinter) Mint(method, path string) (string, error) {
	uri, err := BoundURI(method, path)
	if err != nil {
		return "", err
	}

	key, err := p256Key(m.identity)
	if err != nil {
		return "", err
	}

	nonce, err := m.opts.nonce()
	if err != nil {
		return "", apperrors.Crypto("generate nonce", err)
	}

	now := m.opts.now()
	claims := URIBoundClaims{
		URIs: []string{uri},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.identity.KeyID(),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = m.identity.KeyID()
	token.Header["nonce"] = nonce

	signed, err := token.SignedString(key)
	if err != nil {
		return "", apperrors.Crypto("sign uri-bound token", err)
	}
	return signed, nil
}

// Scheme returns SchemeURIBound.
func (m *URIBoundMinter) Scheme() Scheme {
	return SchemeURIBound
}

// TTL returns the validity window.
func (m *URIBoundMinter) TTL() time.Duration {
	return m.ttl
}

// StaticMinter mints the legacy token: the same claims for every request,
// renewed per call, valid for ten minutes by default.
type StaticMinter struct {
	identity SigningIdentity
	ttl      time.Duration
	opts     minterOptions
}

// NewStaticMinter creates a legacy minter. A zero ttl selects DefaultStaticTTL.
func NewStaticMinter(identity SigningIdentity, ttl time.Duration, opts ...MinterOption) (*StaticMinter, error) {
	if identity == nil {
		return nil, apperrors.Configuration("signing identity is required")
	}
	if ttl == 0 {
		ttl = DefaultStaticTTL
	}
	if ttl < 0 {
		return nil, apperrors.Configuration(fmt.Sprintf("static token ttl must be positive, got %s", ttl))
	}

	return &StaticMinter{
		identity: identity,
		ttl:      ttl,
		opts:     buildOptions(opts),
	}, nil
}

// Mint ignores method and path apart from validating them; static tokens are
// not bound to a request.
func (m *StaticMinter) Mint(method, path string) (string, error) {
	if _, err := BoundURI(method, path); err != nil {
		return "", err
	}

	key, err := p256Key(m.identity)
	if err != nil {
		return "", err
	}

	now := m.opts.now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.identity.KeyID(),
		Subject:   m.identity.KeyID(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		return "", apperrors.Crypto("sign static token", err)
	}
	return signed, nil
}

// Scheme returns SchemeStatic.
func (m *StaticMinter) Scheme() Scheme {
	return SchemeStatic
}

// TTL returns the validity window.
func (m *StaticMinter) TTL() time.Duration {
	return m.ttl
}

// NewMinter selects a minter by scheme name.
func NewMinter(scheme Scheme, identity SigningIdentity, ttl time.Duration, opts ...MinterOption) (TokenMinter, error) {
	switch scheme {
	case SchemeURIBound, "":
		return NewURIBoundMinter(identity, ttl, opts...)
	case SchemeStatic:
		return NewStaticMinter(identity, ttl, opts...)
	default:
		return nil, apperrors.Configuration(fmt.Sprintf("unsupported token scheme: %s (supported: %s, %s)", scheme, SchemeURIBound, SchemeStatic))
	}
}

// BoundURI returns the "<METHOD> <path>" string a token authorizes.
// The method is upper-cased; the path is used verbatim.
func BoundURI(method, path string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return "", apperrors.InvalidArgument("method", fmt.Errorf("must not be empty"))
	}
	if !strings.HasPrefix(path, "/") {
		return "", apperrors.InvalidArgument("path", fmt.Errorf("must start with '/', got %q", path))
	}
	return method + " " + path, nil
}

func p256Key(identity SigningIdentity) (*ecdsa.PrivateKey, error) {
	key := identity.SigningKey()
	if key == nil {
		return nil, apperrors.Crypto("no signing key loaded", nil)
	}
	if key.Curve != elliptic.P256() {
		return nil, apperrors.Crypto(fmt.Sprintf("ES256 requires a P-256 key, got %s", key.Curve.Params().Name), nil)
	}
	return key, nil
}

var (
	_ TokenMinter = (*URIBoundMinter)(nil)
	_ TokenMinter = (*StaticMinter)(nil)
)
