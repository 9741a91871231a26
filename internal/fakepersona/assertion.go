package fakepersona

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/kuitang/persona-e2e/internal/errs"
)

// AssertionLifetime bounds how long a relying party accepts an assertion.
const AssertionLifetime = 2 * time.Minute

var (
	ErrInvalidAssertion = errs.New(errs.Unauthenticated, "invalid assertion")
	ErrAssertionExpired = errs.New(errs.Unauthenticated, "assertion expired")
)

// AssertionClaims is the body of an identity assertion: the subject is the
// email address, the audience the relying party's origin and path.
type AssertionClaims struct {
	jwt.Claims
	Email string `json:"email"`
}

// Signer issues and verifies identity assertions with one Ed25519 key.
type Signer struct {
	key   ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewSigner creates a signer. A nil key generates a fresh one.
func NewSigner(key ed25519.PrivateKey) (*Signer, error) {
	var pub ed25519.PublicKey
	if key == nil {
		var err error
		pub, key, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("fakepersona: generate signing key: %w", err)
		}
	} else {
		pub = key.Public().(ed25519.PublicKey)
	}
	hash := sha256.Sum256(pub)
	return &Signer{key: key, pub: pub, keyID: base64.RawURLEncoding.EncodeToString(hash[:8])}, nil
}

// Sign issues an assertion that email may sign in to audience.
func (s *Signer) Sign(issuer, email, audience string, now time.Time) (string, error) {
	opts := jose.SignerOptions{}
	opts.WithType("JWT")
	opts.WithHeader("kid", s.keyID)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: s.key}, &opts)
	if err != nil {
		return "", fmt.Errorf("fakepersona: create signer: %w", err)
	}
	claims := AssertionClaims{
		Claims: jwt.Claims{
			Issuer:   issuer,
			Subject:  email,
			Audience: jwt.Audience{audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(AssertionLifetime)),
		},
		Email: email,
	}
	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("fakepersona: sign assertion: %w", err)
	}
	return token, nil
}

// Verify checks the signature, issuer, audience and expiry of an assertion
// and returns the asserted email address.
func (s *Signer) Verify(token, issuer, audience string, now time.Time) (string, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	var claims AssertionClaims
	if err := parsed.Claims(s.pub, &claims); err != nil {
		return "", fmt.Errorf("%w: signature verification failed", ErrInvalidAssertion)
	}
	err = claims.Validate(jwt.Expected{
		Issuer:   issuer,
		Audience: jwt.Audience{audience},
		Time:     now,
	})
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return "", ErrAssertionExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	if claims.Email == "" || claims.Email != claims.Subject {
		return "", fmt.Errorf("%w: subject mismatch", ErrInvalidAssertion)
	}
	return claims.Email, nil
}
