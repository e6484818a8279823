package blob

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid blob token")

// BlobClaims binds a token to exactly one blob path.
type BlobClaims struct {
	jwt.RegisteredClaims
}

// Signer mints and verifies short-lived HS256 tokens for blob downloads.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("blob signing key is empty")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

func (s *Signer) Mint(path string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := BlobClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   path,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry and that the token was minted for path.
func (s *Signer) Verify(tok, path string) error {
	claims := &BlobClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !tkn.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != path {
		return ErrInvalidToken
	}
	return nil
}
