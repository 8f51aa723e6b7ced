// Package storage issues and checks time-limited links to uploaded
// application documents kept under a local document root.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrNoSigningKey = errors.New("document signing key not configured")
	ErrInvalidPath  = errors.New("invalid document path")
	ErrInvalidToken = errors.New("invalid or expired document token")
)

// documentClaims binds a token to one document path.
type documentClaims struct {
	jwt.RegisteredClaims
}

// Signer issues signed document URLs and checks them when a document is served.
type Signer struct {
	root    string
	baseURL string
	key     []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewSigner(root, baseURL, signingKey string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     []byte(signingKey),
		ttl:     ttl,
		now:     time.Now,
	}
}

// cleanPath normalises a stored document path and rejects anything that
// would leave the document root.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// SignedURL returns a link to p valid for the signer's TTL.
func (s *Signer) SignedURL(p string) (string, error) {
	if len(s.key) == 0 {
		return "", ErrNoSigningKey
	}
	clean, err := cleanPath(p)
	if err != nil {
		return "", err
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, documentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clean,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing document token: %w", err)
	}

	escaped := (&url.URL{Path: clean}).EscapedPath()
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, escaped, url.QueryEscape(signed)), nil
}

// Verify checks that token grants access to p.
func (s *Signer) Verify(p, token string) error {
	if len(s.key) == 0 {
		return ErrNoSigningKey
	}
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}

	claims := &documentClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil || !parsed.Valid || claims.Subject != clean {
		return ErrInvalidToken
	}
	return nil
}

// Resolve maps a document path to its location on disk.
func (s *Signer) Resolve(p string) (string, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
