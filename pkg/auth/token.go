package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenIssuer   = "mockinterview"
	defaultTokenAudience = "mockinterview-api"
	minSecretLength      = 32
)

var defaultTokenLeeway = 30 * time.Second

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// TokenOptions configures claim validation.
type TokenOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and validates HS256 access tokens.
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	revoker  TokenRevoker
	issuer   string
	audience string
	leeway   time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration, revoker TokenRevoker, opts TokenOptions) (*TokenIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	opts = normalizeTokenOptions(opts)
	return &TokenIssuer{
		secret:   []byte(secret),
		ttl:      ttl,
		revoker:  revoker,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		leeway:   opts.Leeway,
	}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *TokenIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the user.
func (s *TokenIssuer) Issue(userID, role string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := time.Now().UTC()
	claims := accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        randomTokenID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a token, including revocation.
func (s *TokenIssuer) Verify(token string) (Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Claims{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return Claims{}, err
		}
		if revoked {
			return Claims{}, ErrTokenRevoked
		}
		if userRevoker, ok := s.revoker.(UserTokenRevoker); ok {
			cutoff, err := userRevoker.RevokedAfter(claims.Subject)
			if err != nil {
				return Claims{}, err
			}
			// NumericDate has second precision
			if !cutoff.IsZero() && !claims.IssuedAt.Time.After(cutoff.Truncate(time.Second)) {
				return Claims{}, ErrTokenRevoked
			}
		}
	}
	return Claims{
		UserID:    claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Revoke invalidates a single token until it would have expired. Invalid
// tokens are ignored.
func (s *TokenIssuer) Revoke(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUser invalidates every token of the user issued up to now.
func (s *TokenIssuer) RevokeUser(userID string) error {
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return errors.New("token revoker does not support user revocation")
	}
	return userRevoker.RevokeUser(userID, time.Now().UTC())
}

func (s *TokenIssuer) parse(token string) (accessClaims, error) {
	var claims accessClaims
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return claims, ErrInvalidToken
	}
	return claims, nil
}

func randomTokenID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func normalizeTokenOptions(opts TokenOptions) TokenOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = defaultTokenIssuer
	}
	if opts.Audience == "" {
		opts.Audience = defaultTokenAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultTokenLeeway
	}
	return opts
}
