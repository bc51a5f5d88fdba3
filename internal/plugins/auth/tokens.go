package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTokenType is the value of the "type" claim that marks a refresh
// token. Access tokens carry no type claim.
const refreshTokenType = "refresh"

// Claims is the JWT payload for both access and refresh tokens. The subject
// is the username; UserID avoids a database lookup when resolving requests.
// Tokens minted before the userId claim was introduced omit it, so UserID
// may be empty on otherwise valid tokens.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Type   string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies JWTs with HMAC-SHA256. A single codec
// instance holds the derived signing key and the configured lifetimes.
type TokenCodec struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

// NewTokenCodec derives the HS256 signing key from the configured secret and
// returns a codec. The secret is tried as base64 first; if it doesn't decode,
// its raw bytes are used. Existing deployments configured plain-text secrets,
// so both forms must keep producing the same key.
func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		key:        deriveKey(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		// Claims validation is done separately so callers can distinguish a
		// bad signature from an expired token.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// deriveKey converts a configured secret string into HS256 key bytes.
// Base64-decodable secrets use the decoded bytes, anything else its raw
// bytes. Either way, key material shorter than the 32-byte HS256 minimum is
// repeated cyclically up to 32 bytes. Plain-text secrets are often valid
// base64 by accident, so the decoded branch must not skip the minimum.
func deriveKey(secret string) []byte {
	keyBytes := []byte(secret)
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) > 0 {
		keyBytes = decoded
	}

	if len(keyBytes) >= 32 {
		return keyBytes
	}

	padded := make([]byte, 32)
	for i := range padded {
		padded[i] = keyBytes[i%len(keyBytes)]
	}
	return padded
}

// IssueAccess mints a short-lived access token for the given user.
func (c *TokenCodec) IssueAccess(username string, userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// IssueRefresh mints a long-lived refresh token. It carries type=refresh so
// it can never pass as an access token.
func (c *TokenCodec) IssueRefresh(username string, userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		Type:   refreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// IssuePair mints a matching access and refresh token for the given user.
func (c *TokenCodec) IssuePair(username string, userID uuid.UUID) (access, refresh string, err error) {
	access, err = c.IssueAccess(username, userID)
	if err != nil {
		return "", "", err
	}
	refresh, err = c.IssueRefresh(username, userID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Parse verifies the token signature and returns its claims. It does NOT
// check expiry; callers use IsExpired for that so the two failure modes stay
// distinguishable.
func (c *TokenCodec) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return claims, nil
}

// IsExpired reports whether the token's expiry has passed. Fails closed:
// unparseable tokens and tokens without an exp claim count as expired.
func (c *TokenCodec) IsExpired(tokenString string) bool {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Before(time.Now())
}

// IsRefreshToken reports whether the token carries the refresh marker.
// Returns false on any parse failure.
func (c *TokenCodec) IsRefreshToken(tokenString string) bool {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return false
	}
	return claims.Type == refreshTokenType
}

// ExtractSubject returns the username a valid token was issued to.
func (c *TokenCodec) ExtractSubject(tokenString string) (string, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractUserID returns the user ID carried in a valid token, or uuid.Nil
// for tokens minted before the userId claim was introduced.
func (c *TokenCodec) ExtractUserID(tokenString string) uuid.UUID {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return uuid.Nil
	}
	if claims.UserID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
