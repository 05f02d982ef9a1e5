// Package identity issues and verifies the administrator capability tokens
// that guard trust-registry mutation and ledger registry repointing.
//
// Registry mutation is an administrative act. Every admin route requires a
// Bearer token minted from the shared admin secret; with no secret
// configured the admin surface is closed, not open.
package identity

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AdminClaims are the JWT claims of an administrator capability token.
type AdminClaims struct {
	jwt.RegisteredClaims

	// Operator is a human-readable label for audit logs.
	Operator string `json:"operator"`
}

// AdminIssuer issues and verifies admin tokens signed with HS256.
type AdminIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAdminIssuer creates an AdminIssuer.
//
//	issuerURL — the "iss" claim value; typically the service's base URL.
//	ttl       — token lifetime (default: 1 hour).
func NewAdminIssuer(secret []byte, issuerURL string, ttl time.Duration) *AdminIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &AdminIssuer{secret: secret, issuer: issuerURL, ttl: ttl}
}

// Issue creates a signed admin token for the named operator.
func (a *AdminIssuer) Issue(operator string) (string, error) {
	now := time.Now().UTC()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.New().String(),
		},
		Operator: operator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an admin token, returning its claims.
func (a *AdminIssuer) Verify(tokenStr string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AdminClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify admin token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (a *AdminIssuer) TTL() time.Duration { return a.ttl }

// adminClaimsKey is the gin context key holding verified AdminClaims.
const adminClaimsKey = "trustchain_admin_claims"

// RequireAdmin returns a gin middleware that rejects requests without a
// valid admin Bearer token. A nil issuer closes the admin surface entirely.
func RequireAdmin(issuer *AdminIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if issuer == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin operations are disabled: no admin secret configured",
			})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := issuer.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}

		c.Set(adminClaimsKey, claims)
		c.Next()
	}
}

// AdminFromContext returns the verified claims set by RequireAdmin, if any.
func AdminFromContext(c *gin.Context) (*AdminClaims, bool) {
	v, ok := c.Get(adminClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*AdminClaims)
	return claims, ok
}
