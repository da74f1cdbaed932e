package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/heartsound/report-backend-go/pkg/response"
)

// Roles carried in the token
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleService    = "service"
)

const (
	ctxAdminID = "admin_id"
	ctxRole    = "role"
)

// Claims are the bearer token claims. Subject is the admin ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for subject with the given role
func NewToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies a token and returns its claims
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	switch claims.Role {
	case RoleAdmin, RoleSuperAdmin, RoleService:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// Auth requires a valid bearer token
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		c.Set(ctxAdminID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Role(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "permission denied")
	}
}

// AdminID returns the authenticated admin ID
func AdminID(c *gin.Context) string {
	return c.GetString(ctxAdminID)
}

// Role returns the authenticated role
func Role(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// IsSuperAdmin reports whether the caller sees every admin's tasks
func IsSuperAdmin(c *gin.Context) bool {
	return Role(c) == RoleSuperAdmin
}
