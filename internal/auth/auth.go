package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Store is the subset of internal/store.Store needed for token
// authentication and bootstrap.
type Store interface {
	VerifyToken(ctx context.Context, plain string) (string, error)
	TouchToken(ctx context.Context, name string) error
	TokenCount(ctx context.Context) (int, error)
	CreateToken(ctx context.Context, name, plain, role string) (store.Token, error)
	GetTokenByName(ctx context.Context, name string) (store.Token, error)
}

// AuthService is the bearer-token authentication middleware. Session/OAuth
// login is out of scope (spec.md §1): every caller authenticates with a
// static bearer token minted ahead of time, either bootstrapped from
// ADMIN_TOKEN or issued via the tokens API.
type AuthService struct {
	store       Store
	rateLimiter *RateLimiter
}

// NewAuthService creates an AuthService backed by store.
func NewAuthService(store Store) *AuthService {
	return &AuthService{
		store:       store,
		rateLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}
}

// BootstrapAdminToken creates the initial admin token from adminToken if no
// tokens exist yet. It is a no-op once any token has been created.
func (a *AuthService) BootstrapAdminToken(ctx context.Context, adminToken string) error {
	if adminToken == "" {
		return nil
	}

	count, err := a.store.TokenCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := a.store.CreateToken(ctx, "admin", adminToken, store.RoleAdmin); err != nil {
		return err
	}

	log.Info().Str("token_name", "admin").Msg("bootstrapped admin token from ADMIN_TOKEN")
	return nil
}

// Middleware authenticates every request against a bearer token, rate
// limiting attempts per client IP.
func (a *AuthService) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := getClientIP(c)
		allowed, backoffDuration := a.rateLimiter.IsAllowed(clientIP)
		if !allowed {
			retryAfter := "60"
			if backoffDuration > 0 {
				retryAfter = fmt.Sprintf("%.0f", backoffDuration.Seconds())
			}
			c.Header("Retry-After", retryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		var token string
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			if queryToken := c.Query("token"); queryToken != "" {
				token = queryToken
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authentication"})
			c.Abort()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		tokenName, err := a.store.VerifyToken(ctx, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		fullToken, err := a.store.GetTokenByName(ctx, tokenName)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if err := a.store.TouchToken(ctx, tokenName); err != nil {
			log.Warn().Err(err).Str("token_name", tokenName).Msg("failed to update token last_used_at")
		}
		a.rateLimiter.RecordSuccess(clientIP)

		c.Set("token_name", tokenName)
		c.Set("token_role", fullToken.Role)
		c.Next()
	}
}

// RequireAdminRole rejects any caller whose token role is not admin.
func (a *AuthService) RequireAdminRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("token_role")
		if !exists || role.(string) != store.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentRole retrieves the authenticated caller's role from context.
func CurrentRole(c *gin.Context) string {
	role, exists := c.Get("token_role")
	if !exists {
		return ""
	}
	return role.(string)
}

// CurrentTokenName retrieves the authenticated caller's token name from
// context.
func CurrentTokenName(c *gin.Context) string {
	name, exists := c.Get("token_name")
	if !exists {
		return ""
	}
	return name.(string)
}

func getClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		return parseIP(xff)
	}
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return parseIP(xri)
	}
	return parseIP(c.ClientIP())
}

func parseIP(ipStr string) string {
	if ipStr == "" {
		return "unknown"
	}
	for i, r := range ipStr {
		if r == ',' || r == ' ' {
			return ipStr[:i]
		}
	}
	return ipStr
}
