package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

// CasdoorAuthMiddleware authenticates requests with Casdoor-issued
// bearer tokens. The identity provider owns sign-in and sign-out; this
// service only consumes confirmed identities.
type CasdoorAuthMiddleware struct {
	client *casdoorsdk.Client
	config config.CasdoorConfig
}

func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)

	return &CasdoorAuthMiddleware{
		client: client,
		config: cfg,
	}
}

// AuthMiddleware validates the bearer token and stores the confirmed
// identity in the request context.
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "authorization header missing"})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := cam.client.ParseJwtToken(tokenParts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Message: "invalid token",
				Details: err.Error(),
			})
			c.Abort()
			return
		}

		identity, err := identityFromClaims(claims)
		if err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Message: err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", identity.ID)
		c.Set("user_email", identity.Email)
		c.Set("identity", identity)

		c.Next()
	}
}

func identityFromClaims(claims *casdoorsdk.Claims) (repositories.Identity, error) {
	userID := claims.User.Id
	if userID == "" {
		userID = claims.Id
	}
	if userID == "" {
		return repositories.Identity{}, fmt.Errorf("token carries no user id")
	}

	name := claims.User.DisplayName
	if name == "" {
		name = claims.User.Name
	}

	return repositories.Identity{
		ID:        userID,
		Name:      name,
		Email:     claims.User.Email,
		AvatarURL: claims.User.Avatar,
	}, nil
}

// GetUserIDFromContext extracts the authenticated user id.
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}

// GetIdentityFromContext extracts the confirmed identity.
func GetIdentityFromContext(c *gin.Context) (repositories.Identity, error) {
	value, exists := c.Get("identity")
	if !exists {
		return repositories.Identity{}, fmt.Errorf("identity not found in context")
	}

	identity, ok := value.(repositories.Identity)
	if !ok {
		return repositories.Identity{}, fmt.Errorf("invalid identity type in context")
	}

	return identity, nil
}
