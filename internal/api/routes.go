package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/auth"
	"github.com/sastrawinata/wicara/internal/websocket"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "wicara-server",
		})
	})

	// Prometheus metrics
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/token", func(c echo.Context) error {
		return issueToken(c, logger)
	})

	// WebSocket endpoint. A missing or invalid token does not reject the
	// upgrade; the connection is admitted and per-message authentication
	// answers with error envelopes instead.
	e.GET("/ws", func(c echo.Context) error {
		claims := claimsFromRequest(c, logger)
		return websocket.ServeWS(hub, c, claims, logger)
	})
}

// issueToken exchanges a user id for a signed JWT. Stands in for a real
// identity provider in development deployments.
func issueToken(c echo.Context, logger *zap.Logger) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "user_id is required",
		})
	}

	token, err := auth.GenerateUserToken(req.UserID)
	if err != nil {
		logger.Error("Failed to generate token",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		UserID:    req.UserID,
	})
}

// claimsFromRequest extracts and validates the bearer token, falling back to
// the token query parameter for browser clients. Returns nil when absent or
// invalid.
func claimsFromRequest(c echo.Context, logger *zap.Logger) *auth.JWTClaims {
	var token string
	header := c.Request().Header.Get("Authorization")
	if t, ok := strings.CutPrefix(header, "Bearer "); ok {
		token = t
	}
	if token == "" {
		token = c.QueryParam("token")
	}
	if token == "" {
		return nil
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		logger.Warn("Invalid token on WebSocket upgrade", zap.Error(err))
		return nil
	}
	return claims
}
