package middleware

import (
	"net/http"
	"time"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"
	"bridge-orchestrator/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for API client authentication
	HeaderAccessKey = "X-Access-Key"
	HeaderSecretKey = "X-Secret-Key"

	// Context keys
	CtxClientID  = "client_id"
	CtxAccessKey = "access_key"
	CtxClientKey = "client"
)

// ClientAuth verifies the access key + secret key pair and stores the
// resolved client on the context.
func ClientAuth(authSvc ports.AuthService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessKey := c.GetHeader(HeaderAccessKey)
		secretKey := c.GetHeader(HeaderSecretKey)

		if accessKey == "" || secretKey == "" {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		client, err := authSvc.Authenticate(c.Request.Context(), accessKey, secretKey)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setClient(c, client)
		c.Next()
	}
}

// JWTAuth validates a bearer token for the operator console and stores the
// resolved client on the context.
func JWTAuth(authSvc ports.AuthService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		client, err := authSvc.ResolveToken(c.Request.Context(), authHeader[7:])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setClient(c, client)
		c.Next()
	}
}

// RequireCapability rejects the request unless the authenticated client holds
// the capability. It must run after ClientAuth or JWTAuth.
func RequireCapability(authz ports.Authorizer, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := ClientFrom(c)
		if !authz.Permits(c.Request.Context(), client, action) {
			response.Error(c, apperror.ErrForbidden(action))
			c.Abort()
			return
		}
		c.Next()
	}
}

func setClient(c *gin.Context, client *domain.APIClient) {
	c.Set(CtxClientID, client.ID)
	c.Set(CtxAccessKey, client.AccessKey)
	c.Set(CtxClientKey, client)
}

// ClientFrom returns the authenticated client stored by ClientAuth/JWTAuth,
// or nil when the request is unauthenticated.
func ClientFrom(c *gin.Context) *domain.APIClient {
	v, exists := c.Get(CtxClientKey)
	if !exists {
		return nil
	}
	client, _ := v.(*domain.APIClient)
	return client
}

// ClientIDFrom returns the authenticated client id, or uuid.Nil.
func ClientIDFrom(c *gin.Context) uuid.UUID {
	v, exists := c.Get(CtxClientID)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "INTERNAL_ERROR",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
