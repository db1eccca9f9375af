package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantly/tenantly/internal/identity"
	"github.com/tenantly/tenantly/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"

	// headerUserID carries the authenticated user id asserted by the
	// fronting identity provider. The proxy strips the header from
	// untrusted traffic before it reaches this service.
	headerUserID = "X-User-ID"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}

func AccessLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	access := log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		access.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// OrgContext resolves the path organization and stamps it into the request
// context as the tenant.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := snowflake.ParseString(c.Param("org_id"))
		if err != nil {
			AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization id"))
			return
		}
		c.Request = c.Request.WithContext(tenantctx.WithTenantID(c.Request.Context(), orgID))
		c.Next()
	}
}

func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := orgIDFromContext(c)
		userID, ok := identity.UserID(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.RequireAdmin(c.Request.Context(), orgID, userID); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) MemberRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := orgIDFromContext(c)
		userID, ok := identity.UserID(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.RequireMember(c.Request.Context(), orgID, userID); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func orgIDFromContext(c *gin.Context) snowflake.ID {
	if id, ok := tenantctx.TenantID(c.Request.Context()); ok {
		return id
	}
	return 0
}
