package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
)

const (
	headerRequestID = "X-Request-ID"
	headerAuthUser  = "X-Auth-User"
	headerAuthRole  = "X-Auth-Role"

	ctxRequestID = "request_id"
	ctxPrincipal = "principal"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ers_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ers_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Principal is the authenticated caller
type Principal struct {
	Username string
	Role     string
}

// IsAdmin reports whether the caller may review requests
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == entity.RoleAdmin
}

// PrincipalFunc extracts the caller from a request; ok is false when anonymous
type PrincipalFunc func(r *http.Request) (*Principal, bool)

// HeaderPrincipal reads X-Auth-User and X-Auth-Role as set by a trusted gateway.
// A missing role means employee.
func HeaderPrincipal(r *http.Request) (*Principal, bool) {
	user := strings.TrimSpace(r.Header.Get(headerAuthUser))
	if user == "" {
		return nil, false
	}
	role := strings.ToLower(strings.TrimSpace(r.Header.Get(headerAuthRole)))
	if role == "" {
		role = entity.RoleEmployee
	}
	return &Principal{Username: user, Role: role}, true
}

// requestIDMiddleware propagates or assigns a request id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// metricsMiddleware records request counts and latency labelled by route template
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxRequestID),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("HTTP request", fields...)
			return
		}
		s.logger.Info("HTTP request", fields...)
	}
}

// authenticate rejects anonymous callers with 401
func authenticate(principal PrincipalFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c.Request)
		if !ok || p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "authentication required",
			})
			return
		}
		c.Set(ctxPrincipal, p)
		c.Next()
	}
}

// requireAdmin rejects non-admin callers with 403
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principalFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "admin role required",
			})
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) *Principal {
	if v, ok := c.Get(ctxPrincipal); ok {
		if p, ok := v.(*Principal); ok {
			return p
		}
	}
	return nil
}
