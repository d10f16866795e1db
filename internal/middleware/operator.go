package middleware

import (
  "crypto/subtle"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/attendlab/gatesight-backend/internal/logger"
)

const operatorIDKey = "operator_id"

type OperatorMiddleware struct {
  log    *logger.Logger
  apiKey string
}

func NewOperatorMiddleware(log *logger.Logger, apiKey string) *OperatorMiddleware {
  middlewareLogger := log.With("Middleware", "OperatorMiddleware")
  return &OperatorMiddleware{log: middlewareLogger, apiKey: apiKey}
}

// RequireOperator gates the review/config surface behind the shared operator
// key and captures the caller's identity for audit fields. The scan-device
// endpoints stay outside this group.
func (om *OperatorMiddleware) RequireOperator() gin.HandlerFunc {
  return func(c *gin.Context) {
    if om.apiKey == "" {
      om.log.Error("Operator API key not configured, rejecting request")
      c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "operator access not configured"})
      return
    }
    key := c.GetHeader("X-Operator-Key")
    if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(om.apiKey)) != 1 {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid operator key"})
      return
    }
    operator := c.GetHeader("X-Operator-Id")
    if operator == "" {
      operator = "operator"
    }
    c.Set(operatorIDKey, operator)
    c.Next()
  }
}

// OperatorID returns the authenticated operator identity, or empty outside
// the operator group.
func OperatorID(c *gin.Context) string {
  return c.GetString(operatorIDKey)
}
