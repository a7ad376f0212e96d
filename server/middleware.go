package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiKeyContextKey = "api_key"

// requireAPIKey enforces the X-API-Key header when keys are configured.
// With no keys configured the check is skipped, which suits development and
// deployments that terminate auth upstream.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	keys := s.cfg.APIKeySet()

	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Set(apiKeyContextKey, "anonymous")
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if _, ok := keys[key]; !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}
