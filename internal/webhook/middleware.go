package webhook

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by APIKeyAuth for downstream handlers.
const (
	ctxAgencyIDKey = "webhookAgencyID"
	ctxKeyIDKey    = "webhookKeyID"
	ctxKeyNameKey  = "webhookKeyName"
)

// KeyFinder resolves an API key by its lookup prefix.
type KeyFinder interface {
	GetByPrefix(ctx context.Context, prefix string) (APIKey, error)
}

// APIKeyAuth validates the X-Webhook-API-Key header and sets the agency
// context for downstream handlers. The prefix narrows the lookup to one row;
// the bcrypt comparison decides.
func APIKeyAuth(keys KeyFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("X-Webhook-API-Key")
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if len(presented) < keyPrefixLen {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		key, err := keys.GetByPrefix(c.Request.Context(), presented[:keyPrefixLen])
		if err != nil || !MatchKey(key.KeyHash, presented) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		if len(key.AllowedDomains) > 0 {
			origin := c.GetHeader("Origin")
			if origin == "" {
				origin = c.GetHeader("Referer")
			}
			if !isDomainAllowed(origin, key.AllowedDomains) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "domain not allowed"})
				return
			}
		}

		c.Set(ctxAgencyIDKey, key.AgencyID)
		c.Set(ctxKeyIDKey, key.ID)
		c.Set(ctxKeyNameKey, key.Name)
		c.Next()
	}
}

// isDomainAllowed checks the origin host against the allowlist. Supports
// exact hosts and wildcard subdomains ("*.example.com").
func isDomainAllowed(origin string, allowedDomains []string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		switch {
		case domain == "*":
			return true
		case strings.HasPrefix(domain, "*."):
			suffix := domain[1:] // ".example.com"
			if strings.HasSuffix(host, suffix) || host == domain[2:] {
				return true
			}
		case host == domain:
			return true
		}
	}
	return false
}
