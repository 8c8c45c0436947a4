package relay

import "github.com/onemin-relay/relayctl/internal/settings"

// LiveConfig is the subset of the settings a running relay accepts without
// a restart. The API key and model filter are deliberately absent: they
// only reach the relay through its environment at start.
type LiveConfig struct {
	MemcachedEnabled bool            `json:"memcached_enabled"`
	MemcachedURL     string          `json:"memcached_url"`
	RateLimit        RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig is the rate_limit object of a LiveConfig.
type RateLimitConfig struct {
	Enabled bool   `json:"enabled"`
	Value   int    `json:"value"`
	Period  string `json:"period"`
}

// LiveConfigFrom extracts the live-applicable fields from doc.
func LiveConfigFrom(doc *settings.Document) LiveConfig {
	return LiveConfig{
		MemcachedEnabled: doc.Server.MemcachedEnabled,
		MemcachedURL:     doc.Server.MemcachedURL,
		RateLimit: RateLimitConfig{
			Enabled: doc.RateLimit.Enabled,
			Value:   doc.RateLimit.Value,
			Period:  string(doc.RateLimit.Period),
		},
	}
}

// Model is one entry of the relay's model listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Data []Model `json:"data"`
}

// HealthStatus is the outcome of a health check.
type HealthStatus string

const (
	Healthy     HealthStatus = "healthy"
	Unhealthy   HealthStatus = "unhealthy"
	Unreachable HealthStatus = "unreachable"
)
