package supervisor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/onemin-relay/relayctl/internal/settings"
)

// Environment variables the relay reads its configuration from.
const (
	EnvHost             = "RELAY_HOST"
	EnvPort             = "RELAY_PORT"
	EnvMemcachedEnabled = "RELAY_MEMCACHED_ENABLED"
	EnvMemcachedURL     = "RELAY_MEMCACHED_URL"
	EnvAPIKey           = "RELAY_API_KEY"
	EnvRateLimitEnabled = "RELAY_RATE_LIMIT_ENABLED"
	EnvRateLimitValue   = "RELAY_RATE_LIMIT_VALUE"
	EnvRateLimitPeriod  = "RELAY_RATE_LIMIT_PERIOD"
	EnvPermittedModels  = "SUBSET_OF_ONE_MIN_PERMITTED_MODELS"
	EnvPermitSubsetOnly = "PERMIT_MODELS_FROM_SUBSET_ONLY"
)

// Overlay maps a settings document onto the relay's environment variables.
// The memcached URL is only set when memcached is enabled.
func Overlay(doc *settings.Document) map[string]string {
	env := map[string]string{
		EnvHost:             doc.Server.Host,
		EnvPort:             strconv.Itoa(doc.Server.Port),
		EnvMemcachedEnabled: strconv.FormatBool(doc.Server.MemcachedEnabled),
		EnvAPIKey:           doc.Server.APIKey,
		EnvRateLimitEnabled: strconv.FormatBool(doc.RateLimit.Enabled),
		EnvRateLimitValue:   strconv.Itoa(doc.RateLimit.Value),
		EnvRateLimitPeriod:  string(doc.RateLimit.Period),
		EnvPermittedModels:  doc.Models.PermittedModels,
		EnvPermitSubsetOnly: strconv.FormatBool(doc.Models.PermitSubsetOnly),
	}
	if doc.Server.MemcachedEnabled {
		env[EnvMemcachedURL] = doc.Server.MemcachedURL
	}
	return env
}

// MergeEnv returns base with every overlay key replaced or appended.
// Overlay entries are appended in sorted order so the result is stable.
func MergeEnv(base []string, overlay map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := overlay[key]; overridden {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overlay[k])
	}
	return merged
}
