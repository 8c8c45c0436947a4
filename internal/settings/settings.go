// Package settings holds the relay configuration document and its INI-backed
// store. The document is what the control panel edits, what gets persisted to
// relay_config.ini, and what the supervisor turns into the relay's environment.
package settings

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPath is the settings file used when nothing else is configured.
const DefaultPath = "relay_config.ini"

// Range limits for numeric settings.
const (
	MinPort           = 1
	MaxPort           = 65535
	MinRateLimitValue = 1
	MaxRateLimitValue = 1000
)

// Period is the window a rate limit applies to.
type Period string

const (
	PerSecond Period = "per second"
	PerMinute Period = "per minute"
	PerHour   Period = "per hour"
)

// Periods lists the accepted rate limit periods in display order.
var Periods = []Period{PerSecond, PerMinute, PerHour}

// ParsePeriod accepts "per minute", "per-minute", "minute" and friends.
func ParsePeriod(s string) (Period, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", " ")
	norm = strings.ReplaceAll(norm, "_", " ")
	norm = strings.TrimPrefix(norm, "per ")
	switch norm {
	case "second", "sec", "s":
		return PerSecond, nil
	case "minute", "min", "m":
		return PerMinute, nil
	case "hour", "h":
		return PerHour, nil
	}
	return "", fmt.Errorf("unknown rate limit period %q (want one of: per second, per minute, per hour)", s)
}

// Document is the full relay configuration as persisted on disk.
type Document struct {
	Server    ServerSection    `json:"server" yaml:"server"`
	RateLimit RateLimitSection `json:"rate_limit" yaml:"rate_limit"`
	Models    ModelsSection    `json:"models" yaml:"models"`
}

// ServerSection is the [Server] section.
type ServerSection struct {
	Host             string `json:"host" yaml:"host"`
	Port             int    `json:"port" yaml:"port"`
	MemcachedEnabled bool   `json:"memcached_enabled" yaml:"memcached_enabled"`
	MemcachedURL     string `json:"memcached_url" yaml:"memcached_url"`
	APIKey           string `json:"api_key" yaml:"api_key"`
}

// RateLimitSection is the [RateLimit] section.
type RateLimitSection struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Value   int    `json:"value" yaml:"value"`
	Period  Period `json:"period" yaml:"period"`
}

// ModelsSection is the [Models] section. PermittedModels is kept as the raw
// comma separated string so the document round-trips byte for byte.
type ModelsSection struct {
	PermitSubsetOnly bool   `json:"permit_subset_only" yaml:"permit_subset_only"`
	PermittedModels  string `json:"permitted_models" yaml:"permitted_models"`
}

func defaultServer() ServerSection {
	return ServerSection{
		Host:         "localhost",
		Port:         5001,
		MemcachedURL: "localhost:11211",
	}
}

func defaultRateLimit() RateLimitSection {
	return RateLimitSection{
		Enabled: true,
		Value:   500,
		Period:  PerMinute,
	}
}

func defaultModels() ModelsSection {
	return ModelsSection{
		PermittedModels: "mistral-nemo,gpt-4o-mini,deepseek-chat",
	}
}

// Defaults returns the document a fresh install starts with.
func Defaults() *Document {
	return &Document{
		Server:    defaultServer(),
		RateLimit: defaultRateLimit(),
		Models:    defaultModels(),
	}
}

// Clone returns a copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// PermittedModelList splits the permitted models string on commas,
// trimming whitespace and dropping empty entries.
func (d *Document) PermittedModelList() []string {
	var models []string
	for _, m := range strings.Split(d.Models.PermittedModels, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// Validate reports the first out-of-range or unknown value.
func (d *Document) Validate() error {
	if d.Server.Port < MinPort || d.Server.Port > MaxPort {
		return &ValidationError{Key: "server.port", Value: strconv.Itoa(d.Server.Port),
			Reason: fmt.Sprintf("must be between %d and %d", MinPort, MaxPort)}
	}
	if d.RateLimit.Value < MinRateLimitValue || d.RateLimit.Value > MaxRateLimitValue {
		return &ValidationError{Key: "ratelimit.value", Value: strconv.Itoa(d.RateLimit.Value),
			Reason: fmt.Sprintf("must be between %d and %d", MinRateLimitValue, MaxRateLimitValue)}
	}
	if p, err := ParsePeriod(string(d.RateLimit.Period)); err != nil || p != d.RateLimit.Period {
		return &ValidationError{Key: "ratelimit.period", Value: string(d.RateLimit.Period), Reason: "unknown period"}
	}
	for _, f := range []struct{ key, value string }{
		{"server.host", d.Server.Host},
		{"server.memcached_url", d.Server.MemcachedURL},
		{"server.api_key", d.Server.APIKey},
		{"models.permitted_models", d.Models.PermittedModels},
	} {
		if err := checkText(f.key, f.value); err != nil {
			return err
		}
	}
	return nil
}

// checkText rejects string values the settings file cannot store and read
// back unchanged.
func checkText(key, value string) error {
	switch {
	case strings.TrimSpace(value) != value:
		return &ValidationError{Key: key, Value: value, Reason: "must not start or end with whitespace"}
	case strings.Contains(value, `"""`):
		return &ValidationError{Key: key, Value: value, Reason: `must not contain """`}
	case strings.ContainsRune(value, '\r'):
		return &ValidationError{Key: key, Value: value, Reason: "must not contain a carriage return"}
	}
	return nil
}

// Keys lists every settable key in display order.
var Keys = []string{
	"server.host",
	"server.port",
	"server.memcached_enabled",
	"server.memcached_url",
	"server.api_key",
	"ratelimit.enabled",
	"ratelimit.value",
	"ratelimit.period",
	"models.permit_subset_only",
	"models.permitted_models",
}

// Set assigns a single value addressed by a dotted key such as
// "server.port" or "RateLimit.period". The document is left unchanged when
// the value does not parse or is out of range.
func (d *Document) Set(key, value string) error {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.Replace(k, "rate_limit.", "ratelimit.", 1)

	switch k {
	case "server.host":
		v := strings.TrimSpace(value)
		if err := checkText(k, v); err != nil {
			return err
		}
		d.Server.Host = v
	case "server.port":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return &ValidationError{Key: k, Value: value, Reason: "not an integer"}
		}
		if n < MinPort || n > MaxPort {
			return &ValidationError{Key: k, Value: value, Reason: fmt.Sprintf("must be between %d and %d", MinPort, MaxPort)}
		}
		d.Server.Port = n
	case "server.memcached_enabled":
		b, err := parseBool(value)
		if err != nil {
			return &ValidationError{Key: k, Value: value, Reason: "not a boolean"}
		}
		d.Server.MemcachedEnabled = b
	case "server.memcached_url":
		v := strings.TrimSpace(value)
		if err := checkText(k, v); err != nil {
			return err
		}
		d.Server.MemcachedURL = v
	case "server.api_key":
		v := strings.TrimSpace(value)
		if err := checkText(k, v); err != nil {
			return err
		}
		d.Server.APIKey = v
	case "ratelimit.enabled":
		b, err := parseBool(value)
		if err != nil {
			return &ValidationError{Key: k, Value: value, Reason: "not a boolean"}
		}
		d.RateLimit.Enabled = b
	case "ratelimit.value":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return &ValidationError{Key: k, Value: value, Reason: "not an integer"}
		}
		if n < MinRateLimitValue || n > MaxRateLimitValue {
			return &ValidationError{Key: k, Value: value,
				Reason: fmt.Sprintf("must be between %d and %d", MinRateLimitValue, MaxRateLimitValue)}
		}
		d.RateLimit.Value = n
	case "ratelimit.period":
		p, err := ParsePeriod(value)
		if err != nil {
			return &ValidationError{Key: k, Value: value, Reason: "unknown period"}
		}
		d.RateLimit.Period = p
	case "models.permit_subset_only":
		b, err := parseBool(value)
		if err != nil {
			return &ValidationError{Key: k, Value: value, Reason: "not a boolean"}
		}
		d.Models.PermitSubsetOnly = b
	case "models.permitted_models":
		v := strings.TrimSpace(value)
		if err := checkText(k, v); err != nil {
			return err
		}
		d.Models.PermittedModels = v
	default:
		return fmt.Errorf("unknown settings key %q", key)
	}
	return nil
}

// Get returns the string form of a dotted key, as Set would accept it.
func (d *Document) Get(key string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.Replace(k, "rate_limit.", "ratelimit.", 1)

	switch k {
	case "server.host":
		return d.Server.Host, nil
	case "server.port":
		return strconv.Itoa(d.Server.Port), nil
	case "server.memcached_enabled":
		return strconv.FormatBool(d.Server.MemcachedEnabled), nil
	case "server.memcached_url":
		return d.Server.MemcachedURL, nil
	case "server.api_key":
		return d.Server.APIKey, nil
	case "ratelimit.enabled":
		return strconv.FormatBool(d.RateLimit.Enabled), nil
	case "ratelimit.value":
		return strconv.Itoa(d.RateLimit.Value), nil
	case "ratelimit.period":
		return string(d.RateLimit.Period), nil
	case "models.permit_subset_only":
		return strconv.FormatBool(d.Models.PermitSubsetOnly), nil
	case "models.permitted_models":
		return d.Models.PermittedModels, nil
	}
	return "", fmt.Errorf("unknown settings key %q", key)
}

// parseBool accepts the boolean spellings common in INI files.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "y", "t":
		return true, nil
	case "0", "false", "no", "off", "n", "f":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Endpoint returns the base URL of a relay listening on host:port.
func Endpoint(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Endpoint returns the base URL the relay configured by d listens on.
func (d *Document) Endpoint() string {
	return Endpoint(d.Server.Host, d.Server.Port)
}
