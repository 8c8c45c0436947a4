package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"per minute", PerMinute, false},
		{"per-second", PerSecond, false},
		{"Per Hour", PerHour, false},
		{"minute", PerMinute, false},
		{"per_hour", PerHour, false},
		{"per week", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocument_SetAndGet(t *testing.T) {
	doc := Defaults()

	require.NoError(t, doc.Set("server.port", "8081"))
	require.NoError(t, doc.Set("Server.memcached_enabled", "True"))
	require.NoError(t, doc.Set("RateLimit.period", "per-hour"))
	require.NoError(t, doc.Set("rate_limit.value", "10"))
	require.NoError(t, doc.Set("models.permitted_models", " a,b "))

	assert.Equal(t, 8081, doc.Server.Port)
	assert.True(t, doc.Server.MemcachedEnabled)
	assert.Equal(t, PerHour, doc.RateLimit.Period)
	assert.Equal(t, 10, doc.RateLimit.Value)

	for _, key := range Keys {
		_, err := doc.Get(key)
		assert.NoError(t, err, key)
	}

	v, err := doc.Get("models.permitted_models")
	require.NoError(t, err)
	assert.Equal(t, "a,b", v)
}

func TestDocument_SetRejectsWithoutMutating(t *testing.T) {
	doc := Defaults()

	var verr *ValidationError
	assert.ErrorAs(t, doc.Set("server.port", "0"), &verr)
	assert.ErrorAs(t, doc.Set("server.port", "65536"), &verr)
	assert.ErrorAs(t, doc.Set("ratelimit.value", "1001"), &verr)
	assert.ErrorAs(t, doc.Set("ratelimit.enabled", "maybe"), &verr)
	assert.ErrorAs(t, doc.Set("server.api_key", `sk-"""`), &verr)
	assert.Error(t, doc.Set("server.nope", "x"))

	assert.Equal(t, Defaults(), doc)
}

func TestDocument_PermittedModelList(t *testing.T) {
	doc := Defaults()
	doc.Models.PermittedModels = " mistral-nemo, ,gpt-4o-mini,\ndeepseek-chat ,"

	assert.Equal(t, []string{"mistral-nemo", "gpt-4o-mini", "deepseek-chat"}, doc.PermittedModelList())

	doc.Models.PermittedModels = ""
	assert.Empty(t, doc.PermittedModelList())
}

func TestDocument_CloneIsIndependent(t *testing.T) {
	doc := Defaults()
	c := doc.Clone()
	c.Server.Port = 9000
	assert.Equal(t, 5001, doc.Server.Port)
}
