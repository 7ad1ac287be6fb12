package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, "sqlite:./data/letters.db", cfg.DatabaseURL)
	assert.Equal(t, 168*time.Hour, cfg.TokenGrace)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 200, cfg.SweepBatch)
	assert.Equal(t, uint(4), cfg.EmailMaxTries)
	assert.Len(t, cfg.TokenKey, 32)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.IsProduction())
}

func TestOverrides(t *testing.T) {
	key := strings.Repeat("ab", 32)
	cfg, err := FromMap(map[string]string{
		"LETTERS_ENV":            "production",
		"LETTERS_TOKEN_KEY":      key,
		"LETTERS_API_KEY":        "prod-api-key",
		"LETTERS_SWEEP_INTERVAL": "0s",
		"SMTP_HOST":              "smtp.example.com",
		"MINIO_USE_SSL":          "true",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, byte(0xab), cfg.TokenKey[0])
	assert.Zero(t, cfg.SweepInterval)
	assert.Equal(t, "smtp.example.com", cfg.SMTPHost)
	assert.True(t, cfg.MinioUseSSL)
}

func TestProductionRequiresTokenKey(t *testing.T) {
	_, err := FromMap(map[string]string{"LETTERS_ENV": "production", "LETTERS_API_KEY": "prod-api-key"})
	assert.ErrorContains(t, err, "LETTERS_TOKEN_KEY")
}

func TestProductionRequiresAPIKey(t *testing.T) {
	key := strings.Repeat("ab", 32)
	for name, apiKey := range map[string]string{
		"default": "",
		"dev key": "letters-dev-api-key",
		"blank":   "   ",
	} {
		t.Run(name, func(t *testing.T) {
			values := map[string]string{"LETTERS_ENV": "production", "LETTERS_TOKEN_KEY": key}
			if apiKey != "" {
				values["LETTERS_API_KEY"] = apiKey
			}
			_, err := FromMap(values)
			assert.ErrorContains(t, err, "LETTERS_API_KEY")
		})
	}

	cfg, err := FromMap(map[string]string{"LETTERS_TOKEN_KEY": key})
	require.NoError(t, err)
	assert.Equal(t, "letters-dev-api-key", cfg.APIKey)
}

func TestRejectsBadValues(t *testing.T) {
	for name, values := range map[string]map[string]string{
		"short key":      {"LETTERS_TOKEN_KEY": "abcd"},
		"non hex key":    {"LETTERS_TOKEN_KEY": strings.Repeat("zz", 32)},
		"zero batch":     {"LETTERS_SWEEP_BATCH": "0"},
		"bad duration":   {"LETTERS_TOKEN_GRACE": "soon"},
		"negative grace": {"LETTERS_TOKEN_GRACE": "-1h"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromMap(values)
			assert.Error(t, err)
		})
	}
}
