package ai

import (
	"errors"
	"testing"

	"github.com/arakoodev/gutty/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.GeneratorHost)
	assert.Equal(t, "clip-vit-b-32", cfg.CoarseModel)
	assert.Empty(t, cfg.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.GeneratorHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithGeneratorHost("http://gen:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://gen:9090/v1", cfg.GeneratorHost)
	})

	t.Run("with models and key", func(t *testing.T) {
		cfg := NewConfig(
			WithCoarseModel("coarse"),
			WithFineModel("fine"),
			WithGeneratorModel("gen"),
			WithAPIKey("secret"),
		)

		assert.Equal(t, "coarse", cfg.CoarseModel)
		assert.Equal(t, "fine", cfg.FineModel)
		assert.Equal(t, "gen", cfg.GeneratorModel)
		assert.Equal(t, "secret", cfg.Token())
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trims slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps suffix", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
		})
	}

	t.Run("fine model defaults to coarse", func(t *testing.T) {
		cfg := &Config{CoarseModel: "clip"}
		cfg.Normalize()
		assert.Equal(t, "clip", cfg.FineModel)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ConfigOption
		setting string
	}{
		{"missing host", []ConfigOption{WithEmbeddingHost("")}, "EmbeddingHost"},
		{"missing model", []ConfigOption{WithCoarseModel("")}, "CoarseModel"},
		{"remote host without key", []ConfigOption{WithEmbeddingHost("https://api.example.com")}, "APIKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opts...).Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)

			var cfgErr *core.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.setting, cfgErr.Setting)
			assert.Contains(t, err.Error(), tt.setting)
		})
	}

	t.Run("remote host with key", func(t *testing.T) {
		cfg := NewConfig(WithHost("https://api.example.com"), WithAPIKey("k"))
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "https://api.example.com/v1", cfg.EmbeddingHost)
	})
}

func TestConfigValidateGenerator(t *testing.T) {
	cfg := NewConfig(WithGeneratorModel(""))
	require.NoError(t, cfg.Validate())

	err := cfg.ValidateGenerator()
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "GeneratorModel")
}

func TestIsLocalHost(t *testing.T) {
	assert.True(t, IsLocalHost("http://localhost:11434/v1"))
	assert.True(t, IsLocalHost("http://127.0.0.1:8000"))
	assert.False(t, IsLocalHost("https://api.openai.com/v1"))
	assert.False(t, IsLocalHost("://bad"))
}
