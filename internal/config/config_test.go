package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("defaults produce a valid config", func(t *testing.T) {
		cfg, err := NewConfigFromViper(newDefaultViper())
		require.NoError(t, err)

		assert.Equal(t, "info", cfg.Logger.Level)
		assert.Equal(t, "prefpilot", cfg.Logger.ServiceName)
		assert.True(t, cfg.Browser.Headless)
		assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
		assert.Equal(t, 10*time.Second, cfg.Browser.ActionTimeout)
		assert.Equal(t, "user_data.json", cfg.Store.Path)
		assert.Equal(t, "http://localhost:3000", cfg.Target.UIBaseURL)
		assert.Equal(t, "http://localhost:8000", cfg.Target.APIBaseURL)
	})

	t.Run("overrides from viper are honored", func(t *testing.T) {
		v := newDefaultViper()
		v.Set("browser.headless", false)
		v.Set("target.ui_base_url", "http://app.internal:3000")
		v.Set("llm.model", "gemini-2.5-pro")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, "http://app.internal:3000", cfg.Target.UIBaseURL)
		assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	})

	t.Run("api key comes from the environment", func(t *testing.T) {
		t.Setenv("PREFPILOT_LLM_API_KEY", "test-key-123")
		cfg, err := NewConfigFromViper(newDefaultViper())
		require.NoError(t, err)
		assert.Equal(t, "test-key-123", cfg.LLM.APIKey)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := NewConfigFromViper(newDefaultViper())
		require.NoError(t, err)
		return cfg
	}

	t.Run("rejects non-positive viewport", func(t *testing.T) {
		cfg := valid()
		cfg.Browser.ViewportWidth = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects out-of-range temperature", func(t *testing.T) {
		cfg := valid()
		cfg.LLM.Temperature = 3.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects empty store path", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Path = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects missing target base URLs", func(t *testing.T) {
		cfg := valid()
		cfg.Target.APIBaseURL = ""
		assert.Error(t, cfg.Validate())
	})
}
