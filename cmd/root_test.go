package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConfig(t *testing.T) {
	t.Run("applies defaults when no config file exists", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		cfgFile = ""

		require.NoError(t, initializeConfig())
		assert.Equal(t, "info", viper.GetString("logger.level"))
		assert.Equal(t, "http://localhost:3000", viper.GetString("target.ui_base_url"))
		assert.Equal(t, ":8000", viper.GetString("server.addr"))
	})

	t.Run("environment variables override defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		cfgFile = ""
		t.Setenv("PREFPILOT_LOGGER_LEVEL", "debug")
		t.Setenv("PREFPILOT_TARGET_UI_BASE_URL", "http://app:3000")

		require.NoError(t, initializeConfig())
		assert.Equal(t, "debug", viper.GetString("logger.level"))
		assert.Equal(t, "http://app:3000", viper.GetString("target.ui_base_url"))
	})

	t.Run("a missing explicit config file is an error", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		cfgFile = "/does/not/exist.yaml"
		t.Cleanup(func() { cfgFile = "" })

		assert.Error(t, initializeConfig())
	})
}
