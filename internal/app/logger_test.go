package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(logger.Replace(logger.Logger()))

	require.NoError(t, ConfigureLogging(ServerConfig{}))
	require.NoError(t, ConfigureLogging(ServerConfig{LogLevel: "debug", LogFormat: "console"}))
	require.NotNil(t, logger.Logger())
}
