package main

import (
	"testing"

	"github.com/docopt/docopt-go"
	"github.com/noodles/ramen/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func parse(t *testing.T, args ...string) docopt.Opts {
	t.Helper()
	opts, err := docopt.ParseArgs(usage, append([]string{}, args...), version)
	require.NoError(t, err)
	return opts
}

func TestConfigPath(t *testing.T) {
	t.Setenv("RAMEN_CONFIG", "")
	assert.Equal(t, "config/ramen.toml", configPath(parse(t)))

	t.Setenv("RAMEN_CONFIG", "/etc/ramen.toml")
	assert.Equal(t, "/etc/ramen.toml", configPath(parse(t)))
	assert.Equal(t, "local.toml", configPath(parse(t, "--config=local.toml")))
}

func TestUsageFlags(t *testing.T) {
	opts := parse(t, "--url=ws://scene:50000", "--dump")
	u, err := opts.String("--url")
	require.NoError(t, err)
	assert.Equal(t, "ws://scene:50000", u)
	dump, err := opts.Bool("--dump")
	require.NoError(t, err)
	assert.True(t, dump)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = newLogger(config.LoggingConfig{Level: "nonsense", Format: "console"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}
