/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zanata/restlimit/limits"
	"github.com/zanata/restlimit/log/logtest"
)

func writeConfigFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigPrintCmd(t *testing.T) {
	path := writeConfigFile(t, "restlimit.yaml", `
log:
  level: debug
server:
  address: "127.0.0.1:9090"
rest:
  limits:
    maxConcurrent: 20
    maxActive: 4
`)
	out, err := executeCmd(t, "config", "print", "--config", path, "--env-prefix", "restlimit_cli_test")
	require.NoError(t, err)

	var printed struct {
		Log struct {
			Level string `yaml:"level"`
		} `yaml:"log"`
		Server struct {
			Address  string `yaml:"address"`
			Timeouts struct {
				Shutdown string `yaml:"shutdown"`
			} `yaml:"timeouts"`
		} `yaml:"server"`
		Limits limits.Config `yaml:"limits"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &printed))
	require.Equal(t, "debug", printed.Log.Level)
	require.Equal(t, "127.0.0.1:9090", printed.Server.Address)
	require.Equal(t, "5s", printed.Server.Timeouts.Shutdown)
	require.Equal(t, 20, printed.Limits.MaxConcurrent)
	require.Equal(t, 4, printed.Limits.MaxActive)
}

func TestConfigPrintCmd_EnvVars(t *testing.T) {
	t.Setenv("RESTLIMIT_CLI_TEST_REST_LIMITS_MAXACTIVE", "7")
	out, err := executeCmd(t, "config", "print", "--env-prefix", "restlimit_cli_test")
	require.NoError(t, err)
	require.Contains(t, out, "maxActive: 7")
	require.Contains(t, out, "maxConcurrent: 0")
}

func TestConfigPrintCmd_InvalidConfig(t *testing.T) {
	path := writeConfigFile(t, "restlimit.json", `{"rest": {"limits": {"maxConcurrent": -5}}}`)
	_, err := executeCmd(t, "config", "print", "--config", path)
	require.ErrorContains(t, err, "rest.limits.maxConcurrent: should be >= 0")
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	path := writeConfigFile(t, "restlimit.yaml", "server:\n  address: \"\"\n")
	_, err := executeCmd(t, "serve", "--config", path)
	require.ErrorContains(t, err, "server.address: cannot be empty")
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCmd(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "restlimitd v")
}

func TestLimitsReloader(t *testing.T) {
	limiter := limits.MustNew(1, 1)
	logRecorder := logtest.NewRecorder()
	path := writeConfigFile(t, "restlimit.yaml", "rest:\n  limits:\n    maxConcurrent: 10\n    maxActive: 3\n")
	reloader := &limitsReloader{
		limiter: limiter,
		logger:  logRecorder,
		flags:   &rootFlags{configFile: path, envVarsPrefix: "restlimit_cli_test"},
	}

	reloader.reloadFromFile()
	require.Equal(t, 10, limiter.MaxConcurrent())
	require.Equal(t, 3, limiter.MaxActive())
	require.Equal(t, 1, logRecorder.CountEntries("limits reloaded"))

	require.NoError(t, os.WriteFile(path, []byte("rest:\n  limits:\n    maxActive: -1\n"), 0o600))
	reloader.reloadFromFile()
	require.Equal(t, 10, limiter.MaxConcurrent())
	require.Equal(t, 3, limiter.MaxActive())
	require.Equal(t, 1, logRecorder.CountEntries("failed to reload limits, previous values are kept"))
}
