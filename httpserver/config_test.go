/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zanata/restlimit/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgData     string
		expectedCfg func() *Config
		expectedErr string
	}{
		{
			name:        "default values",
			cfgData:     ``,
			expectedCfg: func() *Config { return NewDefaultConfig() },
		},
		{
			name: "custom values",
			cfgData: `
server:
  address: "127.0.0.1:8888"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  log:
    requestStart: true
    addRequestInfo: true
    excludedEndpoints:
      - /healthz
      - /api/test/v1/ping
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:8888"
				cfg.Timeouts = TimeoutsConfig{
					Write:      time.Hour,
					Read:       time.Minute * 7,
					ReadHeader: time.Minute,
					Idle:       time.Minute * 20,
					Shutdown:   time.Second * 30,
				}
				cfg.Log = LogConfig{
					RequestStart:           true,
					AddRequestInfoToLogger: true,
					ExcludedEndpoints:      []string{"/metrics", "/healthz", "/api/test/v1/ping"},
				}
				return cfg
			},
		},
		{
			name: "empty address",
			cfgData: `
server:
  address: ""
`,
			expectedErr: "server.address: cannot be empty",
		},
		{
			name: "negative timeout",
			cfgData: `
server:
  timeouts:
    shutdown: -1s
`,
			expectedErr: "server.timeouts.shutdown: should be >= 0",
		},
		{
			name: "invalid timeout",
			cfgData: `
server:
  timeouts:
    read: soon
`,
			expectedErr: "server.timeouts.read",
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.expectedErr != "" {
				require.ErrorContains(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfigWithKeyPrefix(t *testing.T) {
	cfgData := `
api:
  server:
    address: ":9999"
`
	cfg := NewConfig(WithKeyPrefix("api.server"))
	require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg))
	require.Equal(t, ":9999", cfg.Address)
	require.Equal(t, defaultServerTimeoutsShutdown, cfg.Timeouts.Shutdown)
}

func TestConfigYAMLUnmarshal(t *testing.T) {
	cfgData := `
address: ":7070"
timeouts:
  write: 2m
  shutdown: 10s
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(cfgData), &cfg))
	require.Equal(t, ":7070", cfg.Address)
	require.Equal(t, time.Minute*2, cfg.Timeouts.Write)
	require.Equal(t, time.Second*10, cfg.Timeouts.Shutdown)
}
