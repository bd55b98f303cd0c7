/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cli

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/zanata/restlimit/config"
	"github.com/zanata/restlimit/httpserver"
	"github.com/zanata/restlimit/limits"
	"github.com/zanata/restlimit/log"
)

type appConfig struct {
	Log    *log.Config        `yaml:"log"`
	Server *httpserver.Config `yaml:"server"`
	Limits *limits.Config     `yaml:"limits"`
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:    log.NewConfig(),
		Server: httpserver.NewConfig(),
		Limits: limits.NewConfig(),
	}
}

func (c *appConfig) all() (config.Config, []config.Config) {
	return c.Log, []config.Config{c.Server, c.Limits}
}

func dataTypeFromPath(path string) config.DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.DataTypeJSON
	}
	return config.DataTypeYAML
}

// loadConfig loads configs from the file (or only from defaults and env vars if path is empty).
func loadConfig(loader *config.Loader, path string, cfg config.Config, cfgs ...config.Config) error {
	if path == "" {
		return loader.LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg, cfgs...)
	}
	return loader.LoadFromFile(path, dataTypeFromPath(path), cfg, cfgs...)
}

func loadAppConfig(flags *rootFlags) (*config.Loader, *appConfig, error) {
	loader := config.NewDefaultLoader(flags.envVarsPrefix)
	appCfg := newAppConfig()
	cfg, cfgs := appCfg.all()
	if err := loadConfig(loader, flags.configFile, cfg, cfgs...); err != nil {
		return nil, nil, err
	}
	return loader, appCfg, nil
}
