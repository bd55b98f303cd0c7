/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"io"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchNotSupported is returned by Loader.Watch when the data provider cannot watch files.
var ErrWatchNotSupported = errors.New("data provider does not support watching configuration file")

// Loader loads configuration values from data provider (with initializing default values before)
// and sets them in configuration objects.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a new configurations loader with an ability to read values from the environment variables.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new configurations' loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// LoadFromFile loads configuration values from file and sets them in configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader loads configuration values from reader and sets them in configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// Watch watches the file that was loaded by LoadFromFile.
// Every time the file changes, configuration values are set in the passed objects again
// and onReload is called from the watching goroutine with the result of loading.
// On error the objects may be updated partially, so onReload should not apply them.
func (l *Loader) Watch(onReload func(err error), cfg Config, cfgs ...Config) error {
	dp := l.DataProvider
	if kp, isPrefixed := dp.(*KeyPrefixedDataProvider); isPrefixed {
		dp = kp.DataProvider
	}
	fw, ok := dp.(FileWatcher)
	if !ok {
		return ErrWatchNotSupported
	}
	all := append([]Config{cfg}, cfgs...)
	fw.WatchFile(func(_ fsnotify.Event) {
		onReload(l.load(all))
	})
	return nil
}

func (l *Loader) load(cfgs []Config) error {
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(DataProviderFor(l.DataProvider, cfg))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(DataProviderFor(l.DataProvider, cfg)); err != nil {
			return err
		}
	}
	return nil
}
