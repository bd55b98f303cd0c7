/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package buildinfo resolves the version of restlimit the running binary was built with.
package buildinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/zanata/restlimit"

const unknownVersion = "v0.0.0"

// PrometheusVersionLabel is a const label added to the call limiter metrics.
const PrometheusVersionLabel = "restlimit_version"

// AddPrometheusVersionLabel returns a copy of labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

var version string
var versionOnce sync.Once

// GetVersion returns the module version, or "v0.0.0" if it cannot be determined.
func GetVersion() string {
	versionOnce.Do(func() {
		if bi, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(bi, moduleName)
		}
		if version == "" {
			version = unknownVersion
		}
	})
	return version
}

// extractVersion looks for the module either as the main module (restlimitd binary)
// or as a dependency (library usage). "moduleName/vX" paths are matched too.
func extractVersion(bi *debug.BuildInfo, modName string) string {
	if bi == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(bi.Main.Path) && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
