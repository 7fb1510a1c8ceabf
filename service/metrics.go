package service

import (
	"fmt"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Revision  string
	GoVersion string
}

// ReadBuildInfo returns the build information embedded in the binary with the given
// release version. Fields that are not available are "undefined".
func ReadBuildInfo(version string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		Revision:  "undefined",
		GoVersion: "undefined",
	}
	goBuildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = goBuildInfo.GoVersion
	for _, setting := range goBuildInfo.Settings {
		if setting.Key == "vcs.revision" {
			info.Revision = setting.Value
		}
	}
	return info
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (revision %s, %s)", b.Version, b.Revision, b.GoVersion)
}

// MustRegisterMetrics will register all metrics on the given registry.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(buildInfo)
}

// SampleBuildInfo creates a sample of the service_build_info metric.
// Since it is a gauge it needs to be set only once on startup.
func SampleBuildInfo(info BuildInfo) {
	buildInfo.With(prometheus.Labels{
		"goversion": info.GoVersion,
		"revision":  info.Revision,
		"version":   info.Version,
	}).Set(1.0)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "service_build_info",
		Help: "Build information of the binary",
	},
	[]string{"revision", "goversion", "version"},
)
