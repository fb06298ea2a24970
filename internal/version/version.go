package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// These values are injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Get returns build info. A dev build falls back to the module version and
// VCS revision recorded by the Go toolchain.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if Version != "dev" {
		return info
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				info.Date = s.Value
			}
		}
	}
	return info
}

// String returns compact human-readable version info.
func String() string {
	info := Get()
	parts := []string{}
	if value := strings.TrimSpace(info.Version); value != "" {
		parts = append(parts, value)
	}
	if value := strings.TrimSpace(info.Commit); value != "" {
		parts = append(parts, "commit="+value)
	}
	if value := strings.TrimSpace(info.Date); value != "" {
		parts = append(parts, "date="+value)
	}
	return strings.Join(parts, " ")
}
