// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/dbn-live/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/dbn-live/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/dbn-live/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "runtime"

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent is sent on the gateway handshake.
func UserAgent() string {
	return "dbn-live/" + Version + " " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
}

// BuildInfo is the build description reported by the recorder's health
// endpoint.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Go        string `json:"go"`
}

// Info returns the current build description.
func Info() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		Go:        runtime.Version(),
	}
}
