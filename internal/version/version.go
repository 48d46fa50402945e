// Package version exposes build-time version information.
package version

// Version is the current released version. Overridable at build time:
//
//	go build -ldflags "-X github.com/hrygo/ensemble/internal/version.Version=v0.2.0"
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// GetCurrentVersion returns the version string for the given run mode.
func GetCurrentVersion(mode string) string {
	if mode == "dev" {
		return Version + "-dev"
	}
	return Version
}
