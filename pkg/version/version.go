// Package version carries the build version reported by the CLI and
// the diagnostics API.
package version

// Flag marks pre-release builds. Release branches ship with it empty.
const Flag = "dev"

var (
	// Version is the full version string.
	Version = "0.1.0"

	// GitCommit is set at build time with
	// -ldflags "-X .../pkg/version.GitCommit=$(git rev-parse HEAD)".
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}
	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}
