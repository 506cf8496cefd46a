package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for -version output and the
// /version endpoint.
func String() string {
	return fmt.Sprintf("missionmap %s (%s, built %s)", Version, GitSHA, BuildTime)
}

// Info returns the build information as a JSON-friendly map.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_sha":    GitSHA,
		"build_time": BuildTime,
	}
}
