// Package version holds build identification stamped in at link time via
// -ldflags.
package version

var (
	// Version is the release version of the sorter.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
