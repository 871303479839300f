// Package version holds build information injected with -ldflags
package version

var (
	// Version is the semantic version of the build
	Version = "dev"
	// GitCommit is the commit the build was made from
	GitCommit = "unknown"
	// BuildDate is the RFC 3339 build timestamp
	BuildDate = "unknown"
)
