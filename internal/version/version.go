// Package version holds build metadata injected at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.3"
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
