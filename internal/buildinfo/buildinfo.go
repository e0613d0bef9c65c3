// Package buildinfo exposes build metadata injected with -ldflags.
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// Info is the build metadata reported by /health
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	StartedAt string `json:"startedAt"`
}

// Current returns the metadata of the running binary
func Current() Info {
	return Info{
		Version:   Version(),
		BuildTime: BuildTime,
		StartedAt: StartTime,
	}
}

// Version is the commit hash, or "dev" for unstamped builds
func Version() string {
	if CommitHash == "" {
		return "dev"
	}
	return CommitHash
}
