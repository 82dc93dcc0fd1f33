// SPDX-License-Identifier: MIT
//
// Package build carries the metadata embedded at link time: application name,
// build timestamp, Git commit and semantic version. Binaries built without
// -ldflags fall back to development values.
package build

import "fmt"

const (
	devName     = "scribe"
	description = "Capture speech to WAV recordings with a live spectral visualizer"
)

type ldFlags struct {
	Name        string
	Time        string
	Commit      string
	Version     string
	Description string
}

// String is the one-line version banner.
func (f ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        devName,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
		Description: description,
	}
)

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. It returns an error, leaving the development
// values in place, if any flag is missing.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
