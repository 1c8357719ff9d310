// Package version provides the release version of the module.
package version

import "fmt"

// Build info, overridden at link time.
var (
	release = "0.1.0"
	build   = "dev"
)

// Version describes a release.
type Version struct {
	Release string
	Build   string
}

// Current returns the current version.
func Current() Version {
	return Version{
		Release: release,
		Build:   build,
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%s-%s", v.Release, v.Build)
}
