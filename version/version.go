// Package version holds build information for regionpool binaries.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/go-i2p/regionpool/version.Version=1.0.0 \
//	    -X github.com/go-i2p/regionpool/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without ldflags the commit falls back to the VCS stamp recorded by the
// Go toolchain, when present.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitCommit is the short commit hash.
	GitCommit = ""
	// BuildTime is an RFC 3339 timestamp of the build.
	BuildTime = ""
)

// Info is the build information reported by `regionpool version --json`
// and the status endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information, filling the commit and build time
// from the embedded VCS settings when ldflags did not set them.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if info.Commit != "" && info.BuildTime != "" {
		return info
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fromSettings(info, bi.Settings)
}

func fromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" && s.Value != "" {
				info.Commit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// Full formats the version as "version-commit (build time)", leaving out
// the parts that are not known.
func Full() string {
	return format(Version, GitCommit, BuildTime)
}

// String formats i the same way as Full.
func (i Info) String() string {
	return format(i.Version, i.Commit, i.BuildTime)
}

func format(v, commit, built string) string {
	if commit != "" {
		v += "-" + commit
	}
	if built != "" {
		v += " (" + built + ")"
	}
	return v
}
