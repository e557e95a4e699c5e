// Package buildinfo reports what binary is running. Release builds
// stamp the variables below with ldflags:
//
//	go build -ldflags "-X github.com/nugget/lumen/internal/buildinfo.Version=v0.3.0"
//
// Plain "go build" from a checkout still gets the commit and build
// time from the toolchain's VCS stamp.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var (
	started  = time.Now()
	vcsOnce  sync.Once
	vcsStamp = map[string]string{}
)

// fromVCS returns the toolchain's vcs.* setting for key, or "".
func fromVCS(key string) string {
	vcsOnce.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			vcsStamp[s.Key] = s.Value
		}
	})
	return vcsStamp[key]
}

func commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	c := fromVCS("vcs.revision")
	if c == "" {
		return GitCommit
	}
	if len(c) > 12 {
		c = c[:12]
	}
	if fromVCS("vcs.modified") == "true" {
		c += "-dirty"
	}
	return c
}

func builtAt() string {
	if BuildTime != "unknown" {
		return BuildTime
	}
	if t := fromVCS("vcs.time"); t != "" {
		return t
	}
	return BuildTime
}

// BuildInfo is the static metadata printed by "lumen version".
func BuildInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": commit(),
		"git_branch": GitBranch,
		"build_time": builtAt(),
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// RuntimeInfo adds process uptime to BuildInfo.
func RuntimeInfo() map[string]string {
	m := BuildInfo()
	m["uptime"] = Uptime().String()
	return m
}

// Uptime is the time since the process started, to the second.
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}

// UserAgent is sent on every outbound request.
func UserAgent() string {
	return "Lumen/" + Version + " (+https://github.com/nugget/lumen)"
}

// String is the one-line banner logged at startup.
func String() string {
	return fmt.Sprintf("Lumen %s (%s@%s) built %s", Version, commit(), GitBranch, builtAt())
}
