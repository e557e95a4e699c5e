package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "Lumen/"+Version) {
		t.Errorf("UserAgent() = %q, want prefix %q", ua, "Lumen/"+Version)
	}
}

func TestRuntimeInfoIncludesUptime(t *testing.T) {
	info := RuntimeInfo()
	for _, k := range []string{"version", "go_version", "uptime"} {
		if _, ok := info[k]; !ok {
			t.Errorf("RuntimeInfo() missing key %q", k)
		}
	}
	if _, ok := BuildInfo()["uptime"]; ok {
		t.Error("BuildInfo() should not include uptime")
	}
}

func TestLdflagsWin(t *testing.T) {
	oldCommit, oldTime := GitCommit, BuildTime
	t.Cleanup(func() { GitCommit, BuildTime = oldCommit, oldTime })

	GitCommit, BuildTime = "abc1234", "2026-01-02T03:04:05Z"
	info := BuildInfo()
	if info["git_commit"] != "abc1234" || info["build_time"] != "2026-01-02T03:04:05Z" {
		t.Errorf("BuildInfo() = %v, want stamped values", info)
	}
	if s := String(); !strings.Contains(s, "abc1234@") {
		t.Errorf("String() = %q", s)
	}
}
