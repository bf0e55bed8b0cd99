package version

import (
	"strings"
	"testing"
)

func TestStringUsesInjectedCommit(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version = "1.2.0"
	GitCommit = "0123456789abcdef"

	if got := String(); got != "1.2.0 (0123456)" {
		t.Errorf("String() = %q", got)
	}
	if got := Get().GitCommit; got != GitCommit {
		t.Errorf("Get().GitCommit = %q", got)
	}
}

func TestGetPlatform(t *testing.T) {
	info := Get()
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
}
