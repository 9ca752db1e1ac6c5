package main

import (
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}

	for _, want := range []string{"Relay " + Version, "Git Commit: " + GitCommit, runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionInfo(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = origVersion, origCommit })

	Version = "1.4.0"
	GitCommit = "abc123"

	info := versionInfo()
	if info.Version != "1.4.0" || info.Commit != "abc123" || info.BuildTime != BuildDate {
		t.Errorf("versionInfo() = %+v", info)
	}
}
