package app

import (
	"runtime/debug"
	"strings"
	"time"
)

// Filled by -ldflags "-X github.com/foodlens/framelink/internal/app.Version=..." in release builds.
var (
	Version   = "dev"
	BuildDate = ""
	Commit    = ""
)

const shortCommitLen = 7

// Build identifies the running framelink binary.
type Build struct {
	Version string `json:"version"`
	Date    string `json:"date,omitempty"`
	Commit  string `json:"commit,omitempty"`
}

// CurrentBuild reads the ldflags values, falling back to the VCS revision the
// Go toolchain stamps into the binary.
func CurrentBuild() Build {
	b := Build{
		Version: strings.TrimSpace(Version),
		Date:    buildDay(BuildDate),
		Commit:  shortCommit(Commit),
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			b.Commit = shortCommit(vcsRevision(info))
		}
	}
	return b
}

// String renders "version (date, commit)", omitting what is unknown.
func (b Build) String() string {
	var details []string
	if b.Date != "" {
		details = append(details, b.Date)
	}
	if b.Commit != "" {
		details = append(details, b.Commit)
	}
	if len(details) == 0 {
		return b.Version
	}
	return b.Version + " (" + strings.Join(details, ", ") + ")"
}

// buildDay reduces a release timestamp to its calendar day.
func buildDay(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC().Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if day, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return day.Format(time.DateOnly)
		}
	}
	return raw
}

func shortCommit(rev string) string {
	rev = strings.TrimSpace(rev)
	if len(rev) > shortCommitLen {
		return rev[:shortCommitLen]
	}
	return rev
}

func vcsRevision(info *debug.BuildInfo) string {
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
