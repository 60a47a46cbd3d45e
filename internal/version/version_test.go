package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, BuildTime = "1.2.3", "abc123", "2026-01-01T00:00:00Z"
	t.Cleanup(func() { Version, Commit, BuildTime = "dev", "unknown", "unknown" })

	if got := String(); got != "1.2.3 (abc123) built 2026-01-01T00:00:00Z" {
		t.Errorf("String() = %q", got)
	}
	if info := Get(); info.Commit != "abc123" {
		t.Errorf("Get().Commit = %q, want abc123", info.Commit)
	}
}
