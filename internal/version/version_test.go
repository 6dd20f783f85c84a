package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBuild overrides the ldflags variables for the duration of a test.
func setBuild(t *testing.T, version, commit, date, branch, tree string) {
	t.Helper()
	orig := []string{Version, Commit, Date, Branch, TreeState}
	t.Cleanup(func() {
		Version, Commit, Date, Branch, TreeState = orig[0], orig[1], orig[2], orig[3], orig[4]
	})
	Version, Commit, Date, Branch, TreeState = version, commit, date, branch, tree
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, runtime.GOOS)
	assert.Contains(t, info.Platform, runtime.GOARCH)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		commit   string
		branch   string
		tree     string
		contains []string
	}{
		{"dev build", "unknown", "", "", []string{ApplicationName, "version 1.0.0"}},
		{"with commit", "abc123def456789", "", "clean", []string{"commit: abc123de,", "2024-01-15"}},
		{"with branch", "abc123def456789", "main", "clean", []string{"branch: main"}},
		{"dirty tree", "abc123def456789", "", "dirty", []string{"abc123de*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, "1.0.0", tt.commit, "2024-01-15T10:30:00Z", tt.branch, tt.tree)
			s := String()
			for _, want := range tt.contains {
				assert.Contains(t, s, want)
			}
		})
	}
}

func TestShort(t *testing.T) {
	setBuild(t, "1.0.0", "unknown", "unknown", "", "")
	assert.Equal(t, "1.0.0", Short())

	setBuild(t, "1.0.0", "abc123def456789", "unknown", "", "dirty")
	assert.Equal(t, "1.0.0 (abc123de*)", Short())
}

func TestIsSnapshotAndRelease(t *testing.T) {
	tests := []struct {
		version  string
		snapshot bool
		release  bool
	}{
		{"dev", true, false},
		{"1.0.0", false, true},
		{"1.0.1-SNAPSHOT.abc1234", true, false},
		{"1.2.3-alpha.1", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			setBuild(t, tt.version, "unknown", "unknown", "", "")
			assert.Equal(t, tt.snapshot, IsSnapshot())
			assert.Equal(t, tt.release, IsRelease())
		})
	}
}

func TestJSON(t *testing.T) {
	setBuild(t, "1.2.3", "abc123def456789", "2024-01-15T10:30:00Z", "feature-branch", "clean")

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))

	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123def456789", info.Commit)
	assert.Equal(t, "abc123de", info.CommitSHA)
	assert.Equal(t, "feature-branch", info.Branch)
	assert.Equal(t, "clean", info.TreeState)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
}
