package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v, commit, date string) {
	t.Helper()
	oldV, oldC, oldD := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = v, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldV, oldC, oldD })
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"0.1.0", true},
		{"1.2.3-beta.1", true},
		{"1.2.3+45.abcdef0", true},
		{"not-a-version", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withVersion(t, tt.version, "unknown", "unknown")
			if tt.valid {
				assert.NoError(t, ValidateVersion())
			} else {
				assert.Error(t, ValidateVersion())
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	withVersion(t, "1.4.2", "0123456789abcdef", "2025-01-01")

	info, err := GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", info.Version)
	assert.Equal(t, uint64(1), info.SemVer.Major())
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
	assert.Contains(t, info.Platform, "/")
}

func TestGetFormattedVersion(t *testing.T) {
	withVersion(t, "1.4.2", "0123456789abcdef", "2025-01-01")
	assert.Equal(t, "gaiachat v1.4.2, commit 0123456, built 2025-01-01", GetFormattedVersion())

	withVersion(t, "1.4.2", "unknown", "unknown")
	assert.Equal(t, "gaiachat v1.4.2", GetFormattedVersion())
	assert.True(t, IsDevelopment())
}

func TestUserAgent(t *testing.T) {
	withVersion(t, "2.3.4+99.abc", "unknown", "unknown")
	assert.Equal(t, "gaiachat/2.3.4", UserAgent())
}

func TestIsPrerelease(t *testing.T) {
	withVersion(t, "1.0.0-rc.1", "unknown", "unknown")
	assert.True(t, IsPrerelease())

	withVersion(t, "1.0.0", "unknown", "unknown")
	assert.False(t, IsPrerelease())
}

func TestCompareVersions(t *testing.T) {
	cmp, err := CompareVersions("1.0.0", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = CompareVersions("2.0.0", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = CompareVersions("x", "1.0.0")
	assert.Error(t, err)
}
