package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion())

	old := version
	t.Cleanup(func() { version = old })
	version = "v1.4.0"
	assert.Equal(t, "v1.4.0", GetVersion())
}

func TestBuildMetadata(t *testing.T) {
	oldCommit, oldDate := gitCommit, buildDate
	t.Cleanup(func() { gitCommit, buildDate = oldCommit, oldDate })

	gitCommit, buildDate = "abc1234", "2026-01-02T03:04:05Z"
	assert.Equal(t, "abc1234", GetGitCommit())
	assert.Equal(t, "2026-01-02T03:04:05Z", GetBuildDate())
}
