package buildinfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBuildData(t *testing.T) {
	oldVersion, oldDate, oldCommit := buildVersion, buildDate, buildCommit
	t.Cleanup(func() { buildVersion, buildDate, buildCommit = oldVersion, oldDate, oldCommit })

	buildVersion, buildDate, buildCommit = "v0.3.0", "", "abc123"

	var buf bytes.Buffer
	PrintBuildData(&buf)

	assert.Equal(t, "Build version: v0.3.0\nBuild date: N/A\nBuild commit: abc123\n", buf.String())
}
