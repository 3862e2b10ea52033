package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmill/ragmill/pkg/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "crawl", "query", "sources", "parse", "check", "doctor", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "ragmill version")
}

func TestCrawlRejectsBadURL(t *testing.T) {
	_, err := execute(t, "crawl", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestCrawlRejectsUnknownStrategy(t *testing.T) {
	_, err := execute(t, "crawl", "https://x.test/doc",
		"--query", "vector search", "--strategy", "random-walk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "random-walk")
}

func TestQueryRejectsBlankQuery(t *testing.T) {
	_, err := execute(t, "query", "   ")
	require.Error(t, err)
}

func TestParseRejectsBadURL(t *testing.T) {
	_, err := execute(t, "parse", "nowhere")
	require.Error(t, err)
}
