package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

func TestURL(t *testing.T) {
	assert.NoError(t, URL("https://x.test/docs"))
	assert.NoError(t, URL("http://x.test"))

	for _, bad := range []string{"", "   ", "ftp://x.test", "not a url", "/relative/path"} {
		err := URL(bad)
		require.Error(t, err, bad)
		var re *ragerr.RagError
		require.ErrorAs(t, err, &re, bad)
		assert.Equal(t, "validation_error", re.ErrorType(), bad)
	}
}

func TestQuery(t *testing.T) {
	assert.NoError(t, Query("hnsw tuning"))
	assert.Error(t, Query(""))
	assert.Error(t, Query("   "))
}

func TestStrategy(t *testing.T) {
	assert.NoError(t, Strategy("bfs", "best_first", "bfs", "dfs"))
	err := Strategy("random", "best_first", "bfs", "dfs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "random")
}

func TestRange(t *testing.T) {
	assert.NoError(t, Range("max_depth", 3, 1, 10))
	assert.Error(t, Range("max_depth", 0, 1, 10))
	assert.Error(t, Range("max_depth", 11, 1, 10))
}
