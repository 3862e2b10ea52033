package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexAddSearch(t *testing.T) {
	x := newVectorIndex(3)
	require.NoError(t, x.add(
		[]string{"a", "b", "c"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	))

	hits, err := x.search([]float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].id)
	assert.Greater(t, hits[0].similarity, hits[1].similarity)
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	x := newVectorIndex(3)
	assert.Error(t, x.add([]string{"a"}, [][]float32{{1, 0}}))

	_, err := x.search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestVectorIndexSkipsZeroVectors(t *testing.T) {
	x := newVectorIndex(3)
	require.NoError(t, x.add(
		[]string{"real", "degraded"},
		[][]float32{{1, 0, 0}, {0, 0, 0}},
	))
	assert.Equal(t, 1, x.count())

	hits, err := x.search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "real", hits[0].id)
}

func TestVectorIndexZeroQuery(t *testing.T) {
	x := newVectorIndex(3)
	require.NoError(t, x.add([]string{"a"}, [][]float32{{1, 0, 0}}))

	hits, err := x.search([]float32{0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndexLazyDelete(t *testing.T) {
	x := newVectorIndex(3)
	require.NoError(t, x.add(
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	))
	x.remove([]string{"a"})
	assert.Equal(t, 1, x.count())

	hits, err := x.search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.id)
	}
}

func TestVectorIndexReplace(t *testing.T) {
	x := newVectorIndex(3)
	require.NoError(t, x.add([]string{"a"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, x.add([]string{"a"}, [][]float32{{0, 1, 0}}))
	assert.Equal(t, 1, x.count())

	hits, err := x.search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].similarity, 1e-5)
}

func TestVectorIndexSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/vectors.hnsw"

	x := newVectorIndex(3)
	require.NoError(t, x.add(
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	))
	require.NoError(t, x.save(path))

	y := newVectorIndex(3)
	loaded, err := y.load(path)
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, 2, y.count())

	hits, err := y.search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].id)
}

func TestVectorIndexLoadMissing(t *testing.T) {
	y := newVectorIndex(3)
	loaded, err := y.load(t.TempDir() + "/nope.hnsw")
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4, 0}
	normalizeInPlace(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	z := []float32{0, 0, 0}
	normalizeInPlace(z)
	assert.True(t, isZeroVector(z))
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{1.5, -2.25, 0}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector(nil))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}

func TestFTSQueryQuoting(t *testing.T) {
	assert.Equal(t, `"hello" OR "world"`, ftsQuery("hello world"))
	assert.Equal(t, `"its" OR "a-b"`, ftsQuery(`it"s a-b`))
	assert.Equal(t, "", ftsQuery("   "))
}
