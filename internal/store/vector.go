package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndex is an HNSW graph over cosine space with string IDs mapped to
// the graph's uint64 keys. Deletion is lazy: the mapping is dropped and the
// node orphaned, because coder/hnsw misbehaves when the last node is
// removed.
type vectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// indexMeta is the gob-persisted sidecar holding the ID mappings.
type indexMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

func newVectorIndex(dims int) *vectorIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25

	return &vectorIndex{
		graph:  g,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts or replaces vectors. Zero vectors (the embedding degradation
// marker) are skipped: they have no direction, and cosine distance against
// them is undefined.
func (x *vectorIndex) add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, id := range ids {
		v := vectors[i]
		if len(v) != x.dims {
			return fmt.Errorf("expected %d dims, got %d", x.dims, len(v))
		}
		if isZeroVector(v) {
			continue
		}

		if oldKey, exists := x.idMap[id]; exists {
			delete(x.keyMap, oldKey)
			delete(x.idMap, id)
		}

		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(v))
		copy(vec, v)
		normalizeInPlace(vec)

		x.graph.Add(hnsw.MakeNode(key, vec))
		x.idMap[id] = key
		x.keyMap[key] = id
	}
	return nil
}

// vectorHit pairs an ID with its cosine similarity.
type vectorHit struct {
	id         string
	similarity float64
}

// search returns up to k nearest neighbors by cosine similarity, best first.
func (x *vectorIndex) search(query []float32, k int) ([]vectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(query) != x.dims {
		return nil, fmt.Errorf("expected %d dims, got %d", x.dims, len(query))
	}
	if x.graph.Len() == 0 || isZeroVector(query) {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Over-fetch to cover lazily deleted nodes still in the graph.
	nodes := x.graph.Search(q, k*2)

	hits := make([]vectorHit, 0, k)
	for _, node := range nodes {
		id, live := x.keyMap[node.Key]
		if !live {
			continue
		}
		dist := x.graph.Distance(q, node.Value)
		hits = append(hits, vectorHit{id: id, similarity: float64(1 - dist/2)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// remove drops IDs from the mappings; graph nodes are orphaned.
func (x *vectorIndex) remove(ids []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		if key, exists := x.idMap[id]; exists {
			delete(x.keyMap, key)
			delete(x.idMap, id)
		}
	}
}

func (x *vectorIndex) count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idMap)
}

// save writes the graph and its ID sidecar atomically (write temp, rename).
func (x *vectorIndex) save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}

	metaTmp := path + ".meta.tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}
	meta := indexMeta{IDMap: x.idMap, NextKey: x.nextKey, Dims: x.dims}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return fmt.Errorf("close meta file: %w", err)
	}
	return os.Rename(metaTmp, path+".meta")
}

// load restores a saved index. A missing file is not an error; the caller
// rebuilds from the row store instead.
func (x *vectorIndex) load(path string) (bool, error) {
	mf, err := os.Open(path + ".meta")
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open meta file: %w", err)
	}
	defer mf.Close()

	var meta indexMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return false, fmt.Errorf("decode meta: %w", err)
	}
	if meta.Dims != x.dims {
		return false, fmt.Errorf("index has %d dims, config wants %d", meta.Dims, x.dims)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(f)); err != nil {
		return false, fmt.Errorf("import graph: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.idMap = meta.IDMap
	x.nextKey = meta.NextKey
	x.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		x.keyMap[key] = id
	}
	return true, nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
