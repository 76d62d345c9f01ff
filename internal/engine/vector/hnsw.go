package vector

import (
	"github.com/coder/hnsw"
)

// hnswIndex wraps coder/hnsw. The internal doc-id IS the graph key
// directly (unlike the teacher's string-keyed wrapper, which needed an
// idMap/keyMap bridge); deletions are lazy — tracked in a side set rather
// than removed from the graph — to avoid the same upstream bug the
// teacher's internal/store/hnsw.go works around (deleting the last node
// corrupts the graph).
type hnswIndex struct {
	cfg     FieldConfig
	graph   *hnsw.Graph[uint64]
	deleted map[uint64]bool
	present map[uint64]bool
}

func newHNSWIndex(cfg FieldConfig) *hnswIndex {
	g := hnsw.NewGraph[uint64]()
	switch cfg.Distance {
	case Euclidean:
		g.Distance = hnsw.EuclideanDistance
	default:
		g.Distance = hnsw.CosineDistance
	}
	if cfg.M > 0 {
		g.M = cfg.M
	}
	ef := cfg.EfSearch
	if ef <= 0 {
		ef = 64
	}
	g.EfSearch = ef
	g.Ml = 0.25

	return &hnswIndex{cfg: cfg, graph: g, deleted: make(map[uint64]bool), present: make(map[uint64]bool)}
}

func (idx *hnswIndex) Dimension() int { return idx.cfg.Dimension }

func (idx *hnswIndex) Upsert(docID uint64, vec []float32) error {
	v := make([]float32, len(vec))
	copy(v, vec)
	if idx.cfg.Distance == Cosine || idx.cfg.Distance == Angular {
		normalizeInPlace(v)
	}
	// Re-adding under the same doc-id key overwrites that key's node in
	// coder/hnsw, so an upsert of a still-live document needs no special
	// handling beyond clearing any stale deletion mark.
	delete(idx.deleted, docID)
	idx.graph.Add(hnsw.MakeNode(docID, v))
	idx.present[docID] = true
	return nil
}

func (idx *hnswIndex) Delete(docID uint64) {
	if !idx.present[docID] {
		return
	}
	delete(idx.present, docID)
	idx.deleted[docID] = true
}

func (idx *hnswIndex) Search(query []float32, k int, allowed func(uint64) bool) ([]ScoredID, error) {
	if idx.graph.Len() == 0 {
		return nil, nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	if idx.cfg.Distance == Cosine || idx.cfg.Distance == Angular {
		normalizeInPlace(q)
	}

	// Overfetch to absorb lazily-deleted / filtered-out nodes.
	fetch := k * 4
	if fetch < k+16 {
		fetch = k + 16
	}
	nodes := idx.graph.Search(q, fetch)

	out := make([]ScoredID, 0, len(nodes))
	for _, node := range nodes {
		if idx.deleted[node.Key] {
			continue
		}
		if allowed != nil && !allowed(node.Key) {
			continue
		}
		d := distance(idx.cfg.Distance, q, node.Value)
		out = append(out, ScoredID{DocID: node.Key, Distance: d, Score: distanceToScore(idx.cfg.Distance, d)})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (idx *hnswIndex) Count() int { return len(idx.present) }

var _ Index = (*hnswIndex)(nil)
