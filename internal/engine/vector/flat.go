package vector

import "sync"

// flatIndex is a brute-force linear-scan backend: exact distance against
// every live vector, for every configured metric. It trades speed for
// perfect recall and is the natural baseline the other two backends are
// benchmarked against in §4.6.
type flatIndex struct {
	cfg  FieldConfig
	mu   sync.RWMutex
	vecs map[uint64][]float32
}

func newFlatIndex(cfg FieldConfig) *flatIndex {
	return &flatIndex{cfg: cfg, vecs: make(map[uint64][]float32)}
}

func (idx *flatIndex) Dimension() int { return idx.cfg.Dimension }

func (idx *flatIndex) Upsert(docID uint64, vec []float32) error {
	v := make([]float32, len(vec))
	copy(v, vec)
	if idx.cfg.Distance == Cosine || idx.cfg.Distance == Angular {
		normalizeInPlace(v)
	}
	idx.mu.Lock()
	idx.vecs[docID] = v
	idx.mu.Unlock()
	return nil
}

func (idx *flatIndex) Delete(docID uint64) {
	idx.mu.Lock()
	delete(idx.vecs, docID)
	idx.mu.Unlock()
}

func (idx *flatIndex) Search(query []float32, k int, allowed func(uint64) bool) ([]ScoredID, error) {
	q := make([]float32, len(query))
	copy(q, query)
	if idx.cfg.Distance == Cosine || idx.cfg.Distance == Angular {
		normalizeInPlace(q)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]ScoredID, 0, len(idx.vecs))
	for id, v := range idx.vecs {
		if allowed != nil && !allowed(id) {
			continue
		}
		d := distance(idx.cfg.Distance, q, v)
		out = append(out, ScoredID{DocID: id, Distance: d, Score: distanceToScore(idx.cfg.Distance, d)})
	}
	sortScoredByScoreDesc(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (idx *flatIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vecs)
}

var _ Index = (*flatIndex)(nil)

// sortScoredByScoreDesc is a small insertion sort shared by Flat and IVF;
// result sets from a single query are small enough that it beats the
// overhead of importing sort for a custom Less.
func sortScoredByScoreDesc(s []ScoredID) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
