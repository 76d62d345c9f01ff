package vector

import "sync"

// ivfIndex is an inverted-file index: vectors are assigned to one of
// NClusters coarse centroids, and a query only scans the NProbe nearest
// clusters' posting lists instead of the whole set, trading some recall
// for speed relative to Flat. Centroids are maintained online (streaming
// k-means: the first NClusters inserts seed the centroids, later inserts
// are assigned to their nearest centroid and nudge it towards the new
// point) rather than recomputed in a batch pass, since the engine has no
// separate offline-training step for vector fields.
type ivfIndex struct {
	cfg FieldConfig

	mu        sync.RWMutex
	centroids [][]float32
	counts    []int // number of vectors assigned to each centroid, for the running-mean update
	clusters  map[int]map[uint64]bool
	vecs      map[uint64][]float32
	assign    map[uint64]int
}

func newIVFIndex(cfg FieldConfig) *ivfIndex {
	n := cfg.NClusters
	if n <= 0 {
		n = 1
	}
	return &ivfIndex{
		cfg:      cfg,
		counts:   make([]int, n),
		clusters: make(map[int]map[uint64]bool, n),
		vecs:     make(map[uint64][]float32),
		assign:   make(map[uint64]int),
	}
}

func (idx *ivfIndex) Dimension() int { return idx.cfg.Dimension }

func (idx *ivfIndex) Upsert(docID uint64, vec []float32) error {
	v := make([]float32, len(vec))
	copy(v, vec)
	if idx.cfg.Distance == Cosine || idx.cfg.Distance == Angular {
		normalizeInPlace(v)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.assign[docID]; ok {
		idx.removeFromCluster(prev, docID)
	}
	idx.vecs[docID] = v

	cluster := idx.assignCluster(v)
	idx.addToCluster(cluster, docID)
	idx.assign[docID] = cluster
	idx.updateCentroid(cluster, v)
	return nil
}

// assignCluster seeds a fresh centroid from v while any centroid slot is
// still unseeded, else returns the index of the nearest existing centroid.
func (idx *ivfIndex) assignCluster(v []float32) int {
	n := len(idx.centroids)
	if n < len(idx.counts) {
		idx.centroids = append(idx.centroids, append([]float32(nil), v...))
		return n
	}

	best, bestDist := 0, float32(0)
	for i, c := range idx.centroids {
		d := distance(idx.cfg.Distance, v, c)
		if i == 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (idx *ivfIndex) updateCentroid(cluster int, v []float32) {
	idx.counts[cluster]++
	c := idx.centroids[cluster]
	n := float32(idx.counts[cluster])
	for i := range c {
		c[i] += (v[i] - c[i]) / n
	}
}

func (idx *ivfIndex) addToCluster(cluster int, docID uint64) {
	set, ok := idx.clusters[cluster]
	if !ok {
		set = make(map[uint64]bool)
		idx.clusters[cluster] = set
	}
	set[docID] = true
}

func (idx *ivfIndex) removeFromCluster(cluster int, docID uint64) {
	if set, ok := idx.clusters[cluster]; ok {
		delete(set, docID)
	}
	idx.counts[cluster]--
	if idx.counts[cluster] < 0 {
		idx.counts[cluster] = 0
	}
}

func (idx *ivfIndex) Delete(docID uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cluster, ok := idx.assign[docID]
	if !ok {
		return
	}
	idx.removeFromCluster(cluster, docID)
	delete(idx.assign, docID)
	delete(idx.vecs, docID)
}

func (idx *ivfIndex) Search(query []float32, k int, allowed func(uint64) bool) ([]ScoredID, error) {
	q := make([]float32, len(query))
	copy(q, query)
	if idx.cfg.Distance == Cosine || idx.cfg.Distance == Angular {
		normalizeInPlace(q)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	nprobe := idx.cfg.NProbe
	if nprobe <= 0 {
		nprobe = 1
	}
	probed := idx.nearestCentroids(q, nprobe)

	out := make([]ScoredID, 0, k*2)
	for _, cluster := range probed {
		for id := range idx.clusters[cluster] {
			if allowed != nil && !allowed(id) {
				continue
			}
			v, ok := idx.vecs[id]
			if !ok {
				continue
			}
			d := distance(idx.cfg.Distance, q, v)
			out = append(out, ScoredID{DocID: id, Distance: d, Score: distanceToScore(idx.cfg.Distance, d)})
		}
	}
	sortScoredByScoreDesc(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// nearestCentroids returns up to nprobe centroid indices ordered nearest
// to query first.
func (idx *ivfIndex) nearestCentroids(query []float32, nprobe int) []int {
	type scored struct {
		i int
		d float32
	}
	all := make([]scored, 0, len(idx.centroids))
	for i, c := range idx.centroids {
		all = append(all, scored{i, distance(idx.cfg.Distance, query, c)})
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].d < all[j-1].d; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > nprobe {
		all = all[:nprobe]
	}
	ids := make([]int, len(all))
	for i, s := range all {
		ids[i] = s.i
	}
	return ids
}

func (idx *ivfIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vecs)
}

var _ Index = (*ivfIndex)(nil)
