// Package fusion combines a lexical leg and a vector leg of a hybrid
// search into one ranked list. Grounded on the teacher's
// internal/search/fusion.go (RRFFusion, DefaultRRFConstant=60, missing-rank
// penalty, deterministic tie-breaking), generalized from string chunk-ids
// to the engine's uint64 document ids and extended with a weighted-sum
// alternative per §4.7/§11.
package fusion

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter, unchanged
// from the teacher's value (k=60, used by Azure AI Search, OpenSearch).
const DefaultRRFConstant = 60

// Leg is one ranked leg of hybrid search: a list of document ids in rank
// order (best first) with their native score, as produced by the lexical
// or vector sub-store.
type Leg struct {
	DocIDs []uint64
	Scores []float64
}

// Algorithm selects the fusion strategy.
type Algorithm int

const (
	RRF Algorithm = iota
	WeightedSum
)

// Weights configures the relative importance of the lexical vs vector
// leg, mirroring the teacher's search.Weights.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights matches the teacher's DefaultWeights, generalized from
// "BM25/Semantic" naming to "Lexical/Vector".
func DefaultWeights() Weights {
	return Weights{Lexical: 0.35, Vector: 0.65}
}

// Result is one fused hit.
type Result struct {
	DocID        uint64
	Score        float64
	LexicalScore float64
	LexicalRank  int // 1-indexed, 0 if absent
	VectorScore  float64
	VectorRank   int // 1-indexed, 0 if absent
	InBothLegs   bool
}

// RRFFusion implements RRF_score(d) = Σ weight_i / (k + rank_i), with
// missing-rank = max(len(lexical), len(vector)) + 1 for whichever leg a
// document didn't appear in.
type RRFFusion struct {
	K int
}

// NewRRFFusion returns an RRFFusion with the default k=60.
func NewRRFFusion() *RRFFusion { return &RRFFusion{K: DefaultRRFConstant} }

// NewRRFFusionWithK returns an RRFFusion with a custom k; k<=0 defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines lexical and vector legs. Results are sorted by: Score
// (desc) → InBothLegs (true first) → LexicalScore (desc) → DocID (asc),
// then normalized so the top result has Score 1.0.
func (f *RRFFusion) Fuse(lexical, vector Leg, weights Weights) []Result {
	if len(lexical.DocIDs) == 0 && len(vector.DocIDs) == 0 {
		return []Result{}
	}

	scores := make(map[uint64]*Result, len(lexical.DocIDs)+len(vector.DocIDs))
	get := func(id uint64) *Result {
		if r, ok := scores[id]; ok {
			return r
		}
		r := &Result{DocID: id}
		scores[id] = r
		return r
	}

	for rank, id := range lexical.DocIDs {
		r := get(id)
		r.LexicalScore = lexical.Scores[rank]
		r.LexicalRank = rank + 1
		r.Score += weights.Lexical / float64(f.K+rank+1)
	}
	for rank, id := range vector.DocIDs {
		r := get(id)
		r.VectorScore = vector.Scores[rank]
		r.VectorRank = rank + 1
		r.Score += weights.Vector / float64(f.K+rank+1)
		if r.LexicalRank > 0 {
			r.InBothLegs = true
		}
	}

	missingRank := missingRank(len(lexical.DocIDs), len(vector.DocIDs))
	for _, r := range scores {
		if r.LexicalRank == 0 && r.VectorRank > 0 {
			r.Score += weights.Lexical / float64(f.K+missingRank)
		}
		if r.VectorRank == 0 && r.LexicalRank > 0 {
			r.Score += weights.Vector / float64(f.K+missingRank)
		}
	}

	out := toSorted(scores)
	normalize(out)
	return out
}

func missingRank(lexLen, vecLen int) int {
	if lexLen > vecLen {
		return lexLen + 1
	}
	return vecLen + 1
}

func toSorted(m map[uint64]*Result) []Result {
	out := make([]Result, 0, len(m))
	for _, r := range m {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// less implements deterministic ordering: higher Score, then prefer
// in-both-legs, then higher LexicalScore, then lower DocID.
func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLegs != b.InBothLegs {
		return a.InBothLegs
	}
	if a.LexicalScore != b.LexicalScore {
		return a.LexicalScore > b.LexicalScore
	}
	return a.DocID < b.DocID
}

func normalize(results []Result) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max == 0 {
		return
	}
	for i := range results {
		results[i].Score = results[i].Score / max
	}
}

// WeightedSumFusion min-max normalizes each leg's native scores to [0,1]
// independently, then combines them as w_lexical*norm_lexical +
// w_vector*norm_vector. A document absent from a leg contributes 0 for
// that leg, matching §4.7's weighted-sum alternative to RRF.
type WeightedSumFusion struct{}

func NewWeightedSumFusion() *WeightedSumFusion { return &WeightedSumFusion{} }

func (f *WeightedSumFusion) Fuse(lexical, vector Leg, weights Weights) []Result {
	if len(lexical.DocIDs) == 0 && len(vector.DocIDs) == 0 {
		return []Result{}
	}

	lexNorm := minMaxNormalize(lexical.Scores)
	vecNorm := minMaxNormalize(vector.Scores)

	scores := make(map[uint64]*Result, len(lexical.DocIDs)+len(vector.DocIDs))
	get := func(id uint64) *Result {
		if r, ok := scores[id]; ok {
			return r
		}
		r := &Result{DocID: id}
		scores[id] = r
		return r
	}

	for rank, id := range lexical.DocIDs {
		r := get(id)
		r.LexicalScore = lexical.Scores[rank]
		r.LexicalRank = rank + 1
		r.Score += weights.Lexical * lexNorm[rank]
	}
	for rank, id := range vector.DocIDs {
		r := get(id)
		r.VectorScore = vector.Scores[rank]
		r.VectorRank = rank + 1
		r.Score += weights.Vector * vecNorm[rank]
		if r.LexicalRank > 0 {
			r.InBothLegs = true
		}
	}

	out := toSorted(scores)
	return out
}

func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}
