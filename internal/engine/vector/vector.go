// Package vector implements the engine's vector sub-store contract: one
// ANN index per vector field, each of a declared kind (HNSW/Flat/IVF),
// sharing normalization and distance-metric code. The HNSW backend is
// grounded directly on the teacher's internal/store/hnsw.go (coder/hnsw
// wiring, lazy deletion, cosine normalization, distance-to-score
// transform); Flat and IVF are new siblings built on the same primitives
// to cover the other two index kinds §4.6 and §6 require.
package vector

import (
	"math"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

// DistanceMetric mirrors engine.DistanceMetric without importing the
// engine package (vector is a lower-level dependency of engine, so the
// contract must stand on its own).
type DistanceMetric int

const (
	Cosine DistanceMetric = iota
	Euclidean
	DotProduct
	Manhattan
	Angular
)

// IndexKind selects the ANN algorithm backing a field.
type IndexKind int

const (
	Hnsw IndexKind = iota
	Flat
	Ivf
)

// FieldConfig configures one vector field's ANN index, derived by the
// Engine from the schema's VectorOption.
type FieldConfig struct {
	Kind           IndexKind
	Dimension      int
	Distance       DistanceMetric
	M              int
	EfConstruction int
	EfSearch       int
	NClusters      int
	NProbe         int
}

func DefaultHnswConfig(dim int, metric DistanceMetric) FieldConfig {
	return FieldConfig{Kind: Hnsw, Dimension: dim, Distance: metric, M: 16, EfConstruction: 200, EfSearch: 64}
}

func DefaultFlatConfig(dim int, metric DistanceMetric) FieldConfig {
	return FieldConfig{Kind: Flat, Dimension: dim, Distance: metric}
}

func DefaultIvfConfig(dim int, metric DistanceMetric) FieldConfig {
	return FieldConfig{Kind: Ivf, Dimension: dim, Distance: metric, NClusters: 100, NProbe: 1}
}

// ValueKind tags a FieldValue's variant.
type ValueKind int

const (
	ValueVector ValueKind = iota
	ValueText
	ValueBytes
)

// FieldValue is the input a caller supplies for one vector field of one
// document: either a precomputed vector, or raw Text/Bytes to be embedded.
type FieldValue struct {
	Kind  ValueKind
	Vec   []float32
	Text  string
	Bytes []byte
	Mime  string
}

// Embedder maps Text or Bytes to a fixed-dimension dense vector, per
// field. Model loading and the embedding algorithm itself are out of
// scope for the kernel; this interface is the narrow contract it
// consumes.
type Embedder interface {
	EmbedText(field, text string) ([]float32, error)
	EmbedBytes(field string, data []byte, mime string) ([]float32, error)
}

// ScoredID is one ranked hit from a vector search.
type ScoredID struct {
	DocID    uint64
	Distance float32
	Score    float32
}

// Index is the per-field ANN index contract every backend implements.
type Index interface {
	Upsert(docID uint64, vec []float32) error
	Delete(docID uint64)
	Search(query []float32, k int, allowed func(uint64) bool) ([]ScoredID, error)
	Count() int
	Dimension() int
}

// QueryVector is one vector leg query term: a vector plus weight and an
// optional restriction to specific fields.
type QueryVector struct {
	Vector []float32
	Weight float32
	Fields []string // empty means "all vector fields"
}

// QueryPayload is a raw Text/Bytes payload the sub-store must embed
// before searching, per field.
type QueryPayload struct {
	Field  string
	Value  FieldValue
	Weight float32
}

// ScoreMode selects how multiple query vectors combine per field.
type ScoreMode int

const (
	ScoreMax ScoreMode = iota
	ScoreSum
	ScoreAvg
)

// SearchRequest drives a vector search, matching §4.6/§6.
type SearchRequest struct {
	QueryVectors  []QueryVector
	QueryPayloads []QueryPayload
	Limit         int
	ScoreMode     ScoreMode
	MinScore      float32
	AllowedIDs    map[uint64]bool // nil means unrestricted
}

// Hit is one ranked result from a vector Search.
type Hit struct {
	DocID uint64
	Score float32
}

// Store holds one Index per declared vector field and the sub-store's
// WAL-seq checkpoint.
type Store struct {
	mu      sync.RWMutex
	fields  map[string]Index
	configs map[string]FieldConfig
	lastSeq uint64
	embed   Embedder
}

// New returns an empty Store; fields are added via AddField as the Engine
// walks the schema.
func New(embed Embedder) *Store {
	return &Store{fields: make(map[string]Index), configs: make(map[string]FieldConfig), embed: embed}
}

// AddField registers a vector field's index, constructing the declared
// backend.
func (s *Store) AddField(name string, cfg FieldConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idx Index
	switch cfg.Kind {
	case Hnsw:
		idx = newHNSWIndex(cfg)
	case Flat:
		idx = newFlatIndex(cfg)
	case Ivf:
		idx = newIVFIndex(cfg)
	default:
		return engineerr.InvalidArgument(engineerr.CodeBadSchema, "unknown vector index kind")
	}
	s.fields[name] = idx
	s.configs[name] = cfg
	return nil
}

// UpsertDocumentByInternalID resolves each declared vector field present
// in fields (explicit vector, or embed Text/Bytes) and upserts it into
// that field's index. Fields absent from the document are simply skipped.
func (s *Store) UpsertDocumentByInternalID(docID uint64, fields map[string]FieldValue) error {
	s.mu.RLock()
	idxs := make(map[string]Index, len(s.fields))
	for k, v := range s.fields {
		idxs[k] = v
	}
	s.mu.RUnlock()

	for name, val := range fields {
		idx, ok := idxs[name]
		if !ok {
			continue
		}
		vec, err := s.resolveVector(name, val)
		if err != nil {
			return err
		}
		if len(vec) != idx.Dimension() {
			return engineerr.DimensionMismatch(idx.Dimension(), len(vec))
		}
		if err := idx.Upsert(docID, vec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) resolveVector(field string, val FieldValue) ([]float32, error) {
	switch val.Kind {
	case ValueVector:
		return val.Vec, nil
	case ValueText:
		if s.embed == nil {
			return nil, engineerr.EmbedderFailure("no embedder configured for field "+field, nil)
		}
		vec, err := s.embed.EmbedText(field, val.Text)
		if err != nil {
			return nil, engineerr.EmbedderFailure("embedding text for field "+field, err)
		}
		return vec, nil
	case ValueBytes:
		if s.embed == nil {
			return nil, engineerr.EmbedderFailure("no embedder configured for field "+field, nil)
		}
		vec, err := s.embed.EmbedBytes(field, val.Bytes, val.Mime)
		if err != nil {
			return nil, engineerr.EmbedderFailure("embedding bytes for field "+field, err)
		}
		return vec, nil
	default:
		return nil, engineerr.InvalidArgument(engineerr.CodeBadQuery, "unknown field value kind")
	}
}

// DeleteDocumentByInternalID removes docID from every field's index.
func (s *Store) DeleteDocumentByInternalID(docID uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idx := range s.fields {
		idx.Delete(docID)
	}
}

// Search executes req across the relevant field indexes and merges
// per-query-vector hits by ScoreMode, matching §4.6/§4.7.
func (s *Store) Search(req SearchRequest) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queries := make([]QueryVector, 0, len(req.QueryVectors)+len(req.QueryPayloads))
	queries = append(queries, req.QueryVectors...)
	for _, p := range req.QueryPayloads {
		vec, err := s.resolveVector(p.Field, p.Value)
		if err != nil {
			return nil, err
		}
		queries = append(queries, QueryVector{Vector: vec, Weight: p.Weight, Fields: []string{p.Field}})
	}
	if len(queries) == 0 {
		return nil, nil
	}

	var allowed func(uint64) bool
	if req.AllowedIDs != nil {
		allowed = func(id uint64) bool { return req.AllowedIDs[id] }
	}

	scores := make(map[uint64]float32)
	contributions := make(map[uint64]int)
	for _, qv := range queries {
		fieldNames := qv.Fields
		if len(fieldNames) == 0 {
			for name := range s.fields {
				fieldNames = append(fieldNames, name)
			}
		}
		weight := qv.Weight
		if weight == 0 {
			weight = 1
		}
		for _, fname := range fieldNames {
			idx, ok := s.fields[fname]
			if !ok {
				continue
			}
			hits, err := idx.Search(qv.Vector, clampK(req.Limit), allowed)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				contrib := h.Score * weight
				switch req.ScoreMode {
				case ScoreSum, ScoreAvg:
					scores[h.DocID] += contrib
				default: // ScoreMax
					if contrib > scores[h.DocID] {
						scores[h.DocID] = contrib
					}
				}
				contributions[h.DocID]++
			}
		}
	}

	if req.ScoreMode == ScoreAvg {
		for id, n := range contributions {
			if n > 0 {
				scores[id] /= float32(n)
			}
		}
	}

	out := make([]Hit, 0, len(scores))
	for id, score := range scores {
		if score < req.MinScore {
			continue
		}
		out = append(out, Hit{DocID: id, Score: score})
	}
	return out, nil
}

func clampK(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

func (s *Store) Commit() error { return nil }

func (s *Store) LastWALSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

func (s *Store) SetLastWALSeq(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq = seq
}

// Stats reports per-field counts.
type Stats struct {
	FieldCounts map[string]int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.fields))
	for name, idx := range s.fields {
		counts[name] = idx.Count()
	}
	return Stats{FieldCounts: counts}
}

// --- shared normalization / scoring helpers ---

func normalizeInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

func distance(metric DistanceMetric, a, b []float32) float32 {
	switch metric {
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	case Manhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i]) - float64(b[i]))
		}
		return float32(sum)
	case DotProduct:
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return float32(-sum) // smaller (more negative) is "closer"
	case Angular:
		return float32(math.Acos(clampCos(cosineSim(a, b))))
	default: // Cosine
		return float32(1 - cosineSim(a, b))
	}
}

func cosineSim(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clampCos(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// distanceToScore monotonically transforms a distance into a
// higher-is-better score in a roughly [0,1] range, so the fusion layer
// can treat every metric uniformly, matching the teacher's
// distanceToScore for cos/l2.
func distanceToScore(metric DistanceMetric, d float32) float32 {
	switch metric {
	case Euclidean, Manhattan:
		return 1 / (1 + d)
	case DotProduct:
		return -d
	case Angular:
		return 1 - d/float32(math.Pi)
	default: // Cosine
		return 1 - d/2
	}
}
