// Package lexical implements the engine's lexical sub-store contract on
// top of github.com/blevesearch/bleve/v2, following the teacher's own
// Bleve wiring in internal/store/bm25.go (custom tokenizer/stop-filter
// registration, corruption detection, code-aware default analyzer) but
// generalized from a single "content" field to arbitrary schema-declared
// fields, multiple field kinds, and the full query surface §4.5 requires.
package lexical

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/geo"
	"github.com/blevesearch/bleve/v2/mapping"
	bsearch "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

// FieldKind identifies which DataValue shape a lexical field expects.
type FieldKind int

const (
	Text FieldKind = iota
	Integer
	Float
	Bool
	DateTime
	Geo
	Bytes
)

// FieldConfig is the lexical sub-store's per-field configuration, derived
// by the Engine from the schema's LexicalOption at construction time.
type FieldConfig struct {
	Kind        FieldKind
	Indexed     bool
	Stored      bool
	TermVectors bool
	Analyzer    string // empty means DefaultAnalyzer
}

// Config configures the lexical sub-store as a whole.
type Config struct {
	Fields    map[string]FieldConfig
	K1, B     float64
	StopWords []string
}

func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75, StopWords: DefaultStopWords}
}

// DefaultStopWords mirrors the teacher's DefaultCodeStopWords, generalized
// with common English stop words so prose fields behave reasonably too.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "if", "then", "of", "to", "in",
	"for", "is", "are", "was", "were", "be", "been", "being", "this",
	"that", "it", "as", "at", "by", "from", "with",
}

// Hit is one matched document from the lexical sub-store.
type Hit struct {
	DocID  uint64
	Score  float64
	Fields map[string]any // populated only when the request set LoadDocuments
}

// Result is the outcome of a lexical Search.
type Result struct {
	Hits       []Hit
	TotalHits  uint64
}

// SearchRequest drives a lexical query, matching §4.5's required surface.
type SearchRequest struct {
	Query         bsearch.Query
	FieldBoosts   map[string]float64
	Limit         int
	Offset        int
	LoadDocuments bool
	// AllowedIDs, when non-nil, restricts hits to this doc-id set by
	// post-filtering Query's own results rather than ANDing a filter
	// clause into Query itself, so a filter never contributes to the
	// returned BM25 score (§4.7 step 1).
	AllowedIDs map[uint64]bool
}

const (
	idField           = "_id"
	codeTokenizerName = "hybrid_code_tokenizer"
	codeStopFilter    = "hybrid_code_stop"
	codeAnalyzerName  = "hybrid_code_analyzer"
)

// Store is the default bleve-backed lexical sub-store.
type Store struct {
	mu        sync.RWMutex
	index     bleve.Index
	cfg       Config
	lastSeq   uint64
	closed    bool
}

// Open creates or opens a bleve index rooted at path (empty path ==
// in-memory), mapped according to cfg.Fields.
func Open(path string, cfg Config) (*Store, error) {
	im, err := buildMapping(cfg)
	if err != nil {
		return nil, engineerr.Other("building lexical index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else if !pathExists(path) {
		idx, err = bleve.New(path, im)
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, engineerr.Corruption(engineerr.CodeSegmentCorrupt,
				"opening lexical index at "+path, err)
		}
	}
	if err != nil {
		return nil, engineerr.IO(engineerr.CodeStorageFailure, "opening lexical index", err)
	}

	return &Store{index: idx, cfg: cfg}, nil
}

func buildMapping(cfg Config) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := registerAnalyzer(im, cfg); err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = codeAnalyzerName
	im.TypeField = "_type"
	im.DefaultType = "_default"

	dm := bleve.NewDocumentMapping()
	// Only schema-declared fields are indexed; vector-typed fields (never
	// declared here) ride along in the map passed to UpsertDocument but
	// are silently dropped rather than dynamically indexed.
	dm.Dynamic = false

	idfm := bleve.NewTextFieldMapping()
	idfm.Analyzer = "keyword"
	idfm.Store = true
	idfm.IncludeInAll = false
	dm.AddFieldMappingsAt(idField, idfm)

	for name, fc := range cfg.Fields {
		switch fc.Kind {
		case Text:
			fm := bleve.NewTextFieldMapping()
			if fc.Analyzer != "" {
				fm.Analyzer = fc.Analyzer
			}
			fm.Store = fc.Stored
			fm.IncludeInAll = fc.Indexed
			fm.SkipFreqNorm = !fc.Indexed
			if fc.TermVectors {
				fm.IncludeTermVectors = true
			}
			dm.AddFieldMappingsAt(name, fm)
		case Integer, Float:
			fm := bleve.NewNumericFieldMapping()
			fm.Store = fc.Stored
			fm.Index = fc.Indexed
			dm.AddFieldMappingsAt(name, fm)
		case Bool:
			fm := bleve.NewBooleanFieldMapping()
			fm.Store = fc.Stored
			fm.Index = fc.Indexed
			dm.AddFieldMappingsAt(name, fm)
		case DateTime:
			fm := bleve.NewDateTimeFieldMapping()
			fm.Store = fc.Stored
			fm.Index = fc.Indexed
			dm.AddFieldMappingsAt(name, fm)
		case Geo:
			fm := bleve.NewGeoPointFieldMapping()
			fm.Store = fc.Stored
			dm.AddFieldMappingsAt(name, fm)
		case Bytes:
			fm := bleve.NewTextFieldMapping()
			fm.Store = fc.Stored
			fm.Index = false
			fm.IncludeInAll = false
			dm.AddFieldMappingsAt(name, fm)
		}
	}

	im.DefaultMapping = dm
	return im, nil
}

func registerAnalyzer(im *mapping.IndexMappingImpl, cfg Config) error {
	if err := im.AddCustomTokenizer(codeTokenizerName, map[string]interface{}{
		"type": "unicode",
	}); err != nil {
		return err
	}
	stop := make([]interface{}, 0, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop = append(stop, w)
	}
	if err := im.AddCustomTokenMap(codeStopFilter+"_list", map[string]interface{}{
		"type":  "custom",
		"words": stop,
	}); err != nil {
		return err
	}
	if err := im.AddCustomTokenFilter(codeStopFilter, map[string]interface{}{
		"type":           "stop_tokens",
		"stop_token_map": codeStopFilter + "_list",
	}); err != nil {
		return err
	}
	return im.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilter,
		},
	})
}

func docIDKey(docID uint64) string { return strconv.FormatUint(docID, 10) }

func keyDocID(key string) (uint64, error) { return strconv.ParseUint(key, 10, 64) }

// UpsertDocument replaces (or inserts) the document stored under docID.
// fields holds native Go values: string, int64, float64, bool,
// time.Time, [2]float64{lat,lon}, or []byte (stored opaquely, never
// indexed).
func (s *Store) UpsertDocument(docID uint64, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.Other("lexical store is closed", nil)
	}

	bdoc := make(map[string]any, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case []byte:
			bdoc[name] = string(val)
		case [2]float64:
			bdoc[name] = geo.Point{Lon: val[1], Lat: val[0]}
		default:
			bdoc[name] = val
		}
	}

	if err := s.index.Index(docIDKey(docID), bdoc); err != nil {
		return engineerr.IO(engineerr.CodeStorageFailure, "indexing lexical document", err)
	}
	return nil
}

// DeleteDocument removes the document stored under docID. Deleting an
// absent id is a silent no-op.
func (s *Store) DeleteDocument(docID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engineerr.Other("lexical store is closed", nil)
	}
	if err := s.index.Delete(docIDKey(docID)); err != nil {
		return engineerr.IO(engineerr.CodeStorageFailure, "deleting lexical document", err)
	}
	return nil
}

// FindDocIDsByTerm returns every doc-id whose field equals term exactly,
// used by the Engine to resolve external ids via "_id".
func (s *Store) FindDocIDsByTerm(field, term string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, engineerr.Other("lexical store is closed", nil)
	}

	q := bleve.NewTermQuery(term)
	q.SetField(field)
	req := bleve.NewSearchRequest(q)
	count, _ := s.index.DocCount()
	req.Size = int(count) + 1
	req.Fields = nil

	res, err := s.index.Search(req)
	if err != nil {
		return nil, engineerr.IO(engineerr.CodeStorageFailure, "term lookup", err)
	}
	out := make([]uint64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := keyDocID(hit.ID)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Search executes req and returns ranked hits, matching §4.5.
func (s *Store) Search(req SearchRequest) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, engineerr.Other("lexical store is closed", nil)
	}
	if req.Query == nil {
		return &Result{}, nil
	}

	size := clampSize(req.Limit + req.Offset)
	if req.AllowedIDs != nil {
		// The user query's own hits must be fetched unrestricted and
		// post-filtered by id, so AllowedIDs never reaches Bleve as a
		// scored clause; over-fetch to cover filtering out disallowed
		// hits before truncating to the caller's requested size.
		count, _ := s.index.DocCount()
		size = clampSize(int(count) + 1)
	}

	breq := bleve.NewSearchRequestOptions(req.Query, size, 0, false)
	if req.LoadDocuments {
		breq.Fields = []string{"*"}
	}
	if len(req.FieldBoosts) > 0 {
		applyFieldBoosts(req.Query, req.FieldBoosts)
	}

	res, err := s.index.Search(breq)
	if err != nil {
		return nil, engineerr.IO(engineerr.CodeStorageFailure, "lexical search", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := keyDocID(h.ID)
		if err != nil {
			continue
		}
		if req.AllowedIDs != nil && !req.AllowedIDs[id] {
			continue
		}
		hit := Hit{DocID: id, Score: h.Score}
		if req.LoadDocuments {
			hit.Fields = map[string]any(h.Fields)
		}
		hits = append(hits, hit)
		if req.AllowedIDs != nil && len(hits) >= clampSize(req.Limit+req.Offset) {
			break
		}
	}
	return &Result{Hits: hits, TotalHits: res.Total}, nil
}

// applyFieldBoosts best-effort applies per-field boosts to any
// TermQuery/MatchQuery/MatchPhraseQuery leaves of q that carry a
// SetBoost method, following Bleve's own per-clause boost convention.
func applyFieldBoosts(q bsearch.Query, boosts map[string]float64) {
	type fielded interface{ Field() string }
	type boostable interface{ SetBoost(float64) }
	var walk func(bsearch.Query)
	walk = func(q bsearch.Query) {
		switch v := q.(type) {
		case *bsearch.ConjunctionQuery:
			for _, c := range v.Conjuncts {
				walk(c)
			}
		case *bsearch.DisjunctionQuery:
			for _, d := range v.Disjuncts {
				walk(d)
			}
		case *bsearch.BooleanQuery:
			if v.Must != nil {
				walk(v.Must)
			}
			if v.Should != nil {
				walk(v.Should)
			}
		default:
			if f, ok := q.(fielded); ok {
				if b, ok := q.(boostable); ok {
					if boost, ok := boosts[f.Field()]; ok {
						b.SetBoost(boost)
					}
				}
			}
		}
	}
	walk(q)
}

// Count returns the total number of matching documents for req.
func (s *Store) Count(req SearchRequest) (uint64, error) {
	res, err := s.Search(SearchRequest{Query: req.Query, Limit: 0, Offset: 0})
	if err != nil {
		return 0, err
	}
	return res.TotalHits, nil
}

// Commit is a no-op for Bleve: every Index/Delete call is durable as soon
// as it returns, matching the teacher's own Save() comment.
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

// Stats reports index-level counters.
type Stats struct {
	DocumentCount uint64
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, _ := s.index.DocCount()
	return Stats{DocumentCount: count}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

func clampSize(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// --- Query builders (term/boolean/phrase/fuzzy/range/geo) ---

func NewTermQuery(field, term string) bsearch.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func NewPhraseQuery(field string, terms []string, slop int) bsearch.Query {
	if slop <= 0 {
		q := bleve.NewMatchPhraseQuery(strings.Join(terms, " "))
		q.SetField(field)
		return q
	}
	return bleve.NewPhraseQuery(terms, field)
}

func NewFuzzyQuery(field, term string, maxEdits int) bsearch.Query {
	q := bleve.NewFuzzyQuery(term)
	q.SetField(field)
	q.Fuzziness = maxEdits
	return q
}

func NewNumericRangeQuery(field string, min, max *float64) bsearch.Query {
	q := bleve.NewNumericRangeQuery(min, max)
	q.SetField(field)
	return q
}

func NewDateRangeQuery(field string, start, end *time.Time) bsearch.Query {
	var s, e time.Time
	if start != nil {
		s = *start
	}
	if end != nil {
		e = *end
	}
	q := bleve.NewDateRangeQuery(s, e)
	q.SetField(field)
	return q
}

func NewGeoDistanceQuery(field string, lat, lon float64, distance string) bsearch.Query {
	q := bleve.NewGeoDistanceQuery(lon, lat, distance)
	q.SetField(field)
	return q
}

// NewSpanNearQuery approximates span "near" semantics via a Bleve phrase
// query. The slop argument is not applied: the terms match only as an
// exact, in-order phrase.
func NewSpanNearQuery(field string, terms []string, slop int) bsearch.Query {
	q := bleve.NewPhraseQuery(terms, field)
	return q
}

// NewBooleanQuery composes a scored must/should/mustNot query. It takes
// no filter argument on purpose: a filter ANDed into a Bleve boolean
// query still contributes its own BM25 score to the conjunction, which
// would violate §4.7 step 1 ("lexical scoring ignores the filter's
// contribution"). Non-scoring filtering belongs at the SearchRequest
// level via AllowedIDs, which post-filters this query's hits by doc id
// instead of rewriting the query itself.
func NewBooleanQuery(must, should, mustNot []bsearch.Query) bsearch.Query {
	var mustQ, shouldQ, mustNotQ bsearch.Query
	if len(must) > 0 {
		mustQ = bleve.NewConjunctionQuery(must...)
	}
	if len(should) > 0 {
		shouldQ = bleve.NewDisjunctionQuery(should...)
	}
	if len(mustNot) > 0 {
		mustNotQ = bleve.NewDisjunctionQuery(mustNot...)
	}
	bq := bleve.NewBooleanQuery()
	if mustQ != nil {
		bq.AddMust(mustQ)
	}
	if shouldQ != nil {
		bq.AddShould(shouldQ)
	}
	if mustNotQ != nil {
		bq.AddMustNot(mustNotQ)
	}
	return bq
}

// NewQueryString parses Lucene-style syntax via Bleve's own parser,
// matching §4.8's lexical grammar requirements directly.
func NewQueryString(q string) (bsearch.Query, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("empty query")
	}
	return bleve.NewQueryStringQuery(q), nil
}
