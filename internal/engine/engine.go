// Package engine implements the hybrid search kernel: a single logical
// document space backed by a write-ahead log, a segmented document store,
// a lexical (BM25-style) sub-store, and a vector (ANN) sub-store, fused at
// query time. Grounded on the original engine's laurus/src/engine.rs for
// the write/recovery algorithms, and on the teacher's internal/search
// package for the parallel-leg search pipeline.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	bsearch "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/amanmcp/internal/engine/doclog"
	"github.com/Aman-CERP/amanmcp/internal/engine/dsl"
	"github.com/Aman-CERP/amanmcp/internal/engine/fusion"
	"github.com/Aman-CERP/amanmcp/internal/engine/lexical"
	"github.com/Aman-CERP/amanmcp/internal/engine/storage"
	"github.com/Aman-CERP/amanmcp/internal/engine/vector"
	"github.com/Aman-CERP/amanmcp/internal/engine/wal"
	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

// Embedder is the Engine-level embedding contract; it is the same shape
// as vector.Embedder, re-declared here so callers configuring an Engine
// don't need to import the vector package directly.
type Embedder = vector.Embedder

// Engine is the kernel tying WAL, document log, lexical sub-store and
// vector sub-store into one write/search surface, matching §4.1.
type Engine struct {
	schema *Schema
	wal    *wal.WAL
	docs   *doclog.Store
	lex    *lexical.Store
	vec    *vector.Store

	writeMu sync.Mutex
	log     *slog.Logger
}

// Open constructs an Engine over store, building sub-stores from schema
// and replaying any WAL records left over from an unclean shutdown.
func Open(ctx context.Context, store storage.Storage, schema *Schema, embed Embedder, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	docs, err := doclog.Open(store)
	if err != nil {
		return nil, err
	}

	lexCfg := lexicalConfigFromSchema(schema)
	lex, err := lexical.Open("", lexCfg) // in-memory default; callers needing a persistent path open their own storage.Storage rooted there
	if err != nil {
		return nil, err
	}

	vecStore := vector.New(embed)
	for name, opt := range schema.Fields {
		if !opt.IsVector {
			continue
		}
		if err := vecStore.AddField(name, vectorFieldConfig(opt.Vector)); err != nil {
			return nil, err
		}
	}

	w, records, err := wal.Open(store, docs.NextDocID()-1)
	if err != nil {
		return nil, err
	}

	e := &Engine{schema: schema, wal: w, docs: docs, lex: lex, vec: vecStore, log: log}

	if err := e.recover(records); err != nil {
		return nil, err
	}
	return e, nil
}

func lexicalConfigFromSchema(schema *Schema) lexical.Config {
	cfg := lexical.DefaultConfig()
	cfg.Fields = make(map[string]lexical.FieldConfig, len(schema.Fields))
	for name, opt := range schema.Fields {
		if opt.IsVector {
			continue
		}
		var fc lexical.FieldConfig
		switch opt.Lexical.Kind {
		case LexicalText:
			fc = lexical.FieldConfig{Kind: lexical.Text, Indexed: opt.Lexical.Text.Indexed,
				Stored: opt.Lexical.Text.Stored, TermVectors: opt.Lexical.Text.TermVectors}
		case LexicalInteger:
			fc = lexical.FieldConfig{Kind: lexical.Integer, Indexed: opt.Lexical.Scalar.Indexed, Stored: opt.Lexical.Scalar.Stored}
		case LexicalFloat:
			fc = lexical.FieldConfig{Kind: lexical.Float, Indexed: opt.Lexical.Scalar.Indexed, Stored: opt.Lexical.Scalar.Stored}
		case LexicalBool:
			fc = lexical.FieldConfig{Kind: lexical.Bool, Indexed: opt.Lexical.Scalar.Indexed, Stored: opt.Lexical.Scalar.Stored}
		case LexicalDateTime:
			fc = lexical.FieldConfig{Kind: lexical.DateTime, Indexed: opt.Lexical.Scalar.Indexed, Stored: opt.Lexical.Scalar.Stored}
		case LexicalGeo:
			fc = lexical.FieldConfig{Kind: lexical.Geo, Indexed: opt.Lexical.Scalar.Indexed, Stored: opt.Lexical.Scalar.Stored}
		case LexicalBytes:
			fc = lexical.FieldConfig{Kind: lexical.Bytes, Stored: opt.Lexical.Bytes.Stored}
		}
		cfg.Fields[name] = fc
	}
	return cfg
}

func vectorFieldConfig(opt VectorOption) vector.FieldConfig {
	var metric vector.DistanceMetric
	switch opt.Distance {
	case Euclidean:
		metric = vector.Euclidean
	case DotProduct:
		metric = vector.DotProduct
	case Manhattan:
		metric = vector.Manhattan
	case Angular:
		metric = vector.Angular
	default:
		metric = vector.Cosine
	}
	var kind vector.IndexKind
	switch opt.Index {
	case Flat:
		kind = vector.Flat
	case Ivf:
		kind = vector.Ivf
	default:
		kind = vector.Hnsw
	}
	return vector.FieldConfig{
		Kind: kind, Dimension: opt.Dimension, Distance: metric,
		M: opt.M, EfConstruction: opt.EfConstruction, EfSearch: opt.EfSearch,
		NClusters: opt.NClusters, NProbe: opt.NProbe,
	}
}

// recover replays WAL records with seq greater than each sub-store's
// persisted checkpoint, per §4.4.
func (e *Engine) recover(records []wal.LogRecord) error {
	lexSeq := e.lex.LastWALSeq()
	vecSeq := e.vec.LastWALSeq()

	for _, rec := range records {
		switch rec.Entry.Kind {
		case wal.EntryUpsert:
			doc, err := DecodeDocument(rec.Entry.Document)
			if err != nil {
				return err
			}
			if rec.Seq > lexSeq {
				if err := e.indexLexical(rec.Entry.DocID, doc); err != nil {
					return err
				}
			}
			if rec.Seq > vecSeq {
				if err := e.indexVector(rec.Entry.DocID, doc); err != nil {
					e.log.Warn("recovery: vector replay failed, compensating lexical delete",
						"doc_id", rec.Entry.DocID, "error", err)
					_ = e.lex.DeleteDocument(rec.Entry.DocID)
					return err
				}
			}
		case wal.EntryDelete:
			if rec.Seq > lexSeq {
				_ = e.lex.DeleteDocument(rec.Entry.DocID)
			}
			if rec.Seq > vecSeq {
				e.vec.DeleteDocumentByInternalID(rec.Entry.DocID)
			}
		}
		e.lex.SetLastWALSeq(rec.Seq)
		e.vec.SetLastWALSeq(rec.Seq)
	}

	if len(records) > 0 {
		e.log.Info("engine recovery replayed WAL records", "count", len(records))
	}
	return nil
}

// indexLexical hands the lexical sub-store the full document, per §4.1
// step 6; the index mapping itself (Dynamic=false, only schema-declared
// fields mapped) is what keeps vector-typed fields from being indexed.
func (e *Engine) indexLexical(docID uint64, doc *Document) error {
	fields := make(map[string]any, len(doc.Fields))
	for name, v := range doc.Fields {
		fields[name] = toLexicalValue(v)
	}
	return e.lex.UpsertDocument(docID, fields)
}

func toLexicalValue(v DataValue) any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindFloat64:
		return v.Float64
	case KindText:
		return v.Text
	case KindBytes:
		return v.Bytes
	case KindDateTime:
		return v.DateTime
	case KindGeo:
		return [2]float64{v.Lat, v.Lon}
	default:
		return nil
	}
}

func (e *Engine) indexVector(docID uint64, doc *Document) error {
	proj := e.schema.VectorProjection(doc)
	fields := make(map[string]vector.FieldValue, len(proj.Fields))
	for name, v := range proj.Fields {
		if vec, ok := v.AsVector(); ok {
			fields[name] = vector.FieldValue{Kind: vector.ValueVector, Vec: vec}
			continue
		}
		if text, ok := v.AsText(); ok {
			fields[name] = vector.FieldValue{Kind: vector.ValueText, Text: text}
			continue
		}
		if v.Kind == KindBytes {
			fields[name] = vector.FieldValue{Kind: vector.ValueBytes, Bytes: v.Bytes, Mime: v.MimeType}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	if err := e.vec.UpsertDocumentByInternalID(docID, fields); err != nil {
		e.log.Warn("vector upsert failed, compensating lexical delete", "doc_id", docID, "error", err)
		_ = e.lex.DeleteDocument(docID)
		return err
	}
	return nil
}

// PutDocument upserts doc under externalID: every existing internal id
// sharing externalID is deleted first, then one new copy is indexed.
func (e *Engine) PutDocument(ctx context.Context, externalID string, doc *Document) (uint64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.deleteDocumentsLocked(externalID); err != nil {
		return 0, err
	}
	return e.writeOneLocked(externalID, doc)
}

// AddDocument always appends a new internal id sharing externalID with
// any existing copies ("chunking").
func (e *Engine) AddDocument(ctx context.Context, externalID string, doc *Document) (uint64, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.writeOneLocked(externalID, doc)
}

func (e *Engine) writeOneLocked(externalID string, doc *Document) (uint64, error) {
	full := doc.Clone()
	full.Set(IDField, TextValue(externalID))

	// The WAL carries the full document so recovery can faithfully
	// reindex both sub-stores; the document log carries only the
	// stored-permitted projection, since it backs stored-field retrieval.
	fullPayload, err := EncodeDocument(full)
	if err != nil {
		return 0, engineerr.Other("encoding document for WAL", err)
	}
	storedPayload, err := EncodeDocument(e.schema.FilterStoredFields(full))
	if err != nil {
		return 0, engineerr.Other("encoding document for document log", err)
	}

	docID, seq, err := e.wal.Append(externalID, fullPayload)
	if err != nil {
		return 0, err
	}

	e.docs.Store(docID, storedPayload)

	if err := e.indexLexical(docID, full); err != nil {
		return 0, err
	}
	if err := e.indexVector(docID, full); err != nil {
		return 0, err
	}

	e.lex.SetLastWALSeq(seq)
	e.vec.SetLastWALSeq(seq)

	e.log.Debug("document written", "doc_id", docID, "external_id", externalID, "seq", seq)
	return docID, nil
}

// DeleteDocuments removes every internal id sharing externalID.
// Idempotent: deleting an absent id succeeds silently.
func (e *Engine) DeleteDocuments(ctx context.Context, externalID string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.deleteDocumentsLocked(externalID)
}

func (e *Engine) deleteDocumentsLocked(externalID string) error {
	ids, err := e.lex.FindDocIDsByTerm(IDField, externalID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	for _, docID := range ids {
		seq, err := e.wal.AppendDelete(docID, externalID)
		if err != nil {
			return err
		}
		if err := e.lex.DeleteDocument(docID); err != nil {
			return err
		}
		e.vec.DeleteDocumentByInternalID(docID)
		e.lex.SetLastWALSeq(seq)
		e.vec.SetLastWALSeq(seq)
	}
	return nil
}

// Commit flushes pending state in both sub-stores and the document log,
// then truncates the WAL.
func (e *Engine) Commit(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.lex.Commit(); err != nil {
		return err
	}
	if err := e.vec.Commit(); err != nil {
		return err
	}
	if err := e.docs.Commit(); err != nil {
		return err
	}
	if err := e.wal.Truncate(); err != nil {
		return err
	}
	e.log.Info("engine commit complete")
	return nil
}

// GetDocuments returns every live copy stored under externalID, filtered
// to stored fields.
func (e *Engine) GetDocuments(ctx context.Context, externalID string) ([]*Document, error) {
	ids, err := e.lex.FindDocIDsByTerm(IDField, externalID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids, err = e.docs.FindAllByExternalID(externalID)
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*Document, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := e.docs.Get(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		doc, err := DecodeDocument(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Stats reports aggregate counts across the engine's sub-stores.
type Stats struct {
	Lexical lexical.Stats
	Vector  vector.Stats
}

func (e *Engine) Stats(ctx context.Context) Stats {
	return Stats{Lexical: e.lex.Stats(), Vector: e.vec.Stats()}
}

// Close releases sub-store resources.
func (e *Engine) Close() error {
	if err := e.wal.Close(); err != nil {
		return err
	}
	return e.lex.Close()
}

// --- Search pipeline, §4.7 ---

// SearchRequest drives a unified search, carrying either a raw query
// string (split by the dsl package into lexical/vector legs) or
// explicitly pre-built legs.
type SearchRequest struct {
	QueryString string // parsed via dsl.Parse when set
	Lexical     *lexical.SearchRequest
	Vector      *vector.SearchRequest
	FilterQuery bsearch.Query
	Algorithm   fusion.Algorithm
	Weights     fusion.Weights
	RRFConstant int
	Offset      int
	Limit       int
	FieldBoosts map[string]float64
}

// SearchResult is one ranked, hydrated hit.
type SearchResult struct {
	ExternalID string
	Score      float64
	DocID      uint64
	Document   *Document
}

// Search executes req through the filter/fetch/fuse/hydrate pipeline of §4.7.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	fetch := req.Offset + limit

	var allowed map[uint64]bool
	if req.FilterQuery != nil {
		unbounded := int(e.lex.Stats().DocumentCount) + 1
		filterRes, err := e.lex.Search(lexical.SearchRequest{Query: req.FilterQuery, Limit: unbounded, LoadDocuments: false})
		if err != nil {
			return nil, err
		}
		if len(filterRes.Hits) == 0 {
			return nil, nil
		}
		allowed = make(map[uint64]bool, len(filterRes.Hits))
		for _, h := range filterRes.Hits {
			allowed[h.DocID] = true
		}
	}

	var lexReq *lexical.SearchRequest
	var vecReq *vector.SearchRequest

	if req.QueryString != "" {
		parsed, err := dsl.Parse(req.QueryString)
		if err != nil {
			return nil, err
		}
		if parsed.LexicalQuery != "" {
			q, err := lexical.NewQueryString(parsed.LexicalQuery)
			if err != nil {
				return nil, err
			}
			lexReq = &lexical.SearchRequest{Query: q, FieldBoosts: req.FieldBoosts}
		}
		if len(parsed.VectorClauses) > 0 {
			qvs := make([]vector.QueryPayload, 0, len(parsed.VectorClauses))
			for _, vc := range parsed.VectorClauses {
				qvs = append(qvs, vector.QueryPayload{
					Field:  vc.Field, // empty means "all vector fields"
					Value:  vector.FieldValue{Kind: vector.ValueText, Text: vc.Text},
					Weight: float32(vc.Weight),
				})
			}
			vecReq = &vector.SearchRequest{QueryPayloads: qvs}
		}
	} else {
		lexReq = req.Lexical
		vecReq = req.Vector
	}

	if lexReq == nil && vecReq == nil {
		return nil, engineerr.InvalidArgument(engineerr.CodeEmptyQuery, "search request has neither a lexical nor a vector leg")
	}

	if allowed != nil && vecReq != nil {
		restricted := *vecReq
		restricted.AllowedIDs = allowed
		vecReq = &restricted
	}
	if allowed != nil && lexReq != nil {
		restricted := *lexReq
		restricted.AllowedIDs = allowed
		lexReq = &restricted
	}

	bothLegs := lexReq != nil && vecReq != nil
	perLegFetch := fetch
	if bothLegs {
		perLegFetch = 2 * fetch
	}

	var lexRes *lexical.Result
	var vecHits []vector.Hit
	g, gctx := errgroup.WithContext(ctx)
	if lexReq != nil {
		leg := *lexReq
		leg.Limit = perLegFetch
		leg.LoadDocuments = false
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := e.lex.Search(leg)
			if err != nil {
				return err
			}
			lexRes = res
			return nil
		})
	}
	if vecReq != nil {
		leg := *vecReq
		leg.Limit = perLegFetch
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			hits, err := e.vec.Search(leg)
			if err != nil {
				return err
			}
			vecHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ranked []fusion.Result
	switch {
	case bothLegs:
		lexLeg := fusion.Leg{}
		if lexRes != nil {
			for _, h := range lexRes.Hits {
				lexLeg.DocIDs = append(lexLeg.DocIDs, h.DocID)
				lexLeg.Scores = append(lexLeg.Scores, h.Score)
			}
		}
		vecLeg := fusion.Leg{}
		for _, h := range vecHits {
			vecLeg.DocIDs = append(vecLeg.DocIDs, h.DocID)
			vecLeg.Scores = append(vecLeg.Scores, float64(h.Score))
		}
		weights := req.Weights
		if weights.Lexical == 0 && weights.Vector == 0 {
			weights = fusion.DefaultWeights()
		}
		if req.Algorithm == fusion.WeightedSum {
			ranked = fusion.NewWeightedSumFusion().Fuse(lexLeg, vecLeg, weights)
		} else {
			ranked = fusion.NewRRFFusionWithK(req.RRFConstant).Fuse(lexLeg, vecLeg, weights)
		}
	case lexRes != nil:
		for _, h := range lexRes.Hits {
			ranked = append(ranked, fusion.Result{DocID: h.DocID, Score: h.Score})
		}
	default:
		for _, h := range vecHits {
			ranked = append(ranked, fusion.Result{DocID: h.DocID, Score: float64(h.Score)})
		}
	}

	if len(ranked) > fetch {
		ranked = ranked[:fetch]
	}
	if req.Offset > 0 {
		if req.Offset >= len(ranked) {
			return nil, nil
		}
		ranked = ranked[req.Offset:]
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		doc, err := e.hydrate(r.DocID)
		if err != nil {
			return nil, err
		}
		extID := fmt.Sprintf("unknown_%d", r.DocID)
		if doc != nil {
			if eid, ok := doc.ExternalID(); ok {
				extID = eid
			}
		}
		out = append(out, SearchResult{ExternalID: extID, Score: r.Score, DocID: r.DocID, Document: doc})
	}
	return out, nil
}

func (e *Engine) hydrate(docID uint64) (*Document, error) {
	raw, ok, err := e.docs.Get(docID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return DecodeDocument(raw)
}
