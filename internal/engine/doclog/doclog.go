// Package doclog implements the segmented document store: the durable,
// addressable-by-internal-doc-id payload storage used for stored-field
// retrieval and WAL-recovery external-id scans. Grounded on the original
// engine's src/store/document.rs (UnifiedDocumentStore / DocumentSegment).
package doclog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanmcp/internal/engine/storage"
	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

const manifestFile = "segments.json"

// Segment describes one immutable document-segment file.
type Segment struct {
	ID          uint32 `json:"id"`
	StartDocID  uint64 `json:"start_doc_id"`
	EndDocID    uint64 `json:"end_doc_id"`
	DocCount    int    `json:"doc_count"`
}

func (s Segment) fileName() string {
	return fmt.Sprintf("doc_segment_%06d.docs", s.ID)
}

func (s Segment) contains(docID uint64) bool {
	return docID >= s.StartDocID && docID <= s.EndDocID
}

type manifest struct {
	Version        uint32    `json:"version"`
	Segments       []Segment `json:"segments"`
	NextSegmentID  uint32    `json:"next_segment_id"`
}

// RawDocument is the not-yet-decoded JSON a caller stores; the doclog
// itself is agnostic to the engine's Document type to avoid an import
// cycle, and instead works in terms of raw JSON bytes keyed by doc-id.
type RawDocument = json.RawMessage

// Store is a segmented, append-mostly store of documents addressed by
// internal doc-id, matching §4.3.
type Store struct {
	store storage.Storage

	mu            sync.RWMutex
	segments      []Segment
	nextSegmentID uint32
	pending       map[uint64]RawDocument
	nextDocID     uint64

	cache *lru.Cache[uint64, RawDocument]
}

// Open loads the manifest (if present) and returns a Store ready for use.
func Open(store storage.Storage) (*Store, error) {
	s := &Store{store: store, pending: make(map[uint64]RawDocument), nextDocID: 1}
	cache, _ := lru.New[uint64, RawDocument](1024)
	s.cache = cache

	if !store.Exists(manifestFile) {
		return s, nil
	}
	in, err := store.OpenInput(manifestFile)
	if err != nil {
		return nil, engineerr.IO(engineerr.CodeStorageFailure, "opening doclog manifest", err)
	}
	defer in.Close()
	size, err := in.Size()
	if err != nil {
		return nil, engineerr.IO(engineerr.CodeStorageFailure, "stat doclog manifest", err)
	}
	buf := make([]byte, size)
	if _, err := in.ReadAt(buf, 0); err != nil {
		return nil, engineerr.IO(engineerr.CodeStorageFailure, "reading doclog manifest", err)
	}
	var m manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, engineerr.Corruption(engineerr.CodeManifestCorrupt, "decoding doclog manifest", err)
	}
	s.segments = m.Segments
	s.nextSegmentID = m.NextSegmentID

	next := uint64(1)
	for _, seg := range s.segments {
		if seg.EndDocID+1 > next {
			next = seg.EndDocID + 1
		}
	}
	s.nextDocID = next
	return s, nil
}

// NextDocID returns the doc-id one past the highest committed doc-id.
func (s *Store) NextDocID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextDocID
}

// Store buffers doc under docID in the pending map.
func (s *Store) Store(docID uint64, doc RawDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[docID] = doc
	if docID+1 > s.nextDocID {
		s.nextDocID = docID + 1
	}
	if s.cache != nil {
		s.cache.Remove(docID)
	}
}

// Get returns the document stored under docID, checking the pending buffer
// first, then scanning segments newest-first.
func (s *Store) Get(docID uint64) (RawDocument, bool, error) {
	s.mu.RLock()
	if doc, ok := s.pending[docID]; ok {
		s.mu.RUnlock()
		return doc, true, nil
	}
	if s.cache != nil {
		if doc, ok := s.cache.Get(docID); ok {
			s.mu.RUnlock()
			return doc, true, nil
		}
	}
	segments := make([]Segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.RUnlock()

	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if !seg.contains(docID) {
			continue
		}
		doc, ok, err := s.readFromSegment(seg, docID)
		if err != nil {
			return nil, false, err
		}
		if ok {
			if s.cache != nil {
				s.cache.Add(docID, doc)
			}
			return doc, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) openSegment(seg Segment) (storage.Input, int64, error) {
	in, err := s.store.OpenInput(seg.fileName())
	if err != nil {
		return nil, 0, engineerr.IO(engineerr.CodeStorageFailure, "opening document segment", err)
	}
	size, err := in.Size()
	if err != nil {
		in.Close()
		return nil, 0, engineerr.IO(engineerr.CodeStorageFailure, "stat document segment", err)
	}
	return in, size, nil
}

// scanSegment walks a segment file's records, invoking visit for each.
// visit returns (stop) to end the scan early.
func (s *Store) scanSegment(seg Segment, visit func(docID uint64, raw RawDocument) bool) error {
	in, size, err := s.openSegment(seg)
	if err != nil {
		return err
	}
	defer in.Close()

	var off int64
	hdr := make([]byte, 4)
	if _, err := in.ReadAt(hdr, off); err != nil {
		return engineerr.Corruption(engineerr.CodeSegmentCorrupt, "reading segment header", err)
	}
	count := binary.LittleEndian.Uint32(hdr)
	off += 4

	for i := uint32(0); i < count; i++ {
		if off+8 > size {
			return engineerr.Corruption(engineerr.CodeSegmentCorrupt, "truncated segment record", nil)
		}
		idBuf := make([]byte, 8)
		if _, err := in.ReadAt(idBuf, off); err != nil {
			return engineerr.Corruption(engineerr.CodeSegmentCorrupt, "reading segment doc id", err)
		}
		docID := binary.LittleEndian.Uint64(idBuf)
		off += 8

		lenBuf := make([]byte, 4)
		if _, err := in.ReadAt(lenBuf, off); err != nil {
			return engineerr.Corruption(engineerr.CodeSegmentCorrupt, "reading segment json length", err)
		}
		jsonLen := binary.LittleEndian.Uint32(lenBuf)
		off += 4

		if off+int64(jsonLen) > size {
			return engineerr.Corruption(engineerr.CodeSegmentCorrupt, "truncated segment json payload", nil)
		}
		raw := make([]byte, jsonLen)
		if _, err := in.ReadAt(raw, off); err != nil {
			return engineerr.Corruption(engineerr.CodeSegmentCorrupt, "reading segment json payload", err)
		}
		off += int64(jsonLen)

		if visit(docID, raw) {
			return nil
		}
	}
	return nil
}

func (s *Store) readFromSegment(seg Segment, docID uint64) (RawDocument, bool, error) {
	var found RawDocument
	var ok bool
	err := s.scanSegment(seg, func(id uint64, raw RawDocument) bool {
		if id == docID {
			found, ok = raw, true
			return true
		}
		return false
	})
	return found, ok, err
}

// externalIDOf extracts the "_id" field from a raw document's JSON, used
// for find-by-external-id scans.
func externalIDOf(raw RawDocument) (string, bool) {
	var probe struct {
		ID *struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == nil {
		return "", false
	}
	if probe.ID.Type != "Text" {
		return "", false
	}
	return probe.ID.Value, true
}

// FindByExternalID returns the first doc-id (pending, then newest segment
// first) whose "_id" field equals externalID. Fallback path only — the
// engine's primary resolution route is the lexical "_id" term posting.
func (s *Store) FindByExternalID(externalID string) (uint64, bool, error) {
	s.mu.RLock()
	for id, raw := range s.pending {
		if eid, ok := externalIDOf(raw); ok && eid == externalID {
			s.mu.RUnlock()
			return id, true, nil
		}
	}
	segments := make([]Segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.RUnlock()

	for i := len(segments) - 1; i >= 0; i-- {
		var found uint64
		var ok bool
		err := s.scanSegment(segments[i], func(id uint64, raw RawDocument) bool {
			if eid, match := externalIDOf(raw); match && eid == externalID {
				found, ok = id, true
				return true
			}
			return false
		})
		if err != nil {
			return 0, false, err
		}
		if ok {
			return found, true, nil
		}
	}
	return 0, false, nil
}

// FindAllByExternalID returns every doc-id (pending and all segments)
// whose "_id" field equals externalID.
func (s *Store) FindAllByExternalID(externalID string) ([]uint64, error) {
	var results []uint64

	s.mu.RLock()
	for id, raw := range s.pending {
		if eid, ok := externalIDOf(raw); ok && eid == externalID {
			results = append(results, id)
		}
	}
	segments := make([]Segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.RUnlock()

	for _, seg := range segments {
		err := s.scanSegment(seg, func(id uint64, raw RawDocument) bool {
			if eid, ok := externalIDOf(raw); ok && eid == externalID {
				results = append(results, id)
			}
			return false
		})
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Commit flushes the pending buffer into a new segment file (if
// non-empty) and atomically rewrites the manifest.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		ids := make([]uint64, 0, len(s.pending))
		for id := range s.pending {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		seg := Segment{
			ID:         s.nextSegmentID,
			StartDocID: ids[0],
			EndDocID:   ids[len(ids)-1],
			DocCount:   len(ids),
		}
		if err := s.writeSegment(seg, ids); err != nil {
			return err
		}
		s.segments = append(s.segments, seg)
		s.nextSegmentID++
		s.pending = make(map[uint64]RawDocument)
	}

	m := manifest{Version: 1, Segments: s.segments, NextSegmentID: s.nextSegmentID}
	payload, err := json.Marshal(m)
	if err != nil {
		return engineerr.Other("marshaling doclog manifest", err)
	}
	tmp := manifestFile + ".tmp"
	out, err := s.store.CreateOutput(tmp)
	if err != nil {
		return engineerr.IO(engineerr.CodeStorageFailure, "creating doclog manifest tmp file", err)
	}
	if _, err := out.Write(payload); err != nil {
		out.Close()
		return engineerr.IO(engineerr.CodeStorageFailure, "writing doclog manifest tmp file", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return engineerr.IO(engineerr.CodeStorageFailure, "fsyncing doclog manifest tmp file", err)
	}
	if err := out.Close(); err != nil {
		return engineerr.IO(engineerr.CodeStorageFailure, "closing doclog manifest tmp file", err)
	}
	if err := s.store.Rename(tmp, manifestFile); err != nil {
		return engineerr.IO(engineerr.CodeStorageFailure, "renaming doclog manifest", err)
	}
	return nil
}

func (s *Store) writeSegment(seg Segment, sortedIDs []uint64) error {
	out, err := s.store.CreateOutput(seg.fileName())
	if err != nil {
		return engineerr.IO(engineerr.CodeStorageFailure, "creating document segment", err)
	}
	defer out.Close()

	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(sortedIDs)))
	if _, err := out.Write(countBuf); err != nil {
		return engineerr.IO(engineerr.CodeSegmentFlush, "writing segment count", err)
	}
	for _, id := range sortedIDs {
		raw := s.pending[id]
		idBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(idBuf, id)
		if _, err := out.Write(idBuf); err != nil {
			return engineerr.IO(engineerr.CodeSegmentFlush, "writing segment doc id", err)
		}
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(raw)))
		if _, err := out.Write(lenBuf); err != nil {
			return engineerr.IO(engineerr.CodeSegmentFlush, "writing segment json length", err)
		}
		if _, err := out.Write(raw); err != nil {
			return engineerr.IO(engineerr.CodeSegmentFlush, "writing segment json payload", err)
		}
	}
	return out.Sync()
}

// Segments returns the committed segment list.
func (s *Store) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}
