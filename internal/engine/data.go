package engine

import "time"

// DataValue is the unified value type for a document field. Exactly one
// variant is populated; Kind identifies which.
type DataValue struct {
	Kind DataKind

	Bool     bool
	Int64    int64
	Float64  float64
	Text     string
	Bytes    []byte
	MimeType string
	Vector   []float32
	DateTime time.Time
	Lat, Lon float64
}

// DataKind tags the active variant of a DataValue.
type DataKind int

const (
	KindNull DataKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindText
	KindBytes
	KindVector
	KindDateTime
	KindGeo
)

func TextValue(s string) DataValue         { return DataValue{Kind: KindText, Text: s} }
func Int64Value(v int64) DataValue         { return DataValue{Kind: KindInt64, Int64: v} }
func Float64Value(v float64) DataValue     { return DataValue{Kind: KindFloat64, Float64: v} }
func BoolValue(v bool) DataValue           { return DataValue{Kind: KindBool, Bool: v} }
func VectorValue(v []float32) DataValue    { return DataValue{Kind: KindVector, Vector: v} }
func DateTimeValue(t time.Time) DataValue  { return DataValue{Kind: KindDateTime, DateTime: t.UTC()} }
func GeoValue(lat, lon float64) DataValue  { return DataValue{Kind: KindGeo, Lat: lat, Lon: lon} }
func BytesValue(b []byte, mime string) DataValue {
	return DataValue{Kind: KindBytes, Bytes: b, MimeType: mime}
}

// AsText returns the text value and whether this is a Text variant.
func (v DataValue) AsText() (string, bool) {
	if v.Kind == KindText {
		return v.Text, true
	}
	return "", false
}

// AsVector returns the vector value and whether this is a Vector variant.
func (v DataValue) AsVector() ([]float32, bool) {
	if v.Kind == KindVector {
		return v.Vector, true
	}
	return nil, false
}

// Document is a pure data container: a mapping from field name to value.
// Document identity (the external id) is managed by the Engine, not stored
// as part of the document's own state outside the reserved "_id" field.
type Document struct {
	Fields map[string]DataValue
}

// NewDocument returns an empty document ready for field assignment.
func NewDocument() *Document {
	return &Document{Fields: make(map[string]DataValue)}
}

// Get returns a field's value and whether it is present.
func (d *Document) Get(name string) (DataValue, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// Set assigns a field, overwriting any existing value.
func (d *Document) Set(name string, v DataValue) {
	if d.Fields == nil {
		d.Fields = make(map[string]DataValue)
	}
	d.Fields[name] = v
}

// Clone returns a shallow copy of the document with a fresh field map, safe
// to mutate independently of the original.
func (d *Document) Clone() *Document {
	out := NewDocument()
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	return out
}

// IDField is the reserved system field holding the external id.
const IDField = "_id"

// ExternalID returns the document's "_id" field, if present and textual.
func (d *Document) ExternalID() (string, bool) {
	v, ok := d.Get(IDField)
	if !ok {
		return "", false
	}
	return v.AsText()
}
