package engine

import (
	"encoding/json"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

// jsonDataValue is the wire shape for DataValue: a tagged union matching
// the Rust reference's serde(tag = "type", content = "value") convention,
// used for WAL records and document-log segments alike.
type jsonDataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type jsonBytesValue struct {
	Data []byte `json:"data"`
	Mime string `json:"mime,omitempty"`
}

type jsonGeoValue struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (v DataValue) MarshalJSON() ([]byte, error) {
	var typ string
	var payload any
	switch v.Kind {
	case KindNull:
		typ = "Null"
	case KindBool:
		typ, payload = "Bool", v.Bool
	case KindInt64:
		typ, payload = "Int64", v.Int64
	case KindFloat64:
		typ, payload = "Float64", v.Float64
	case KindText:
		typ, payload = "Text", v.Text
	case KindBytes:
		typ, payload = "Bytes", jsonBytesValue{Data: v.Bytes, Mime: v.MimeType}
	case KindVector:
		typ, payload = "Vector", v.Vector
	case KindDateTime:
		typ, payload = "DateTime", v.DateTime.UTC().Format(time.RFC3339Nano)
	case KindGeo:
		typ, payload = "Geo", jsonGeoValue{Lat: v.Lat, Lon: v.Lon}
	default:
		typ = "Null"
	}
	out := jsonDataValue{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}
	return json.Marshal(out)
}

func (v *DataValue) UnmarshalJSON(data []byte) error {
	var in jsonDataValue
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case "Null", "":
		*v = DataValue{Kind: KindNull}
	case "Bool":
		var b bool
		if err := json.Unmarshal(in.Value, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case "Int64":
		var i int64
		if err := json.Unmarshal(in.Value, &i); err != nil {
			return err
		}
		*v = Int64Value(i)
	case "Float64":
		var f float64
		if err := json.Unmarshal(in.Value, &f); err != nil {
			return err
		}
		*v = Float64Value(f)
	case "Text":
		var s string
		if err := json.Unmarshal(in.Value, &s); err != nil {
			return err
		}
		*v = TextValue(s)
	case "Bytes":
		var b jsonBytesValue
		if err := json.Unmarshal(in.Value, &b); err != nil {
			return err
		}
		*v = BytesValue(b.Data, b.Mime)
	case "Vector":
		var f []float32
		if err := json.Unmarshal(in.Value, &f); err != nil {
			return err
		}
		*v = VectorValue(f)
	case "DateTime":
		var s string
		if err := json.Unmarshal(in.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*v = DateTimeValue(t)
	case "Geo":
		var g jsonGeoValue
		if err := json.Unmarshal(in.Value, &g); err != nil {
			return err
		}
		*v = GeoValue(g.Lat, g.Lon)
	default:
		return engineerr.Corruption(engineerr.CodeSegmentCorrupt,
			"unknown DataValue type tag \""+in.Type+"\"", nil)
	}
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Fields)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]DataValue
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	d.Fields = fields
	return nil
}

// EncodeDocument serializes a document to JSON bytes for WAL/segment
// storage.
func EncodeDocument(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

// DecodeDocument deserializes JSON bytes produced by EncodeDocument.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, engineerr.Corruption(engineerr.CodeSegmentCorrupt,
			"failed to decode document", err)
	}
	return &doc, nil
}
