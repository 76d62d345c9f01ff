package mcpserver

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/engine"
)

// fieldsFromJSON converts a JSON-decoded field map, as received over the
// wire from an MCP tool call, into an engine.Document. JSON numbers land as
// float64; a number with no fractional part is stored as an Int64Value so
// schemas declaring a LexicalInteger field still round-trip cleanly, and one
// with a fractional part as a Float64Value. A []any of all-numeric entries
// is treated as a dense vector (VectorValue) rather than a Float64 list,
// since this engine has no array-of-scalar field kind.
func fieldsFromJSON(fields map[string]any) (*engine.Document, error) {
	doc := engine.NewDocument()
	for name, raw := range fields {
		v, err := dataValueFromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		doc.Set(name, v)
	}
	return doc, nil
}

func dataValueFromJSON(raw any) (engine.DataValue, error) {
	switch x := raw.(type) {
	case string:
		return engine.TextValue(x), nil
	case bool:
		return engine.BoolValue(x), nil
	case float64:
		if x == float64(int64(x)) {
			return engine.Int64Value(int64(x)), nil
		}
		return engine.Float64Value(x), nil
	case []any:
		vec := make([]float32, len(x))
		for i, elem := range x {
			f, ok := elem.(float64)
			if !ok {
				return engine.DataValue{}, fmt.Errorf("vector element %d is not numeric", i)
			}
			vec[i] = float32(f)
		}
		return engine.VectorValue(vec), nil
	default:
		return engine.DataValue{}, fmt.Errorf("unsupported field value type %T", raw)
	}
}

// fieldsToJSON converts a Document's fields back to a plain JSON-friendly
// map for an MCP tool response.
func fieldsToJSON(doc *engine.Document) map[string]any {
	out := make(map[string]any, len(doc.Fields))
	for name, v := range doc.Fields {
		switch v.Kind {
		case engine.KindText:
			out[name] = v.Text
		case engine.KindBool:
			out[name] = v.Bool
		case engine.KindInt64:
			out[name] = v.Int64
		case engine.KindFloat64:
			out[name] = v.Float64
		case engine.KindVector:
			out[name] = v.Vector
		case engine.KindDateTime:
			out[name] = v.DateTime.Format(time.RFC3339)
		case engine.KindGeo:
			out[name] = map[string]float64{"lat": v.Lat, "lon": v.Lon}
		case engine.KindBytes:
			out[name] = map[string]any{"mime_type": v.MimeType, "size": len(v.Bytes)}
		}
	}
	return out
}
