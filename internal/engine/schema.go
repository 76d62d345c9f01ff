package engine

import "github.com/Aman-CERP/amanmcp/internal/engineerr"

// DistanceMetric selects the scoring function a vector sub-store uses.
type DistanceMetric int

const (
	Cosine DistanceMetric = iota
	Euclidean
	DotProduct
	Manhattan
	Angular
)

// VectorIndexKind selects the ANN algorithm backing a vector field.
type VectorIndexKind int

const (
	Hnsw VectorIndexKind = iota
	Flat
	Ivf
)

// TextOption configures a lexical text field.
type TextOption struct {
	Indexed     bool
	Stored      bool
	TermVectors bool
}

func DefaultTextOption() TextOption { return TextOption{Indexed: true, Stored: true} }

// ScalarOption configures a lexical Integer/Float/Bool/DateTime/Geo field.
type ScalarOption struct {
	Indexed bool
	Stored  bool
}

func DefaultScalarOption() ScalarOption { return ScalarOption{Indexed: true, Stored: true} }

// BytesOption configures a lexical stored-only binary field.
type BytesOption struct {
	Stored bool
}

func DefaultBytesOption() BytesOption { return BytesOption{Stored: true} }

// LexicalFieldKind identifies which DataValue shape a lexical field expects.
type LexicalFieldKind int

const (
	LexicalText LexicalFieldKind = iota
	LexicalInteger
	LexicalFloat
	LexicalBool
	LexicalDateTime
	LexicalGeo
	LexicalBytes
)

// LexicalOption is the lexical half of FieldOption.
type LexicalOption struct {
	Kind   LexicalFieldKind
	Text   TextOption
	Scalar ScalarOption
	Bytes  BytesOption
}

// VectorOption is the vector half of FieldOption: ANN index parameters.
type VectorOption struct {
	Index          VectorIndexKind
	Dimension      int
	Distance       DistanceMetric
	M              int     // Hnsw
	EfConstruction int     // Hnsw
	EfSearch       int     // Hnsw (runtime default)
	NClusters      int     // Ivf
	NProbe         int     // Ivf
	BaseWeight     float32
	Quantizer      string // optional; empty means none
}

func DefaultHnswOption(dimension int, distance DistanceMetric) VectorOption {
	return VectorOption{Index: Hnsw, Dimension: dimension, Distance: distance,
		M: 16, EfConstruction: 200, EfSearch: 64, BaseWeight: 1.0}
}

func DefaultFlatOption(dimension int, distance DistanceMetric) VectorOption {
	return VectorOption{Index: Flat, Dimension: dimension, Distance: distance, BaseWeight: 1.0}
}

func DefaultIvfOption(dimension int, distance DistanceMetric) VectorOption {
	return VectorOption{Index: Ivf, Dimension: dimension, Distance: distance,
		NClusters: 100, NProbe: 1, BaseWeight: 1.0}
}

// FieldOption is a sum type: a field is lexical XOR vector, never both.
type FieldOption struct {
	IsVector bool
	Lexical  LexicalOption
	Vector   VectorOption
}

func Lexical(opt LexicalOption) FieldOption { return FieldOption{IsVector: false, Lexical: opt} }
func VectorField(opt VectorOption) FieldOption {
	return FieldOption{IsVector: true, Vector: opt}
}

// Schema maps field names to their FieldOption. "_id" is reserved and
// always implicitly LexicalText{Indexed:true, Stored:true} with a keyword
// analyzer; Validate rejects a schema that declares it explicitly.
type Schema struct {
	Fields        map[string]FieldOption
	DefaultFields []string
}

func NewSchema() *Schema {
	return &Schema{Fields: make(map[string]FieldOption)}
}

// Validate checks the structural invariants of a schema: the reserved
// "_id" field is not declared, and every vector field has a positive
// dimension.
func (s *Schema) Validate() error {
	for name, opt := range s.Fields {
		if name == IDField {
			return engineerr.InvalidArgument(engineerr.CodeBadSchema,
				"schema must not declare reserved field \"_id\" explicitly")
		}
		if opt.IsVector {
			if opt.Vector.Dimension <= 0 {
				return engineerr.InvalidArgument(engineerr.CodeBadSchema,
					"vector field \""+name+"\" must declare a positive dimension")
			}
		}
	}
	return nil
}

// VectorFieldNames returns the names of every vector-typed field.
func (s *Schema) VectorFieldNames() []string {
	var out []string
	for name, opt := range s.Fields {
		if opt.IsVector {
			out = append(out, name)
		}
	}
	return out
}

// IsFieldStored reports whether a field's value should be retained by the
// hydration path. "_id" and every vector field are always stored (recovery
// replays from the WAL's full document, not from this projection).
// Lexical fields follow their own Stored flag.
func (s *Schema) IsFieldStored(name string) bool {
	if name == IDField {
		return true
	}
	opt, ok := s.Fields[name]
	if !ok {
		return false
	}
	if opt.IsVector {
		return true
	}
	switch opt.Lexical.Kind {
	case LexicalText:
		return opt.Lexical.Text.Stored
	case LexicalBytes:
		return opt.Lexical.Bytes.Stored
	default:
		return opt.Lexical.Scalar.Stored
	}
}

// FilterStoredFields returns a copy of doc containing only fields the
// schema permits retrieving, per §3 invariant 6. "_id" is always retained.
func (s *Schema) FilterStoredFields(doc *Document) *Document {
	out := NewDocument()
	for name, v := range doc.Fields {
		if s.IsFieldStored(name) {
			out.Fields[name] = v
		}
	}
	return out
}

// VectorProjection returns a copy of doc containing only vector-typed
// fields, per §4.1 step 5. Empty projections are allowed.
func (s *Schema) VectorProjection(doc *Document) *Document {
	out := NewDocument()
	for name, v := range doc.Fields {
		if opt, ok := s.Fields[name]; ok && opt.IsVector {
			out.Fields[name] = v
		}
	}
	return out
}
