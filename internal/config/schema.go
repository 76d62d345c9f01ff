package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

// SchemaFile is the on-disk YAML shape of an engine.Schema, the way a
// caller (or the irisd CLI) declares field layout without writing Go.
type SchemaFile struct {
	Fields map[string]SchemaField `yaml:"fields"`
}

// SchemaField is one field declaration: either "kind: text|integer|float|
// bool|datetime|geo|bytes" for a lexical field, or "kind: vector" with
// "dimension"/"distance"/"index" for a vector field.
type SchemaField struct {
	Kind      string  `yaml:"kind"`
	Indexed   *bool   `yaml:"indexed,omitempty"`
	Stored    *bool   `yaml:"stored,omitempty"`
	Dimension int     `yaml:"dimension,omitempty"`
	Distance  string  `yaml:"distance,omitempty"`
	Index     string  `yaml:"index,omitempty"`
	Weight    float32 `yaml:"weight,omitempty"`
}

// LoadSchemaFile reads and parses a schema YAML file at path.
func LoadSchemaFile(path string) (*SchemaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	var sf SchemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	return &sf, nil
}

// ToEngineSchema converts a parsed SchemaFile to an engine.Schema, applying
// the engine's own Default*Option() constructors so a caller only needs to
// override what deviates from the default.
func (sf *SchemaFile) ToEngineSchema() (*engine.Schema, error) {
	s := engine.NewSchema()
	for name, f := range sf.Fields {
		opt, err := fieldOptionFromYAML(f)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		s.Fields[name] = opt
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func fieldOptionFromYAML(f SchemaField) (engine.FieldOption, error) {
	kind := strings.ToLower(f.Kind)
	if kind == "vector" {
		if f.Dimension <= 0 {
			return engine.FieldOption{}, engineerr.InvalidArgument(engineerr.CodeBadSchema,
				"vector field requires a positive dimension")
		}
		distance, err := parseDistanceMetric(f.Distance)
		if err != nil {
			return engine.FieldOption{}, err
		}
		var opt engine.VectorOption
		switch strings.ToLower(f.Index) {
		case "", "hnsw":
			opt = engine.DefaultHnswOption(f.Dimension, distance)
		case "flat":
			opt = engine.DefaultFlatOption(f.Dimension, distance)
		case "ivf":
			opt = engine.DefaultIvfOption(f.Dimension, distance)
		default:
			return engine.FieldOption{}, engineerr.InvalidArgument(engineerr.CodeBadSchema,
				"unknown vector index kind \""+f.Index+"\"")
		}
		if f.Weight > 0 {
			opt.BaseWeight = f.Weight
		}
		return engine.VectorField(opt), nil
	}

	lexOpt := engine.LexicalOption{}
	switch kind {
	case "text", "":
		lexOpt.Kind = engine.LexicalText
		lexOpt.Text = engine.DefaultTextOption()
		applyIndexedStored(&lexOpt.Text.Indexed, &lexOpt.Text.Stored, f)
	case "integer":
		lexOpt.Kind = engine.LexicalInteger
		lexOpt.Scalar = engine.DefaultScalarOption()
		applyIndexedStored(&lexOpt.Scalar.Indexed, &lexOpt.Scalar.Stored, f)
	case "float":
		lexOpt.Kind = engine.LexicalFloat
		lexOpt.Scalar = engine.DefaultScalarOption()
		applyIndexedStored(&lexOpt.Scalar.Indexed, &lexOpt.Scalar.Stored, f)
	case "bool":
		lexOpt.Kind = engine.LexicalBool
		lexOpt.Scalar = engine.DefaultScalarOption()
		applyIndexedStored(&lexOpt.Scalar.Indexed, &lexOpt.Scalar.Stored, f)
	case "datetime":
		lexOpt.Kind = engine.LexicalDateTime
		lexOpt.Scalar = engine.DefaultScalarOption()
		applyIndexedStored(&lexOpt.Scalar.Indexed, &lexOpt.Scalar.Stored, f)
	case "geo":
		lexOpt.Kind = engine.LexicalGeo
		lexOpt.Scalar = engine.DefaultScalarOption()
		applyIndexedStored(&lexOpt.Scalar.Indexed, &lexOpt.Scalar.Stored, f)
	case "bytes":
		lexOpt.Kind = engine.LexicalBytes
		lexOpt.Bytes = engine.DefaultBytesOption()
		if f.Stored != nil {
			lexOpt.Bytes.Stored = *f.Stored
		}
	default:
		return engine.FieldOption{}, engineerr.InvalidArgument(engineerr.CodeBadSchema,
			"unknown lexical field kind \""+f.Kind+"\"")
	}
	return engine.Lexical(lexOpt), nil
}

func applyIndexedStored(indexed, stored *bool, f SchemaField) {
	if f.Indexed != nil {
		*indexed = *f.Indexed
	}
	if f.Stored != nil {
		*stored = *f.Stored
	}
}

func parseDistanceMetric(s string) (engine.DistanceMetric, error) {
	switch strings.ToLower(s) {
	case "", "cosine":
		return engine.Cosine, nil
	case "euclidean":
		return engine.Euclidean, nil
	case "dot_product", "dotproduct", "dot":
		return engine.DotProduct, nil
	case "manhattan":
		return engine.Manhattan, nil
	case "angular":
		return engine.Angular, nil
	default:
		return 0, engineerr.InvalidArgument(engineerr.CodeBadSchema, "unknown distance metric \""+s+"\"")
	}
}
