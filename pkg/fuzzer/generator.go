package fuzzer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/specfuzz/specfuzz/internal/unstructured"
)

// Array bounds used when the schema leaves them unspecified.
const (
	defaultMinItems = 1
	defaultMaxItems = 10
)

// maxStringLen bounds generated string values.
const maxStringLen = 32

// defaultMaxDepth bounds recursion over schema graphs. Specs may carry
// reference cycles, so generation has to terminate without trusting the
// schema shape.
const defaultMaxDepth = 32

var (
	// ErrUnsupportedSchema marks schema kinds generation cannot realize
	// (oneOf, anyOf, allOf, untyped nodes). The failure is scoped to one
	// generation call; callers skip the operation and keep fuzzing.
	ErrUnsupportedSchema = errors.New("unsupported schema kind")

	// ErrSchemaDepth marks generation aborted by the recursion bound,
	// typically on cyclic schema graphs.
	ErrSchemaDepth = errors.New("schema recursion depth exceeded")
)

// Generator turns schema nodes into concrete values, drawing randomness from
// a finite byte source. One Generator serves exactly one payload.
type Generator struct {
	src      *unstructured.Source
	maxDepth int
}

// NewGenerator returns a Generator backed by src.
func NewGenerator(src *unstructured.Source) *Generator {
	return &Generator{src: src, maxDepth: defaultMaxDepth}
}

// Value realizes one concrete value for the given schema node. No semantic
// constraints (format, min/max, enum) are honored; synthesis is uniform.
func (g *Generator) Value(ref *openapi3.SchemaRef) (*structpb.Value, error) {
	return g.value(ref, 0)
}

func (g *Generator) value(ref *openapi3.SchemaRef, depth int) (*structpb.Value, error) {
	if depth > g.maxDepth {
		return nil, fmt.Errorf("depth %d: %w", depth, ErrSchemaDepth)
	}
	if ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("missing schema node: %w", ErrUnsupportedSchema)
	}

	schema := ref.Value
	switch {
	case len(schema.OneOf) > 0:
		return nil, fmt.Errorf("oneOf: %w", ErrUnsupportedSchema)
	case len(schema.AnyOf) > 0:
		return nil, fmt.Errorf("anyOf: %w", ErrUnsupportedSchema)
	case len(schema.AllOf) > 0:
		return nil, fmt.Errorf("allOf: %w", ErrUnsupportedSchema)
	}

	switch schema.Type {
	case "string":
		return structpb.NewStringValue(g.src.String(maxStringLen)), nil
	case "number":
		return structpb.NewNumberValue(g.src.Float64()), nil
	case "integer":
		return structpb.NewNumberValue(float64(g.src.Int64())), nil
	case "boolean":
		return structpb.NewBoolValue(g.src.Bool()), nil
	case "object":
		return g.object(schema, depth)
	case "array":
		return g.array(schema, depth)
	case "":
		return nil, fmt.Errorf("untyped schema node: %w", ErrUnsupportedSchema)
	default:
		return nil, fmt.Errorf("type %q: %w", schema.Type, ErrUnsupportedSchema)
	}
}

// object emits exactly the declared property set, nothing more. kin-openapi
// stores properties in a map, so names are visited in sorted order to keep
// generation deterministic for a fixed source.
func (g *Generator) object(schema *openapi3.Schema, depth int) (*structpb.Value, error) {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(map[string]*structpb.Value, len(names))
	for _, name := range names {
		v, err := g.value(schema.Properties[name], depth+1)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		fields[name] = v
	}

	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

func (g *Generator) array(schema *openapi3.Schema, depth int) (*structpb.Value, error) {
	min := int(schema.MinItems)
	if min == 0 {
		min = defaultMinItems
	}
	max := defaultMaxItems
	if schema.MaxItems != nil {
		max = int(*schema.MaxItems)
	}
	if max < min {
		max = min
	}

	n := min + g.src.Intn(max-min+1)
	values := make([]*structpb.Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := g.value(schema.Items, depth+1)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		values = append(values, v)
	}

	return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
}
