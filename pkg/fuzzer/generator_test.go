package fuzzer

import (
	"math"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/specfuzz/specfuzz/internal/unstructured"
)

func schemaRef(s *openapi3.Schema) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: s}
}

func newTestGenerator(seed int64) *Generator {
	return NewGenerator(unstructured.New(seed, unstructured.DefaultSize))
}

func TestGeneratePrimitives(t *testing.T) {
	g := newTestGenerator(1)

	v, err := g.Value(schemaRef(&openapi3.Schema{Type: "string"}))
	require.NoError(t, err)
	_, ok := v.GetKind().(*structpb.Value_StringValue)
	assert.True(t, ok, "expected string kind")

	v, err = g.Value(schemaRef(&openapi3.Schema{Type: "number"}))
	require.NoError(t, err)
	require.IsType(t, &structpb.Value_NumberValue{}, v.GetKind())
	assert.False(t, math.IsNaN(v.GetNumberValue()))
	assert.False(t, math.IsInf(v.GetNumberValue(), 0))

	v, err = g.Value(schemaRef(&openapi3.Schema{Type: "integer"}))
	require.NoError(t, err)
	require.IsType(t, &structpb.Value_NumberValue{}, v.GetKind())

	v, err = g.Value(schemaRef(&openapi3.Schema{Type: "boolean"}))
	require.NoError(t, err)
	require.IsType(t, &structpb.Value_BoolValue{}, v.GetKind())
}

func TestGenerateArrayLengthBounds(t *testing.T) {
	maxItems := uint64(5)
	schema := &openapi3.Schema{
		Type:     "array",
		MinItems: 2,
		MaxItems: &maxItems,
		Items:    schemaRef(&openapi3.Schema{Type: "integer"}),
	}

	for seed := int64(0); seed < 50; seed++ {
		g := newTestGenerator(seed)
		v, err := g.Value(schemaRef(schema))
		require.NoError(t, err)

		n := len(v.GetListValue().GetValues())
		require.GreaterOrEqual(t, n, 2, "seed %d", seed)
		require.LessOrEqual(t, n, 5, "seed %d", seed)
	}
}

func TestGenerateArrayDefaultBounds(t *testing.T) {
	schema := &openapi3.Schema{
		Type:  "array",
		Items: schemaRef(&openapi3.Schema{Type: "boolean"}),
	}

	for seed := int64(0); seed < 50; seed++ {
		g := newTestGenerator(seed)
		v, err := g.Value(schemaRef(schema))
		require.NoError(t, err)

		n := len(v.GetListValue().GetValues())
		require.GreaterOrEqual(t, n, 1, "seed %d", seed)
		require.LessOrEqual(t, n, 10, "seed %d", seed)
	}
}

func TestGenerateObjectExactKeys(t *testing.T) {
	schema := &openapi3.Schema{
		Type: "object",
		Properties: map[string]*openapi3.SchemaRef{
			"name":   {Value: &openapi3.Schema{Type: "string"}},
			"age":    {Value: &openapi3.Schema{Type: "integer"}},
			"active": {Value: &openapi3.Schema{Type: "boolean"}},
		},
	}

	for seed := int64(0); seed < 20; seed++ {
		g := newTestGenerator(seed)
		v, err := g.Value(schemaRef(schema))
		require.NoError(t, err)

		fields := v.GetStructValue().GetFields()
		require.Len(t, fields, 3, "seed %d", seed)
		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "age")
		assert.Contains(t, fields, "active")
	}
}

func TestGenerateNestedStructure(t *testing.T) {
	schema := &openapi3.Schema{
		Type: "object",
		Properties: map[string]*openapi3.SchemaRef{
			"tags": {Value: &openapi3.Schema{
				Type:  "array",
				Items: schemaRef(&openapi3.Schema{Type: "string"}),
			}},
			"owner": {Value: &openapi3.Schema{
				Type: "object",
				Properties: map[string]*openapi3.SchemaRef{
					"id": {Value: &openapi3.Schema{Type: "integer"}},
				},
			}},
		},
	}

	g := newTestGenerator(3)
	v, err := g.Value(schemaRef(schema))
	require.NoError(t, err)

	fields := v.GetStructValue().GetFields()
	require.Len(t, fields, 2)
	require.NotNil(t, fields["tags"].GetListValue())
	owner := fields["owner"].GetStructValue()
	require.NotNil(t, owner)
	require.Contains(t, owner.GetFields(), "id")
}

func TestGenerateUnsupportedKinds(t *testing.T) {
	str := schemaRef(&openapi3.Schema{Type: "string"})

	cases := []struct {
		name   string
		schema *openapi3.Schema
	}{
		{"oneOf", &openapi3.Schema{OneOf: openapi3.SchemaRefs{str}}},
		{"anyOf", &openapi3.Schema{AnyOf: openapi3.SchemaRefs{str}}},
		{"allOf", &openapi3.Schema{AllOf: openapi3.SchemaRefs{str}}},
		{"untyped", &openapi3.Schema{}},
		{"unknown type", &openapi3.Schema{Type: "file"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGenerator(1)
			_, err := g.Value(schemaRef(tc.schema))
			require.ErrorIs(t, err, ErrUnsupportedSchema)
		})
	}
}

func TestGenerateUnsupportedInsideObject(t *testing.T) {
	schema := &openapi3.Schema{
		Type: "object",
		Properties: map[string]*openapi3.SchemaRef{
			"ok":  {Value: &openapi3.Schema{Type: "string"}},
			"bad": {Value: &openapi3.Schema{OneOf: openapi3.SchemaRefs{schemaRef(&openapi3.Schema{Type: "string"})}}},
		},
	}

	g := newTestGenerator(1)
	_, err := g.Value(schemaRef(schema))
	require.ErrorIs(t, err, ErrUnsupportedSchema)
	assert.Contains(t, err.Error(), "bad")
}

func TestGenerateMissingSchema(t *testing.T) {
	g := newTestGenerator(1)

	_, err := g.Value(nil)
	require.ErrorIs(t, err, ErrUnsupportedSchema)

	_, err = g.Value(&openapi3.SchemaRef{})
	require.ErrorIs(t, err, ErrUnsupportedSchema)
}

// Schemas may form reference cycles; generation has to terminate with a
// scoped error instead of recursing forever.
func TestGenerateCycleTerminates(t *testing.T) {
	self := &openapi3.Schema{Type: "object"}
	self.Properties = map[string]*openapi3.SchemaRef{
		"child": {Value: self},
	}

	g := newTestGenerator(1)
	_, err := g.Value(schemaRef(self))
	require.ErrorIs(t, err, ErrSchemaDepth)
}

func TestGenerateMutualCycleTerminates(t *testing.T) {
	a := &openapi3.Schema{Type: "object"}
	b := &openapi3.Schema{Type: "array"}
	a.Properties = map[string]*openapi3.SchemaRef{"items": {Value: b}}
	b.Items = &openapi3.SchemaRef{Value: a}

	g := newTestGenerator(1)
	_, err := g.Value(schemaRef(a))
	require.ErrorIs(t, err, ErrSchemaDepth)
}

func TestGenerateDeterministic(t *testing.T) {
	schema := &openapi3.Schema{
		Type: "object",
		Properties: map[string]*openapi3.SchemaRef{
			"name": {Value: &openapi3.Schema{Type: "string"}},
			"ids": {Value: &openapi3.Schema{
				Type:  "array",
				Items: schemaRef(&openapi3.Schema{Type: "integer"}),
			}},
		},
	}

	v1, err := newTestGenerator(7).Value(schemaRef(schema))
	require.NoError(t, err)
	v2, err := newTestGenerator(7).Value(schemaRef(schema))
	require.NoError(t, err)

	assert.True(t, proto.Equal(v1, v2), "same seed must generate the same value")
}
