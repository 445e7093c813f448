package fuzzer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/specfuzz/specfuzz/internal/unstructured"
)

// Param is one generated name/value pair for a single request location.
type Param struct {
	Name  string
	Value string
}

// Payload is one fully materialized, randomized request for one operation.
// It is built fresh per operation per pass and discarded after validation.
type Payload struct {
	Method string
	Path   string

	Query      []Param
	PathParams []Param
	Headers    []Param
	Cookies    []Param

	// Body is the zero-or-one generated JSON body. ContentType carries the
	// media type the body was realized for.
	Body        *structpb.Value
	ContentType string

	// Responses is the operation's declared status-code set, kept for
	// validation of whatever comes back.
	Responses openapi3.Responses
}

// HasBody reports whether the payload carries a request body.
func (p *Payload) HasBody() bool {
	return p.Body != nil
}

// NewPayload generates one payload for the operation, drawing all randomness
// from src. Operation-level parameters override path-item parameters of the
// same name. A recoverable error scoped to this operation is returned when a
// declared schema cannot be realized.
func NewPayload(method, path string, item *openapi3.PathItem, op *openapi3.Operation, src *unstructured.Source) (*Payload, error) {
	gen := NewGenerator(src)
	p := &Payload{Method: method, Path: path, Responses: op.Responses}

	var itemParams openapi3.Parameters
	if item != nil {
		itemParams = item.Parameters
	}

	// Last write wins within one location, operation level after path level.
	merged := map[string]*openapi3.Parameter{}
	for _, ref := range append(append(openapi3.Parameters{}, itemParams...), op.Parameters...) {
		if ref == nil || ref.Value == nil {
			continue
		}
		merged[ref.Value.In+"\x00"+ref.Value.Name] = ref.Value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		param := merged[k]
		value, err := paramValue(gen, src, param)
		if err != nil {
			return nil, fmt.Errorf("parameter %q in %s: %w", param.Name, param.In, err)
		}

		pair := Param{Name: param.Name, Value: value}
		switch param.In {
		case openapi3.ParameterInQuery:
			p.Query = append(p.Query, pair)
		case openapi3.ParameterInPath:
			p.PathParams = append(p.PathParams, pair)
		case openapi3.ParameterInHeader:
			p.Headers = append(p.Headers, pair)
		case openapi3.ParameterInCookie:
			p.Cookies = append(p.Cookies, pair)
		}
	}

	mt, schema := bodySchema(op)
	if schema != nil {
		body, err := gen.Value(schema)
		if err != nil {
			return nil, fmt.Errorf("request body %q: %w", mt, err)
		}
		p.Body = body
		p.ContentType = mt
	}

	return p, nil
}

// paramValue realizes a parameter value through its own declared schema, so
// typed parameters (integers, booleans, arrays) are respected. Parameters
// without a schema fall back to a random string.
func paramValue(gen *Generator, src *unstructured.Source, param *openapi3.Parameter) (string, error) {
	if param.Schema == nil || param.Schema.Value == nil {
		return src.String(maxStringLen), nil
	}
	v, err := gen.Value(param.Schema)
	if err != nil {
		return "", err
	}
	return stringValue(v), nil
}

// stringValue renders a generated value for a query/path/header/cookie slot.
func stringValue(v *structpb.Value) string {
	switch v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(v.GetBoolValue())
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(v.GetNumberValue(), 'f', -1, 64)
	case *structpb.Value_StringValue:
		return v.GetStringValue()
	case *structpb.Value_ListValue:
		values := v.GetListValue().GetValues()
		parts := make([]string, 0, len(values))
		for _, e := range values {
			parts = append(parts, stringValue(e))
		}
		return strings.Join(parts, ",")
	case *structpb.Value_StructValue:
		encoded, err := protojson.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return ""
	}
}

// bodySchema picks the media type whose schema the payload realizes. Several
// media types may be declared; exactly one body is generated, for the
// lexicographically first JSON media type, so the choice is deterministic.
// Operations declaring only non-JSON bodies get no body at all.
func bodySchema(op *openapi3.Operation) (string, *openapi3.SchemaRef) {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return "", nil
	}

	var types []string
	for mt, media := range op.RequestBody.Value.Content {
		if media == nil || media.Schema == nil {
			continue
		}
		if strings.Contains(strings.ToLower(mt), "json") {
			types = append(types, mt)
		}
	}
	if len(types) == 0 {
		return "", nil
	}
	sort.Strings(types)

	mt := types[0]
	return mt, op.RequestBody.Value.Content[mt].Schema
}
