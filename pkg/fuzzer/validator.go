package fuzzer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/valyala/fastjson"
)

// Anomaly is the fuzzer's primary finding: a response whose status code the
// operation never declared. It is a signal, not an error, and never aborts
// the run.
type Anomaly struct {
	Method   string
	Path     string
	Status   int
	Declared []string
	Body     string
}

func (a *Anomaly) String() string {
	return fmt.Sprintf("%s %s returned undeclared status %d (declared %v): %s",
		a.Method, a.Path, a.Status, a.Declared, a.Body)
}

// Validate compares the actual status code against the payload's declared
// response set and returns an Anomaly on mismatch, nil otherwise. A declared
// "default" response accepts any status, and class patterns like "5XX" cover
// their whole range.
func Validate(res *Result, p *Payload, maxSnippet int) *Anomaly {
	if statusDeclared(p.Responses, res.Status) {
		return nil
	}
	return &Anomaly{
		Method:   p.Method,
		Path:     p.Path,
		Status:   res.Status,
		Declared: declaredCodes(p.Responses),
		Body:     snippet(res.Body, maxSnippet),
	}
}

func statusDeclared(responses openapi3.Responses, status int) bool {
	code := strconv.Itoa(status)
	if _, ok := responses[code]; ok {
		return true
	}
	if len(code) == 3 {
		if _, ok := responses[code[:1]+"XX"]; ok {
			return true
		}
	}
	_, ok := responses["default"]
	return ok
}

func declaredCodes(responses openapi3.Responses) []string {
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// snippet renders a bounded slice of the response body for diagnostics.
// JSON bodies are re-marshaled compactly, anything else is truncated raw.
func snippet(body []byte, max int) string {
	b := bytes.TrimSpace(body)
	if v, err := fastjson.ParseBytes(b); err == nil {
		b = v.MarshalTo(nil)
	}
	if max > 0 && len(b) > max {
		b = append(b[:max:max], "..."...)
	}
	return string(b)
}
