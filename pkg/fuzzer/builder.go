package fuzzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
)

// placeholderRe matches any path template placeholder left after substitution.
var placeholderRe = regexp.MustCompile(`\{[^{}]*\}`)

// maxResponseBody bounds how much of a response is read back for validation.
const maxResponseBody = 1 << 20

// Result carries what came back for one payload.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// BuildRequest assembles a concrete HTTP request for the payload against the
// base URL. Construction errors (unresolved placeholders, malformed joins)
// are request-local: the payload is abandoned, the run continues.
func BuildRequest(ctx context.Context, base *url.URL, p *Payload) (*http.Request, error) {
	// Substitution keeps a decoded and an escaped form in lockstep: URL.Path
	// holds decoded text, so escaping the value there would get re-escaped on
	// the wire. Placeholder leftovers are detected on the escaped form, where
	// braces inside generated values (JSON-rendered object params) cannot be
	// mistaken for template placeholders.
	path := p.Path
	escaped := p.Path
	for _, pp := range p.PathParams {
		placeholder := "{" + pp.Name + "}"
		path = strings.ReplaceAll(path, placeholder, pp.Value)
		escaped = strings.ReplaceAll(escaped, placeholder, url.PathEscape(pp.Value))
	}
	if left := placeholderRe.FindString(escaped); left != "" {
		return nil, fmt.Errorf("unresolved path placeholder %s in %s", left, p.Path)
	}

	target, err := joinURL(base, path, escaped)
	if err != nil {
		return nil, err
	}

	query := target.Query()
	for _, q := range p.Query {
		query.Add(q.Name, q.Value)
	}
	target.RawQuery = query.Encode()

	var body io.Reader
	if p.Body != nil {
		encoded, err := protojson.Marshal(p.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", p.Method, target, err)
	}

	if p.Body != nil {
		ct := p.ContentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	for _, h := range p.Headers {
		req.Header.Set(h.Name, h.Value)
	}
	for _, c := range p.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	return req, nil
}

// joinURL appends the substituted operation path to the base URL, keeping any
// path segments the base already carries. path and escaped must be the same
// path in decoded and percent-escaped form, so RawPath stays a valid encoding
// of Path and URL.String never escapes the values a second time.
func joinURL(base *url.URL, path, escaped string) (*url.URL, error) {
	if base == nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q lacks scheme or host", base)
	}
	joined := *base
	joined.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	joined.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + "/" + strings.TrimPrefix(escaped, "/")
	if joined.RawPath == joined.Path {
		joined.RawPath = ""
	}
	return &joined, nil
}

// readResult drains the response into a Result, bounding the body read so a
// misbehaving endpoint cannot balloon memory.
func readResult(res *http.Response) *Result {
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		body = []byte(fmt.Sprintf("<body read failed: %v>", err))
	}
	return &Result{Status: res.StatusCode, Header: res.Header, Body: body}
}
