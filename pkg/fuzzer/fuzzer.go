// Package fuzzer drives randomized, schema-conforming requests against every
// operation of an OpenAPI description and flags responses whose status code
// the spec never declared.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/time/rate"

	"github.com/specfuzz/specfuzz/internal/unstructured"
)

// operationsOrder fixes the method visiting order on every path.
var operationsOrder = []string{
	http.MethodOptions,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodGet,
	http.MethodDelete,
	http.MethodTrace,
}

// Fuzzer walks every path/operation pair of a loaded spec, generating one
// fresh payload per operation per pass.
type Fuzzer struct {
	openAPI  *openapi3.Swagger
	base     *url.URL
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	reporter *Reporter
	bearer   string

	sortedPaths []string
	rng         *rand.Rand

	report *os.File

	skipMu  sync.Mutex
	skipped map[string]bool
}

// New loads the spec, resolves auth, and prepares a Fuzzer. Every error here
// is fatal: nothing has been sent yet and the run cannot start.
func New(specPath, baseURL string, cfg Config) (*Fuzzer, error) {
	openAPI, err := openapi3.NewSwaggerLoader().LoadSwaggerFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load spec %s: %w", specPath, err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q lacks scheme or host", baseURL)
	}

	cfg = cfg.normalized()

	f := &Fuzzer{
		openAPI: openAPI,
		base:    base,
		cfg:     cfg,
		client:  newHTTPClient(cfg.timeout(), cfg.Insecure),
		skipped: map[string]bool{},
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f.rng = rand.New(rand.NewSource(seed))

	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	if cfg.ReportPath != "" {
		f.report, err = os.Create(cfg.ReportPath)
		if err != nil {
			return nil, fmt.Errorf("create report: %w", err)
		}
		f.reporter = NewReporter(f.report)
	} else {
		f.reporter = NewReporter(nil)
	}

	if cfg.TokenPath != "" {
		token, err := LoadToken(cfg.TokenPath)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.bearer, err = token.Fetch(f.client)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	f.sortedPaths = make([]string, 0, len(openAPI.Paths))
	for path := range openAPI.Paths {
		f.sortedPaths = append(f.sortedPaths, path)
	}
	sort.Strings(f.sortedPaths)

	return f, nil
}

// Close releases the report file, if any.
func (f *Fuzzer) Close() error {
	if f.report == nil {
		return nil
	}
	return f.report.Close()
}

// Stats returns a snapshot of the run counters.
func (f *Fuzzer) Stats() Stats {
	return f.reporter.Stats()
}

// workItem is one operation scheduled for one pass, with its own seed so
// workers never share randomness.
type workItem struct {
	method string
	path   string
	item   *openapi3.PathItem
	op     *openapi3.Operation
	seed   int64
}

// Fuzz traverses the whole spec repeatedly, one fresh payload per operation
// per pass, until the pass budget runs out or ctx is cancelled. Payload-local
// failures never escape; the only returned errors are context ones.
func (f *Fuzzer) Fuzz(ctx context.Context) error {
	if f.openAPI.Info != nil && f.openAPI.Info.Title != "" {
		log.Printf("fuzzing %q at %s", f.openAPI.Info.Title, f.base)
	} else {
		log.Printf("fuzzing %s", f.base)
	}

	for pass := 1; f.cfg.MaxPasses == 0 || pass <= f.cfg.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.runPass(ctx); err != nil {
			return err
		}
		f.reporter.PassDone(pass)
	}
	return nil
}

// runPass walks every sorted path and declared operation once, fanning the
// work out to the configured number of workers.
func (f *Fuzzer) runPass(ctx context.Context) error {
	items := make(chan workItem)

	var wg sync.WaitGroup
	for i := 0; i < f.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range items {
				f.fuzzOne(ctx, it)
			}
		}()
	}

produce:
	for _, path := range f.sortedPaths {
		item := f.openAPI.Paths[path]
		if item == nil {
			continue
		}
		for _, method := range operationsOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			it := workItem{method: method, path: path, item: item, op: op, seed: f.rng.Int63()}
			select {
			case items <- it:
			case <-ctx.Done():
				break produce
			}
		}
	}
	close(items)
	wg.Wait()

	return ctx.Err()
}

// fuzzOne generates, sends and validates a single payload. Every failure in
// here is local to this payload.
func (f *Fuzzer) fuzzOne(ctx context.Context, it workItem) {
	src := unstructured.New(it.seed, unstructured.DefaultSize)
	payload, err := NewPayload(it.method, it.path, it.item, it.op, src)
	if err != nil {
		f.skip(it.method, it.path, err)
		return
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	req, err := BuildRequest(ctx, f.base, payload)
	if err != nil {
		f.reporter.RequestError(payload, err)
		return
	}
	for name, value := range f.cfg.Headers {
		req.Header.Set(name, value)
	}
	if f.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+f.bearer)
	}

	res, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		f.reporter.TransportError(payload, err)
		return
	}

	if a := Validate(readResult(res), payload, f.cfg.MaxBodySnippet); a != nil {
		f.reporter.Anomaly(a)
	} else {
		f.reporter.OK(payload, res.StatusCode)
	}
}

// skip logs an unfuzzable operation once per run instead of once per pass.
func (f *Fuzzer) skip(method, path string, err error) {
	key := method + " " + path

	f.skipMu.Lock()
	logged := f.skipped[key]
	f.skipped[key] = true
	f.skipMu.Unlock()

	if !logged {
		f.reporter.Skip(method, path, err)
	} else {
		f.reporter.SkipRepeat()
	}
}
