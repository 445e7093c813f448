package fuzzer

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stats is a snapshot of run counters.
type Stats struct {
	Requests        int64
	OK              int64
	Anomalies       int64
	TransportErrors int64
	Skipped         int64
}

// AnomalyRecord is one line of the machine-readable anomaly report.
type AnomalyRecord struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	Time     time.Time `json:"time"`
	Method   string    `json:"method"`
	Path     string    `json:"path"`
	Status   int       `json:"status"`
	Declared []string  `json:"declared"`
	Body     string    `json:"body,omitempty"`
}

// Reporter fans validation outcomes out to the console and, optionally, to a
// JSON-lines report. Safe for concurrent use by all fuzz workers.
type Reporter struct {
	runID string

	mu sync.Mutex
	w  io.Writer // JSONL sink, may be nil

	requests        atomic.Int64
	ok              atomic.Int64
	anomalies       atomic.Int64
	transportErrors atomic.Int64
	skipped         atomic.Int64
}

// NewReporter returns a Reporter. w receives one JSON record per anomaly and
// may be nil to disable the structured report.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{runID: uuid.NewString(), w: w}
}

// RunID identifies this run in every anomaly record.
func (r *Reporter) RunID() string {
	return r.runID
}

// OK records a response whose status was declared.
func (r *Reporter) OK(p *Payload, status int) {
	r.requests.Add(1)
	r.ok.Add(1)
	fmt.Print(".")
}

// Anomaly surfaces an undeclared status. Always printed, never suppressed.
func (r *Reporter) Anomaly(a *Anomaly) {
	r.requests.Add(1)
	r.anomalies.Add(1)
	log.Printf("anomaly: %s", a)

	if r.w == nil {
		return
	}
	rec := AnomalyRecord{
		ID:       uuid.NewString(),
		RunID:    r.runID,
		Time:     time.Now().UTC(),
		Method:   a.Method,
		Path:     a.Path,
		Status:   a.Status,
		Declared: a.Declared,
		Body:     a.Body,
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		log.Printf("encode anomaly record: %v", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(encoded, '\n')); err != nil {
		log.Printf("write anomaly record: %v", err)
	}
}

// TransportError records a network-level failure for one payload.
func (r *Reporter) TransportError(p *Payload, err error) {
	r.requests.Add(1)
	r.transportErrors.Add(1)
	log.Printf("send %s %s: %v", p.Method, p.Path, err)
}

// RequestError records a payload that could not be assembled into a request.
func (r *Reporter) RequestError(p *Payload, err error) {
	r.requests.Add(1)
	r.transportErrors.Add(1)
	log.Printf("build %s %s: %v", p.Method, p.Path, err)
}

// Skip records an operation whose payload generation failed for this pass.
func (r *Reporter) Skip(method, path string, err error) {
	r.skipped.Add(1)
	log.Printf("skip %s %s: %v", method, path, err)
}

// SkipRepeat counts a skip whose first occurrence was already logged.
func (r *Reporter) SkipRepeat() {
	r.skipped.Add(1)
}

// PassDone prints the per-pass summary.
func (r *Reporter) PassDone(pass int) {
	s := r.Stats()
	fmt.Println()
	log.Printf("pass %d: %d requests, %d ok, %d anomalies, %d transport errors, %d skipped",
		pass, s.Requests, s.OK, s.Anomalies, s.TransportErrors, s.Skipped)
}

// Stats returns a snapshot of the run counters.
func (r *Reporter) Stats() Stats {
	return Stats{
		Requests:        r.requests.Load(),
		OK:              r.ok.Load(),
		Anomalies:       r.anomalies.Load(),
		TransportErrors: r.transportErrors.Load(),
		Skipped:         r.skipped.Load(),
	}
}
