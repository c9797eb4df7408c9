package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// MockSource implements cache.Source with programmable results.
type MockSource struct {
	err     error
	gate    chan struct{}
	started chan struct{}
	ctxErrs []error
	records []types.RawSystemRecord
	calls   int
	mu      sync.Mutex
}

// NewMockSource creates a MockSource that returns records.
func NewMockSource(records []types.RawSystemRecord) *MockSource {
	return &MockSource{records: records, started: make(chan struct{}, 64)}
}

// SetRecords replaces the records returned by later calls.
func (m *MockSource) SetRecords(records []types.RawSystemRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.err = nil
}

// SetError makes later calls fail with err.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes later calls wait until Release is called.
func (m *MockSource) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Release unblocks every waiting call.
func (m *MockSource) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Started is signalled once per call as soon as the call begins.
func (m *MockSource) Started() <-chan struct{} {
	return m.started
}

// FetchAll implements cache.Source.
func (m *MockSource) FetchAll(ctx context.Context) ([]types.RawSystemRecord, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

// Calls returns how many times FetchAll was invoked.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ContextErrors returns ctx.Err() as observed at the end of each call.
func (m *MockSource) ContextErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := make([]error, len(m.ctxErrs))
	copy(errs, m.ctxErrs)
	return errs
}

// RecordingObserver implements cache.Observer by counting events.
type RecordingObserver struct {
	Hits      int
	Misses    int
	Successes int
	Failures  int
	Records   int
	mu        sync.Mutex
}

// CacheHit implements cache.Observer.
func (o *RecordingObserver) CacheHit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Hits++
}

// CacheMiss implements cache.Observer.
func (o *RecordingObserver) CacheMiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Misses++
}

// RefreshSucceeded implements cache.Observer.
func (o *RecordingObserver) RefreshSucceeded(records int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Successes++
	o.Records = records
}

// RefreshFailed implements cache.Observer.
func (o *RecordingObserver) RefreshFailed(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Failures++
}

// Snapshot returns a copy of the counters.
func (o *RecordingObserver) Snapshot() (hits, misses, successes, failures int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Hits, o.Misses, o.Successes, o.Failures
}
