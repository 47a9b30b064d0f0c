// Package testutil provides shared test doubles and assertion helpers for
// share index tests, grounded on the teacher's mock/assert pattern
// (mutex-guarded state, Set* configurators, freestanding Assert* helpers).
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shareindex/peer/internal/domain/ports"
)

// FakeMediaProbe implements ports.MediaProbe, returning configured
// attributes or a configured error for every call, and recording which
// paths were probed.
type FakeMediaProbe struct {
	mu      sync.Mutex
	attrs   []ports.MediaAttribute
	err     error
	probed  []string
	probeFn func(path string) ([]ports.MediaAttribute, error)
}

// NewFakeMediaProbe creates a probe that returns no attributes and no
// error until configured otherwise.
func NewFakeMediaProbe() *FakeMediaProbe {
	return &FakeMediaProbe{}
}

// Probe implements ports.MediaProbe.
func (f *FakeMediaProbe) Probe(path string) ([]ports.MediaAttribute, error) {
	f.mu.Lock()
	f.probed = append(f.probed, path)
	fn := f.probeFn
	attrs, err := f.attrs, f.err
	f.mu.Unlock()

	if fn != nil {
		return fn(path)
	}
	return attrs, err
}

// SetAttributes configures the attributes returned by every future Probe
// call that doesn't go through a custom ProbeFunc.
func (f *FakeMediaProbe) SetAttributes(attrs []ports.MediaAttribute) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs = attrs
}

// SetError configures the error returned by every future Probe call.
func (f *FakeMediaProbe) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetProbeFunc overrides Probe's behavior entirely with fn.
func (f *FakeMediaProbe) SetProbeFunc(fn func(path string) ([]ports.MediaAttribute, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeFn = fn
}

// ProbedPaths returns every path Probe was called with, in call order.
func (f *FakeMediaProbe) ProbedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.probed))
	copy(out, f.probed)
	return out
}

// FakeOptionsSource implements ports.OptionsSource with in-memory,
// mutable configuration and synchronous change notification.
type FakeOptionsSource struct {
	mu             sync.Mutex
	shareRoots     []string
	filters        []string
	cacheMode      ports.CacheMode
	scannerWorkers int
	instanceName   string
	listeners      []func()
}

// NewFakeOptionsSource creates an options source with the given initial
// share roots and a single scanner worker.
func NewFakeOptionsSource(shareRoots ...string) *FakeOptionsSource {
	return &FakeOptionsSource{shareRoots: shareRoots, scannerWorkers: 1, instanceName: "test-instance"}
}

// ShareRoots implements ports.OptionsSource.
func (f *FakeOptionsSource) ShareRoots() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.shareRoots))
	copy(out, f.shareRoots)
	return out
}

// Filters implements ports.OptionsSource.
func (f *FakeOptionsSource) Filters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.filters))
	copy(out, f.filters)
	return out
}

// CacheMode implements ports.OptionsSource.
func (f *FakeOptionsSource) CacheMode() ports.CacheMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cacheMode
}

// ScannerWorkers implements ports.OptionsSource.
func (f *FakeOptionsSource) ScannerWorkers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scannerWorkers
}

// InstanceName implements ports.OptionsSource.
func (f *FakeOptionsSource) InstanceName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instanceName
}

// OnChange implements ports.OptionsSource.
func (f *FakeOptionsSource) OnChange(cb func()) (unsubscribe func()) {
	f.mu.Lock()
	idx := len(f.listeners)
	f.listeners = append(f.listeners, cb)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.listeners) {
			f.listeners[idx] = nil
		}
	}
}

// SetShareRoots replaces the share roots and synchronously notifies every
// registered listener, simulating a live configuration edit.
func (f *FakeOptionsSource) SetShareRoots(roots ...string) {
	f.mu.Lock()
	f.shareRoots = roots
	listeners := make([]func(), len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	for _, cb := range listeners {
		if cb != nil {
			cb()
		}
	}
}

// SetFilters replaces the configured filename filters.
func (f *FakeOptionsSource) SetFilters(filters ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = filters
}

// SetCacheMode replaces the configured cache mode.
func (f *FakeOptionsSource) SetCacheMode(mode ports.CacheMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheMode = mode
}

// FakeClock implements ports.Clock with a caller-controlled, manually
// advanced time, so scan-timestamp ordering tests don't depend on
// wall-clock granularity.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now implements ports.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakePeerEndpoint implements ports.PeerEndpoint, recording every
// download request and reporting progress once, as (0, 0).
type FakePeerEndpoint struct {
	mu        sync.Mutex
	err       error
	downloads []string
}

// Download implements ports.PeerEndpoint.
func (f *FakePeerEndpoint) Download(_ context.Context, remoteFilename string, onProgress func(transferred, total int64)) error {
	f.mu.Lock()
	f.downloads = append(f.downloads, remoteFilename)
	err := f.err
	f.mu.Unlock()

	if onProgress != nil {
		onProgress(0, 0)
	}
	return err
}

// SetError configures the error every future Download call returns.
func (f *FakePeerEndpoint) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Downloads returns every remote filename Download was called with.
func (f *FakePeerEndpoint) Downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.downloads))
	copy(out, f.downloads)
	return out
}

// FakePeerTransport implements ports.PeerTransport over a fixed map of
// usernames to endpoints.
type FakePeerTransport struct {
	mu        sync.Mutex
	endpoints map[string]*FakePeerEndpoint
	err       error
}

// NewFakePeerTransport creates a transport with no known peers.
func NewFakePeerTransport() *FakePeerTransport {
	return &FakePeerTransport{endpoints: make(map[string]*FakePeerEndpoint)}
}

// ConnectToUser implements ports.PeerTransport.
func (f *FakePeerTransport) ConnectToUser(_ context.Context, name string) (ports.PeerEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ep, ok := f.endpoints[name]
	if !ok {
		ep = &FakePeerEndpoint{}
		f.endpoints[name] = ep
	}
	return ep, nil
}

// SetError configures the error every future ConnectToUser call returns.
func (f *FakePeerTransport) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// AssertEqual is a simple equality assertion helper.
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue asserts that a condition is true.
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("%s: expected true, got false", msg)
	}
}

// AssertFalse asserts that a condition is false.
func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	if condition {
		t.Errorf("%s: expected false, got true", msg)
	}
}

// AssertNoError asserts that an error is nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError asserts that an error is not nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}
