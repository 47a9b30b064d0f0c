package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shareindex/peer/internal/domain/ports"
)

func TestFakeMediaProbe_DefaultsToEmpty(t *testing.T) {
	p := NewFakeMediaProbe()

	attrs, err := p.Probe("/music/song.mp3")
	AssertNoError(t, err, "Probe() with no configuration")
	if len(attrs) != 0 {
		t.Errorf("attrs = %v, want empty", attrs)
	}
	if got := p.ProbedPaths(); len(got) != 1 || got[0] != "/music/song.mp3" {
		t.Errorf("ProbedPaths() = %v", got)
	}
}

func TestFakeMediaProbe_SetAttributesAndError(t *testing.T) {
	p := NewFakeMediaProbe()
	p.SetAttributes([]ports.MediaAttribute{{Name: "Year", Value: 2001}})

	attrs, err := p.Probe("/a.flac")
	AssertNoError(t, err, "Probe() after SetAttributes")
	if len(attrs) != 1 || attrs[0].Name != "Year" || attrs[0].Value != 2001 {
		t.Fatalf("attrs = %+v", attrs)
	}

	wantErr := errors.New("probe failed")
	p.SetError(wantErr)
	_, err = p.Probe("/b.flac")
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestFakeMediaProbe_ProbeFuncOverride(t *testing.T) {
	p := NewFakeMediaProbe()
	p.SetProbeFunc(func(path string) ([]ports.MediaAttribute, error) {
		return []ports.MediaAttribute{{Name: "Path", Value: len(path)}}, nil
	})

	attrs, err := p.Probe("/abc")
	AssertNoError(t, err, "Probe() via custom func")
	if len(attrs) != 1 || attrs[0].Value != 4 {
		t.Fatalf("attrs = %+v", attrs)
	}
}

func TestFakeOptionsSource_Defaults(t *testing.T) {
	o := NewFakeOptionsSource("/music", "/videos")

	roots := o.ShareRoots()
	if len(roots) != 2 || roots[0] != "/music" || roots[1] != "/videos" {
		t.Fatalf("ShareRoots() = %v", roots)
	}
	if o.ScannerWorkers() != 1 {
		t.Errorf("ScannerWorkers() = %d, want 1", o.ScannerWorkers())
	}
	if o.CacheMode() != ports.CacheModeDisk {
		t.Errorf("CacheMode() = %v, want disk default", o.CacheMode())
	}
}

func TestFakeOptionsSource_OnChangeFiresOnSetShareRoots(t *testing.T) {
	o := NewFakeOptionsSource("/music")

	calls := 0
	unsubscribe := o.OnChange(func() { calls++ })

	o.SetShareRoots("/music", "/books")
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	unsubscribe()
	o.SetShareRoots("/music")
	if calls != 1 {
		t.Fatalf("calls = %d after unsubscribe, want still 1", calls)
	}
}

func TestFakeOptionsSource_SetFiltersAndCacheMode(t *testing.T) {
	o := NewFakeOptionsSource()
	o.SetFilters(`\.nfo$`)
	o.SetCacheMode(ports.CacheModeMemory)

	if got := o.Filters(); len(got) != 1 || got[0] != `\.nfo$` {
		t.Fatalf("Filters() = %v", got)
	}
	if o.CacheMode() != ports.CacheModeMemory {
		t.Fatalf("CacheMode() = %v, want memory", o.CacheMode())
	}
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(time.Hour)
	if !c.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("Now() after Advance = %v", c.Now())
	}
}

func TestFakePeerTransport_ConnectAndDownload(t *testing.T) {
	transport := NewFakePeerTransport()

	ep, err := transport.ConnectToUser(context.Background(), "alice")
	AssertNoError(t, err, "ConnectToUser()")

	var progressCalls int
	err = ep.Download(context.Background(), `alias\song.mp3`, func(transferred, total int64) { progressCalls++ })
	AssertNoError(t, err, "Download()")
	if progressCalls != 1 {
		t.Errorf("progressCalls = %d, want 1", progressCalls)
	}

	fake := ep.(*FakePeerEndpoint)
	if got := fake.Downloads(); len(got) != 1 || got[0] != `alias\song.mp3` {
		t.Fatalf("Downloads() = %v", got)
	}
}

func TestFakePeerTransport_ConnectError(t *testing.T) {
	transport := NewFakePeerTransport()
	wantErr := errors.New("connection refused")
	transport.SetError(wantErr)

	_, err := transport.ConnectToUser(context.Background(), "alice")
	AssertError(t, err, "ConnectToUser() with configured error")
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestAssertEqual(t *testing.T) {
	mockT := &testing.T{}
	AssertEqual(mockT, 5, 5, "should be equal")
	if mockT.Failed() {
		t.Error("AssertEqual should pass for equal values")
	}
}

func TestAssertTrueFalse(t *testing.T) {
	mockT := &testing.T{}
	AssertTrue(mockT, true, "should be true")
	AssertFalse(mockT, false, "should be false")
	if mockT.Failed() {
		t.Error("AssertTrue/AssertFalse should pass")
	}
}

func TestAssertNoErrorAndError(t *testing.T) {
	mockT := &testing.T{}
	AssertNoError(mockT, nil, "should have no error")
	AssertError(mockT, errors.New("boom"), "should have error")
	if mockT.Failed() {
		t.Error("AssertNoError/AssertError should pass")
	}
}
