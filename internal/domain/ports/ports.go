// Package ports declares the capability interfaces the share index core
// depends on but does not implement. This one file holds every capability,
// no implementation — concrete adapters live outside this module's hard-part
// scope (peer transport, media tag readers, filesystem move helpers,
// configuration sources) and are supplied by the surrounding application.
package ports

import (
	"context"
	"time"
)

// MediaAttribute is one typed attribute extracted from an audio/video file,
// e.g. {Name: "BitRate", Value: 320}.
type MediaAttribute struct {
	Name  string
	Value int
}

// MediaProbe extracts attributes (length, bit rate, sample rate, bit depth)
// from an audio/video file. Implementations may fail for any reason; callers
// treat a probe failure as "no attributes", never as a fatal error.
type MediaProbe interface {
	Probe(path string) ([]MediaAttribute, error)
}

// PeerTransport is the out-of-scope Soulseek wire client. It supplies peer
// endpoints for downloads and calls back into the share index to answer
// incoming search requests.
type PeerTransport interface {
	ConnectToUser(ctx context.Context, name string) (PeerEndpoint, error)
}

// PeerEndpoint represents a connected remote peer.
type PeerEndpoint interface {
	Download(ctx context.Context, remoteFilename string, onProgress func(transferred, total int64)) error
}

// IncompleteFileIO moves a downloaded file from the incomplete directory to
// its final destination once a transfer completes. Not part of this core;
// contract-only.
type IncompleteFileIO interface {
	MoveToComplete(ctx context.Context, incompletePath, finalPath string) error
}

// OptionsSource produces the operator-declared configuration this core acts
// on, and publishes change notifications when it is edited.
type OptionsSource interface {
	ShareRoots() []string
	Filters() []string
	CacheMode() CacheMode
	ScannerWorkers() int
	InstanceName() string
	OnChange(func()) (unsubscribe func())
}

// CacheMode selects whether the repository lives on disk or in memory.
type CacheMode int

const (
	// CacheModeDisk keeps the primary repository as a durable file.
	CacheModeDisk CacheMode = iota
	// CacheModeMemory keeps the primary repository in a `:memory:` SQLite
	// database, restored from and backed up to an on-disk copy.
	CacheModeMemory
)

func (m CacheMode) String() string {
	if m == CacheModeMemory {
		return "memory"
	}
	return "disk"
}

// Clock exists purely so tests can control the "now" used for scan
// timestamps without depending on wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
