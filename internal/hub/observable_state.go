package hub

// SharedFileCacheState is the scanner's observable progress state, per
// spec.md §3/§6. Filling and Filled are mutually exclusive at steady state.
type SharedFileCacheState struct {
	Filling             bool
	Filled              bool
	Faulted             bool
	Cancelled           bool
	FillProgress        float64
	Directories         int
	Files               int
	ExcludedDirectories int
}

// ShareState is the service's observable state, derived from
// SharedFileCacheState plus configuration-change signals, per spec.md §3/§6.
type ShareState struct {
	Ready        bool
	Scanning     bool
	Faulted      bool
	Cancelled    bool
	ScanPending  bool
	ScanProgress float64
	Directories  int
	Files        int
}

// NewSharedFileCacheState builds a ManagedState seeded with the zero state.
func NewSharedFileCacheState() *ManagedState[SharedFileCacheState] {
	return NewManagedState(SharedFileCacheState{}, nil)
}

// NewShareState builds a ManagedState seeded with the zero state.
func NewShareState() *ManagedState[ShareState] {
	return NewManagedState(ShareState{}, nil)
}
