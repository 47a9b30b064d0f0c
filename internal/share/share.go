// Package share holds the Share/Host value objects and the path-masking
// scheme that hides local filesystem paths behind per-share aliases and
// hashes, grounded on the teacher's repository/types.go value-object style
// (plain structs, no behaviour beyond construction and simple derivation).
package share

import (
	"crypto/sha1"
	"encoding/base32"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shareindex/peer/internal/domain"
)

// Share is a single operator-declared local directory published to remote
// peers under an alias. See spec.md §3.
type Share struct {
	// Raw is the operator-supplied string this share was parsed from,
	// e.g. "-/m/x" or "[Music]/home/user/music".
	Raw string
	// IsExcluded marks a share that contributes only to the exclusion set:
	// everything under LocalPath is hidden from the index even if it is
	// also reachable through another, non-excluded share.
	IsExcluded bool
	// Alias is the human-readable public name; last path segment of
	// LocalPath unless Raw carries an explicit "[alias]path" prefix.
	Alias string
	// LocalPath is the absolute local filesystem root of the share.
	LocalPath string
	// RemotePath is the on-wire root; canonically equal to Alias (see
	// spec.md §9, Open Question: mask canonicalization).
	RemotePath string
	// Mask is a deterministic 5-character token derived from the stable
	// hash of the parent directory of LocalPath.
	Mask string
}

// ParseShare parses one operator-declared share string into a Share.
//
// Syntax: an optional leading "-" marks the share excluded, then an
// optional "[alias]" prefix overrides the default alias (the last path
// segment), followed by the local path.
func ParseShare(raw string) Share {
	s := raw
	excluded := false
	if strings.HasPrefix(s, "-") {
		excluded = true
		s = s[1:]
	}

	alias := ""
	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end > 0 {
			alias = s[1:end]
			s = s[end+1:]
		}
	}

	localPath := strings.TrimRight(filepath.Clean(s), string(filepath.Separator))
	if alias == "" {
		alias = filepath.Base(localPath)
	}

	parent := filepath.Dir(localPath)
	mask := stableHash5(parent)

	return Share{
		Raw:        raw,
		IsExcluded: excluded,
		Alias:      alias,
		LocalPath:  localPath,
		RemotePath: alias,
		Mask:       mask,
	}
}

// stableHash5 derives a deterministic, stable, 5-printable-character token
// from a path. Stable across runs and processes because it only depends on
// the byte content of the input string.
func stableHash5(parent string) string {
	sum := sha1.Sum([]byte(parent))
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
	if len(enc) < 5 {
		return enc
	}
	return enc[:5]
}

// SortSharesByPathLengthDesc sorts shares so that the share with the longest
// LocalPath comes first — subdirectory shares take precedence over their
// parent share when both cover the same physical directory (spec.md §4.3.2
// step 9, §5 tie-break rule).
func SortSharesByPathLengthDesc(shares []Share) {
	sort.SliceStable(shares, func(i, j int) bool {
		return len(shares[i].LocalPath) > len(shares[j].LocalPath)
	})
}

// ValidateAliases returns ErrAliasCollision if two non-excluded shares
// normalize to the same alias (aliases must be unique, spec.md §3).
func ValidateAliases(shares []Share) error {
	seen := make(map[string]bool, len(shares))
	for _, sh := range shares {
		if sh.IsExcluded {
			continue
		}
		if seen[sh.Alias] {
			return domain.ErrAliasCollision
		}
		seen[sh.Alias] = true
	}
	return nil
}

// OwnerOf returns the share that owns dir — the non-excluded share whose
// LocalPath is a prefix of dir, preferring the longest LocalPath when more
// than one matches (tie-break rule, spec.md §4.3.2 step 9). shares must
// already be sorted by SortSharesByPathLengthDesc.
func OwnerOf(shares []Share, dir string) (Share, bool) {
	for _, sh := range shares {
		if sh.IsExcluded {
			continue
		}
		if dir == sh.LocalPath || strings.HasPrefix(dir, sh.LocalPath+string(filepath.Separator)) {
			return sh, true
		}
	}
	return Share{}, false
}

// IsExcludedPath returns true if dir falls under any excluded share's
// LocalPath.
func IsExcludedPath(shares []Share, dir string) bool {
	for _, sh := range shares {
		if !sh.IsExcluded {
			continue
		}
		if dir == sh.LocalPath || strings.HasPrefix(dir, sh.LocalPath+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// MaskPath builds the full backslash-separated masked filename for a local
// file under share's LocalPath. localFile must be an absolute path residing
// under sh.LocalPath.
func MaskPath(sh Share, localFile string) string {
	rel, err := filepath.Rel(sh.LocalPath, localFile)
	if err != nil {
		rel = strings.TrimPrefix(localFile, sh.LocalPath)
	}
	rel = filepath.ToSlash(rel)
	rel = strings.ReplaceAll(rel, "/", `\`)
	return sh.RemotePath + `\` + rel
}

// Resolve inverts a masked filename back to a local path by finding the
// unique share whose RemotePath is a prefix of masked. Returns
// domain.ErrNoShareMatches if no share matches.
func Resolve(shares []Share, masked string) (string, error) {
	for _, sh := range shares {
		if sh.IsExcluded {
			continue
		}
		prefix := sh.RemotePath + `\`
		if masked == sh.RemotePath || strings.HasPrefix(masked, prefix) {
			rel := strings.TrimPrefix(masked, sh.RemotePath)
			rel = strings.TrimPrefix(rel, `\`)
			rel = strings.ReplaceAll(rel, `\`, string(filepath.Separator))
			return filepath.Join(sh.LocalPath, rel), nil
		}
	}
	return "", domain.ErrNoShareMatches
}

// Host groups shares under a published name.
type Host struct {
	Name   string
	Shares []Share
	State  HostState
}

// HostState is the connectivity state of a published host.
type HostState int

const (
	// HostOffline means the host is not currently reachable by peers.
	HostOffline HostState = iota
	// HostOnline means the host is reachable by peers.
	HostOnline
)

// NewHost creates a Host with no shares, initially offline.
func NewHost(name string) *Host {
	return &Host{Name: name, State: HostOffline}
}

// ReplaceShares atomically swaps the host's share list, sorting by
// descending LocalPath length so subdirectory shares take ownership
// precedence (spec.md §4.4.2).
func (h *Host) ReplaceShares(shares []Share) {
	cp := make([]Share, len(shares))
	copy(cp, shares)
	SortSharesByPathLengthDesc(cp)
	h.Shares = cp
}
