// Package fileinfo builds the File index records the share repository
// stores, grounded on the teacher's scanFile/hashAndCountLines pipeline in
// internal/adapters/repository/scanner.go: one pass over a path produces
// every derived field the record needs, swallowing extraction failures
// rather than failing the whole record.
package fileinfo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shareindex/peer/internal/domain/ports"
)

// recordCode is the fixed "code" column value for every file record, per
// spec.md §4.2.
const recordCode = 1

// mediaExtensions is the set of audio/video extensions that trigger
// attribute extraction, per spec.md §4.2.
var mediaExtensions = map[string]bool{
	"mkv": true, "ogv": true, "avi": true, "wmv": true, "asf": true,
	"mp4": true, "m4p": true, "m4v": true, "mpg": true, "mpe": true,
	"mpv": true, "m2v": true, "aa": true, "aax": true, "aac": true,
	"aiff": true, "ape": true, "dsf": true, "flac": true, "m4a": true,
	"m4b": true, "mp3": true, "mpc": true, "mpp": true, "ogg": true,
	"oga": true, "wav": true, "wma": true, "wv": true, "webm": true,
}

// IsMediaExtension reports whether ext (without a leading dot, any case)
// is one of the extensions attribute extraction is attempted for.
func IsMediaExtension(ext string) bool {
	return mediaExtensions[strings.ToLower(ext)]
}

// File is one index record as produced by the factory, ready for
// shareindex.Repository.InsertFile.
type File struct {
	Code             int
	MaskedFilename   string
	OriginalFilename string
	Size             int64
	Extension        string
	Attributes       []ports.MediaAttribute
}

// Factory builds File records from local paths. probe may be nil, in which
// case attribute extraction is always skipped.
type Factory struct {
	probe ports.MediaProbe
}

// NewFactory returns a Factory that uses probe for media attribute
// extraction. A nil probe disables attribute extraction entirely.
func NewFactory(probe ports.MediaProbe) *Factory {
	return &Factory{probe: probe}
}

// Build produces a File record for originalFilename, a path physically
// under localPathRoot, masked as though it were served under
// remotePathRoot. It stats the file for size and, for recognized media
// extensions, attempts attribute extraction — a probe failure is swallowed
// and the record is still returned with an empty attribute list.
func (f *Factory) Build(originalFilename, localPathRoot, remotePathRoot string) (File, error) {
	info, err := os.Stat(originalFilename)
	if err != nil {
		return File{}, err
	}

	ext := extensionOf(originalFilename)
	rec := File{
		Code:             recordCode,
		MaskedFilename:   maskFilename(originalFilename, localPathRoot, remotePathRoot),
		OriginalFilename: originalFilename,
		Size:             info.Size(),
		Extension:        ext,
	}

	if f.probe != nil && IsMediaExtension(ext) {
		if attrs, err := f.probe.Probe(originalFilename); err == nil {
			rec.Attributes = attrs
		}
	}

	return rec, nil
}

// extensionOf returns the file extension lowercased and without its
// leading dot, or "" if there is none.
func extensionOf(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// maskFilename replaces localPathRoot with remotePathRoot in originalFilename
// and normalizes path separators to backslash, per spec.md §3 ("Path
// masking").
func maskFilename(originalFilename, localPathRoot, remotePathRoot string) string {
	rel, err := filepath.Rel(localPathRoot, originalFilename)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = strings.TrimPrefix(originalFilename, localPathRoot)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
	}
	rel = strings.ReplaceAll(rel, string(filepath.Separator), `\`)
	rel = strings.ReplaceAll(rel, "/", `\`)
	if rel == "" || rel == "." {
		return remotePathRoot
	}
	return remotePathRoot + `\` + rel
}
