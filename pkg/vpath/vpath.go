// Package vpath turns arbitrary user-supplied strings into canonical absolute
// POSIX paths and rejects unsafe or malformed input. Every function here is
// pure; the rest of the engine passes paths through this package before
// touching the node cache.
package vpath

import (
	"strings"

	"github.com/objectfs/webvfs/pkg/errors"
)

const (
	// Separator is the only path separator recognized.
	Separator = "/"
	// Root is the canonical root path.
	Root = "/"
	// Home is the shorthand prefix for the home directory.
	Home = "~"

	MaxPathLength     = 4096
	MaxFilenameLength = 255
	MaxDepth          = 64
)

// Normalize collapses repeated separators, resolves "." and ".." lexically
// and guarantees a leading separator and no trailing separator except for
// the root. ".." never climbs above the root.
func Normalize(p string) string {
	if p == "" {
		return Root
	}
	segments := make([]string, 0, strings.Count(p, Separator)+1)
	for _, seg := range strings.Split(p, Separator) {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return Root
	}
	return Separator + strings.Join(segments, Separator)
}

// Resolve resolves target against the working directory cwd. "~" and "~/..."
// expand to home; absolute targets ignore cwd. The result is normalized but
// not validated.
func Resolve(cwd, target, home string) string {
	switch {
	case target == Home:
		return Normalize(home)
	case strings.HasPrefix(target, Home+Separator):
		return Normalize(home + Separator + target[len(Home)+1:])
	case IsAbs(target):
		return Normalize(target)
	case target == "":
		return Normalize(cwd)
	default:
		return Normalize(cwd + Separator + target)
	}
}

// IsAbs reports whether p starts at the root.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, Separator)
}

// Clean validates the raw input and returns its canonical form. It is the
// entry point used by every facade operation.
func Clean(p string) (string, error) {
	if err := Validate(p); err != nil {
		return "", err
	}
	return Normalize(p), nil
}

// Join joins a directory and a name. dir must already be canonical.
func Join(dir, name string) string {
	if dir == Root {
		return Root + name
	}
	return dir + Separator + name
}

// Dir returns the parent of a canonical path; the root's parent is "".
func Dir(p string) string {
	if p == Root || p == "" {
		return ""
	}
	i := strings.LastIndex(p, Separator)
	if i <= 0 {
		return Root
	}
	return p[:i]
}

// Base returns the last segment of a canonical path; the root's name is "/".
func Base(p string) string {
	if p == Root || p == "" {
		return Root
	}
	return p[strings.LastIndex(p, Separator)+1:]
}

// Split returns the segments of a canonical path; the root has none.
func Split(p string) []string {
	if p == Root || p == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, Separator), Separator)
}

// Depth returns the number of segments in a canonical path.
func Depth(p string) int {
	return len(Split(p))
}

// Ancestors returns every proper ancestor of p from the root downward.
func Ancestors(p string) []string {
	if p == Root || p == "" {
		return nil
	}
	segments := Split(p)
	out := []string{Root}
	cur := Root
	for _, seg := range segments[:len(segments)-1] {
		cur = Join(cur, seg)
		out = append(out, cur)
	}
	return out
}

// IsAncestor reports whether ancestor strictly contains p. Matching is
// segment-aware: "/a" contains "/a/b" but not "/ab".
func IsAncestor(ancestor, p string) bool {
	if ancestor == p {
		return false
	}
	if ancestor == Root {
		return p != "" && IsAbs(p)
	}
	return strings.HasPrefix(p, ancestor+Separator)
}

// Rebase moves p from under oldBase to under newBase. p must equal oldBase or
// be one of its descendants, and oldBase must not be the root.
func Rebase(p, oldBase, newBase string) string {
	if p == oldBase {
		return newBase
	}
	return Normalize(newBase + Separator + strings.TrimPrefix(p, oldBase+Separator))
}

// Validate fails with PATH_INVALID when p is empty, too long, not absolute,
// contains ".." or doubled separators, is too deep, or has a segment that
// fails ValidateFilename. A single trailing separator is tolerated.
func Validate(p string) error {
	if p == "" {
		return errors.PathInvalid(p, "path is empty")
	}
	if len(p) > MaxPathLength {
		return errors.PathInvalid(truncate(p), "path exceeds maximum length")
	}
	if !IsAbs(p) {
		return errors.PathInvalid(p, "path is not absolute")
	}
	if strings.Contains(p, Separator+Separator) {
		return errors.PathInvalid(p, "path contains doubled separator")
	}
	if p == Root {
		return nil
	}
	trimmed := strings.TrimSuffix(p, Separator)
	segments := strings.Split(strings.TrimPrefix(trimmed, Separator), Separator)
	if len(segments) > MaxDepth {
		return errors.PathInvalid(p, "path exceeds maximum depth")
	}
	for _, seg := range segments {
		if seg == ".." {
			return errors.PathInvalid(p, "path contains parent traversal")
		}
		if err := ValidateFilename(seg); err != nil {
			return errors.PathInvalid(p, err.(*errors.VFSError).Message)
		}
	}
	return nil
}

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

const forbiddenChars = `<>:"|?*\`

// ValidateFilename checks a single path segment.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return errors.PathInvalid(name, "filename is empty")
	case name == "." || name == "..":
		return errors.PathInvalid(name, "filename is a relative reference")
	case len(name) > MaxFilenameLength:
		return errors.PathInvalid(truncate(name), "filename exceeds maximum length")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return errors.PathInvalid(name, "filename contains control character")
		}
		if strings.ContainsRune(forbiddenChars, r) {
			return errors.PathInvalid(name, "filename contains forbidden character")
		}
		if r == '/' {
			return errors.PathInvalid(name, "filename contains separator")
		}
	}
	if last := name[len(name)-1]; last == '.' || last == ' ' {
		return errors.PathInvalid(name, "filename ends with dot or space")
	}
	stem := strings.ToUpper(name)
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	if _, reserved := reservedNames[stem]; reserved {
		return errors.PathInvalid(name, "filename is a reserved device name")
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:64] + "..."
}
