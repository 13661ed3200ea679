package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File suffixes.
const (
	SuffixCSV    = ".csv"
	SuffixTSV    = ".tsv"
	SuffixTXT    = ".txt"
	SuffixPsydat = ".psydat"
)

// CollisionPolicy decides what happens when the target file exists.
type CollisionPolicy string

const (
	// Rename appends _1, _2, ... before the suffix until the name is free.
	Rename CollisionPolicy = "rename"

	// Overwrite truncates the existing file.
	Overwrite CollisionPolicy = "overwrite"

	// Fail returns an error wrapping fs.ErrExist.
	Fail CollisionPolicy = "fail"
)

// ParseCollisionPolicy converts a policy name. "" defaults to Rename.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(s)) {
	case "", Rename:
		return Rename, nil
	case Overwrite:
		return Overwrite, nil
	case Fail:
		return Fail, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q: must be rename, overwrite or fail", s)
	}
}

// Options controls how a table or snapshot is written.
type Options struct {
	// Delimiter separates cells. Zero means infer from the path suffix.
	Delimiter rune

	// Suffix, when set, replaces the inferred suffix.
	Suffix string

	Collision CollisionPolicy

	// Append adds rows to an existing file instead of creating a new one.
	// The header is only written when the file is empty.
	Append bool
}

// SuffixFor maps a delimiter to its file suffix.
func SuffixFor(delim rune) string {
	switch delim {
	case ',':
		return SuffixCSV
	case 0, '\t':
		return SuffixTSV
	default:
		return SuffixTXT
	}
}

func knownSuffix(ext string) bool {
	switch strings.ToLower(ext) {
	case SuffixCSV, SuffixTSV, SuffixTXT:
		return true
	}
	return false
}

// ResolveTarget returns the file name and delimiter a table write will use.
func ResolveTarget(path string, opts Options) (string, rune) {
	ext := filepath.Ext(path)

	delim := opts.Delimiter
	if delim == 0 {
		delim = '\t'
		if strings.EqualFold(ext, SuffixCSV) {
			delim = ','
		}
	}

	switch {
	case opts.Suffix != "":
		suffix := opts.Suffix
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		if strings.HasSuffix(path, suffix) {
			return path, delim
		}
		if knownSuffix(ext) {
			path = strings.TrimSuffix(path, ext)
		}
		return path + suffix, delim
	case knownSuffix(ext):
		return path, delim
	default:
		return path + SuffixFor(delim), delim
	}
}

// Available applies policy to path and returns the name to create.
// Rename never returns an existing name; Fail returns an error wrapping
// fs.ErrExist when path exists.
func Available(path string, policy CollisionPolicy) (string, error) {
	exists, err := fileExists(path)
	if err != nil || !exists {
		return path, err
	}

	switch policy {
	case Overwrite:
		return path, nil
	case Fail:
		return "", fmt.Errorf("export: %s: %w", path, fs.ErrExist)
	default:
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(path, ext)
		for i := 1; ; i++ {
			candidate := base + "_" + strconv.Itoa(i) + ext
			exists, err := fileExists(candidate)
			if err != nil {
				return "", err
			}
			if !exists {
				return candidate, nil
			}
		}
	}
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("export: stat %s: %w", path, err)
	}
}

// create opens the final target for writing according to the policy.
func create(path string, policy CollisionPolicy) (*os.File, string, error) {
	target, err := Available(path, policy)
	if err != nil {
		return nil, "", err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if policy != Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("export: create %s: %w", target, err)
	}
	return f, target, nil
}
