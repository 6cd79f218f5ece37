package transfer

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// Checksum is an expected digest published by a catalog.
type Checksum struct {
	Type  string // SHA256 or MD5, case insensitive
	Value string // hex
}

func (c Checksum) newHash() (hash.Hash, bool) {
	switch strings.ToUpper(c.Type) {
	case "SHA256":
		return sha256.New(), true
	case "MD5":
		return md5.New(), true
	default:
		return nil, false
	}
}

// ChecksumError reports a digest mismatch after a complete download.
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// FileOptions control ToFile.
type FileOptions struct {
	Limiter  *rate.Limiter
	Progress RWCallback
	Checksum *Checksum
}

// ToFile streams r into dest. Data is written to a hidden temporary file in
// the destination directory and renamed into place only after the copy and
// the optional checksum succeed, so an interrupted download never leaves a
// truncated data file behind.
func ToFile(ctx context.Context, r io.Reader, dest string, opts FileOptions) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	var w io.Writer = tmp
	var h hash.Hash
	if opts.Checksum != nil && opts.Checksum.Value != "" {
		if hh, ok := opts.Checksum.newHash(); ok {
			h = hh
			w = io.MultiWriter(tmp, h)
		}
	}

	rw := NewReaderWriter(
		RWWithIOReader(r),
		RWWithIOWriter(w),
		RWWithReadLimiter(opts.Limiter),
		RWWithReaderCallback(opts.Progress),
	)
	n, err := rw.Transfer(ctx)
	if err != nil {
		cleanup()
		return n, err
	}
	if h != nil {
		actual := hex.EncodeToString(h.Sum(nil))
		if !strings.EqualFold(actual, opts.Checksum.Value) {
			cleanup()
			return n, &ChecksumError{Path: dest, Expected: opts.Checksum.Value, Actual: actual}
		}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	return n, nil
}
