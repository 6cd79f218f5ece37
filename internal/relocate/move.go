package relocate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrDestinationExists is returned by MoveNoReplace when dst is occupied.
var ErrDestinationExists = errors.New("relocate: destination exists")

// MoveNoReplace moves src to dst unless dst already exists. dst is never
// overwritten and src is only removed once dst is complete.
//
// Within one filesystem the file is hard linked to dst, which fails
// atomically if dst exists, and the source link is dropped. Across
// filesystems the data is copied to a temporary file next to dst, synced,
// and then linked into place the same way.
func MoveNoReplace(src, dst string) error {
	err := os.Link(src, dst)
	switch {
	case err == nil:
		return removeSource(src)
	case errors.Is(err, os.ErrExist):
		return ErrDestinationExists
	case !isCrossDevice(err):
		return err
	}

	tmp, err := copyToTemp(src, filepath.Dir(dst))
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrDestinationExists
		}
		return err
	}
	return removeSource(src)
}

func removeSource(src string) error {
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("destination written but source not removed: %w", err)
	}
	return nil
}

func copyToTemp(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	out, err := os.CreateTemp(dir, ".relocate-*")
	if err != nil {
		return "", err
	}
	name := out.Name()
	fail := func(err error) (string, error) {
		_ = out.Close()
		_ = os.Remove(name)
		return "", err
	}

	if _, err := io.Copy(out, in); err != nil {
		return fail(err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return fail(err)
	}
	if err := out.Sync(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
