package relocate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cmipsync/internal/core/types"
	"cmipsync/internal/drs"
)

// CacheDirs lists the directories directly below baseDir whose names start
// with prefix.
func CacheDirs(baseDir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			dirs = append(dirs, filepath.Join(baseDir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// DataFiles recursively collects the .nc files below root in lexical order.
// Hidden temporary files left by interrupted transfers are ignored.
func DataFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if types.Interrupted(ctx) {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if drs.HasExtension(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Sweep relocates every data file found in roots into destRoot and
// returns the combined summary. A root that can't be walked is logged and
// counted as one processed unit with an error.
func (e *Engine) Sweep(ctx context.Context, roots []string, destRoot string) Summary {
	var summary Summary
	for _, root := range roots {
		files, err := DataFiles(ctx, root)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if types.Interrupted(ctx) {
			break
		}
		if err != nil {
			e.log.Error("Failed to scan cache", "dir", root, "error", err)
			summary.add(Outcome{Source: root, Kind: Failed, Err: err})
			continue
		}
		e.log.Info("Scanning cache", "dir", root, "files", len(files))
		summary.Merge(e.Relocate(ctx, files, destRoot))
	}
	return summary
}
