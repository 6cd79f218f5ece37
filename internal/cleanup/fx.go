// Package cleanup removes time-invariant (fx) data from the canonical tree.
package cleanup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
)

const (
	fxDirName    = "fx"
	fxFileMarker = "_fx_"
)

// Result counts what PruneFX removed, or would remove in a dry run.
type Result struct {
	Dirs   []string
	Files  []string
	Errors int
	DryRun bool
}

// PruneFX deletes every directory named fx below root and every file whose
// name contains _fx_. Failures are logged and counted; the walk goes on.
func PruneFX(ctx context.Context, root string, dryRun bool, log *logger.Logger) (Result, error) {
	res := Result{DryRun: dryRun}
	if log == nil {
		log = logger.NewLogger(logger.WithName("cleanup"))
	}

	var dirs, files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("Failed to read path", "path", path, "error", err)
			res.Errors++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if types.Interrupted(ctx) {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == fxDirName && path != root {
				dirs = append(dirs, path)
				return fs.SkipDir
			}
			return nil
		}
		if strings.Contains(d.Name(), fxFileMarker) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, dir := range dirs {
		if dryRun {
			log.Info("Would remove directory", "path", dir)
			res.Dirs = append(res.Dirs, dir)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Error("Failed to remove directory", "path", dir, "error", err)
			res.Errors++
			continue
		}
		log.Debug("Removed directory", "path", dir)
		res.Dirs = append(res.Dirs, dir)
	}
	for _, file := range files {
		if dryRun {
			log.Info("Would remove file", "path", file)
			res.Files = append(res.Files, file)
			continue
		}
		if err := os.Remove(file); err != nil {
			log.Error("Failed to remove file", "path", file, "error", err)
			res.Errors++
			continue
		}
		log.Debug("Removed file", "path", file)
		res.Files = append(res.Files, file)
	}

	log.Info("fx cleanup finished",
		"dirs", len(res.Dirs),
		"files", len(res.Files),
		"errors", res.Errors,
		"dry_run", dryRun,
	)
	return res, nil
}
