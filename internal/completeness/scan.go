package completeness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cmipsync/internal/core/types"
	"cmipsync/internal/drs"
)

// ScanResult is what a tree scan found.
type ScanResult struct {
	Observations []Observation
	Files        int // data files seen
	Unparsed     int // data files whose name did not carry a member id
	Filtered     int // data files excluded by the model filter
}

// Scan walks root and builds observations from every data file whose full
// name parses and whose member field carries an init year. modelFilter, when
// set, keeps only models containing it (case insensitive).
func Scan(ctx context.Context, root, modelFilter string) (ScanResult, error) {
	var result ScanResult

	info, err := os.Stat(root)
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("scan %s: not a directory", root)
	}

	filter := strings.ToLower(modelFilter)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if types.Interrupted(ctx) {
			return ctx.Err()
		}
		if d.IsDir() || !drs.HasExtension(d.Name()) {
			return nil
		}
		result.Files++

		parsed, err := drs.ParseFilename(d.Name())
		if err != nil {
			result.Unparsed++
			return nil
		}
		member, ok := parsed.Member()
		if !ok {
			result.Unparsed++
			return nil
		}
		if filter != "" && !strings.Contains(strings.ToLower(parsed.SourceID), filter) {
			result.Filtered++
			return nil
		}
		result.Observations = append(result.Observations, Observation{
			Model:    parsed.SourceID,
			Ensemble: member.Ensemble,
			Year:     member.InitYear,
		})
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", root, err)
	}
	return result, nil
}
