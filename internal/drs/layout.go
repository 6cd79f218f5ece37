package drs

import (
	"fmt"
	"path/filepath"
)

// YearDir is the directory name for an initialization year.
func YearDir(year int) string {
	return fmt.Sprintf("s%d", year)
}

// CanonicalDir is root/model/ensemble/sYEAR. Downstream QA tooling depends
// on exactly this nesting.
func CanonicalDir(root, model, ensemble string, year int) string {
	return filepath.Join(root, model, ensemble, YearDir(year))
}

// CanonicalPath is the destination of filename in the canonical tree.
func CanonicalPath(root, model string, member MemberIdentity, filename string) string {
	return filepath.Join(CanonicalDir(root, model, member.Ensemble, member.InitYear), filename)
}
