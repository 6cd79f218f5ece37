package drs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var memberPattern = regexp.MustCompile(`^s(\d{4})-(r.+)$`)

// MemberIdentity identifies one initialization of one ensemble member.
type MemberIdentity struct {
	Ensemble string // variant_label, e.g. r10i1p1f1
	InitYear int
}

// SubExperiment returns the sub_experiment_id, e.g. s1960.
func (m MemberIdentity) SubExperiment() string {
	return YearDir(m.InitYear)
}

// String returns the full member_id, e.g. s1960-r1i1p1f1.
func (m MemberIdentity) String() string {
	return m.SubExperiment() + "-" + m.Ensemble
}

// ParseMemberID matches a full sYYYY-rVARIANT segment. The match is anchored
// and case sensitive.
func ParseMemberID(s string) (MemberIdentity, bool) {
	m := memberPattern.FindStringSubmatch(s)
	if m == nil {
		return MemberIdentity{}, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return MemberIdentity{}, false
	}
	return MemberIdentity{Ensemble: m[2], InitYear: year}, true
}

// ExtractMemberIdentity resolves the member of a file. memberID is tried
// first; segments are then scanned from the last element to the first, so
// the nearest enclosing directory wins.
func ExtractMemberIdentity(memberID string, segments []string) (MemberIdentity, bool) {
	if memberID != "" {
		if id, ok := ParseMemberID(memberID); ok {
			return id, true
		}
	}
	return NearestMember(segments)
}

// NearestMember returns the first segment, scanning backwards, that is a
// member id.
func NearestMember(segments []string) (MemberIdentity, bool) {
	for i := len(segments) - 1; i >= 0; i-- {
		if id, ok := ParseMemberID(segments[i]); ok {
			return id, true
		}
	}
	return MemberIdentity{}, false
}

// PathSegments splits a path into its elements, root first.
func PathSegments(path string) []string {
	clean := filepath.ToSlash(filepath.Clean(path))
	var out []string
	for _, s := range strings.Split(clean, "/") {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

// SafeSegment reports whether s can be used as one directory level of the
// canonical tree: non-empty, not "." or "..", and free of path separators.
func SafeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

// ResolveFile derives model and member for a file path using the lenient
// rules of the relocation engine: the model comes from the name's third
// field, the member from the name's member field or the nearest ancestor
// directory.
func ResolveFile(path string) (model string, member MemberIdentity, err error) {
	name := filepath.Base(path)
	model, ok := ExtractModel(name)
	if !ok {
		return "", MemberIdentity{}, &ParseError{Name: name, Reason: "no model field"}
	}
	var memberID string
	if parts := strings.Split(strings.TrimSuffix(name, Extension), "_"); len(parts) == 7 {
		memberID = parts[4]
	}
	if !SafeSegment(model) {
		return "", MemberIdentity{}, &ParseError{Name: name, Reason: fmt.Sprintf("model field %q is not a directory name", model)}
	}
	member, ok = ExtractMemberIdentity(memberID, PathSegments(filepath.Dir(path)))
	if !ok {
		return "", MemberIdentity{}, &ParseError{Name: name, Reason: fmt.Sprintf("no sYYYY-rVARIANT segment in name or path %s", filepath.Dir(path))}
	}
	if !SafeSegment(member.Ensemble) {
		return "", MemberIdentity{}, &ParseError{Name: name, Reason: fmt.Sprintf("ensemble %q is not a directory name", member.Ensemble)}
	}
	return model, member, nil
}
