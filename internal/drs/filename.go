// Package drs parses the CMIP6 data reference syntax used in file names and
// in the directory layout of catalog caches.
package drs

import (
	"fmt"
	"regexp"
	"strings"
)

// Extension is the canonical data file extension.
const Extension = ".nc"

var filenamePattern = regexp.MustCompile(
	`^(?P<variable>[[:alnum:]]+)_(?P<table>[[:alnum:]]+)_(?P<source>[^_]+)_` +
		`(?P<experiment>[^_]+)_(?P<member>[^_]+)_(?P<grid>[^_]+)_` +
		`(?P<timerange>[^_]+)\.nc$`,
)

// ParsedFilename holds the seven fields of a CMIP6 data file name:
//
//	variable_table_source_experiment_member_grid_timerange.nc
type ParsedFilename struct {
	VariableID   string
	TableID      string
	SourceID     string
	ExperimentID string
	MemberID     string
	GridLabel    string
	TimeRange    string
	Filename     string
}

// ParseError marks a name that does not follow the grammar. Callers treat it
// as a recoverable skip.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("drs: cannot parse %q: %s", e.Name, e.Reason)
}

// ParseFilename parses a base file name (no directory) into its fields.
func ParseFilename(name string) (ParsedFilename, error) {
	fields := len(strings.Split(name, "_"))
	if fields < 3 {
		return ParsedFilename{}, &ParseError{Name: name, Reason: "fewer than 3 underscore-separated fields"}
	}
	if fields != 7 {
		return ParsedFilename{}, &ParseError{Name: name, Reason: fmt.Sprintf("%d underscore-separated fields, expected 7", fields)}
	}
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return ParsedFilename{}, &ParseError{Name: name, Reason: "does not match variable_table_source_experiment_member_grid_timerange.nc"}
	}
	group := func(g string) string {
		return m[filenamePattern.SubexpIndex(g)]
	}
	return ParsedFilename{
		VariableID:   group("variable"),
		TableID:      group("table"),
		SourceID:     group("source"),
		ExperimentID: group("experiment"),
		MemberID:     group("member"),
		GridLabel:    group("grid"),
		TimeRange:    group("timerange"),
		Filename:     name,
	}, nil
}

// Fields returns the seven fields in file name order.
func (p ParsedFilename) Fields() []string {
	return []string{p.VariableID, p.TableID, p.SourceID, p.ExperimentID, p.MemberID, p.GridLabel, p.TimeRange}
}

// String rebuilds the file name from its fields.
func (p ParsedFilename) String() string {
	return strings.Join(p.Fields(), "_") + Extension
}

// Member decodes the member_id field into an init year and ensemble.
func (p ParsedFilename) Member() (MemberIdentity, bool) {
	return ParseMemberID(p.MemberID)
}

// ExtractModel returns the third underscore-separated field of name. It is
// deliberately more lenient than ParseFilename: the remaining fields may be
// malformed.
func ExtractModel(name string) (string, bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// HasExtension reports whether name carries the canonical data extension.
func HasExtension(name string) bool {
	return strings.HasSuffix(name, Extension)
}
