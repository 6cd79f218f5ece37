package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	solrFormat   = "application/solr+json"
	solrPageSize = 500
	solrProject  = "CMIP6"
)

// searchResponse is the subset of the ESGF search API's Solr response used
// here. Most facet fields come back as single element arrays.
type searchResponse struct {
	Response struct {
		NumFound int                   `json:"numFound"`
		Docs     []jsoniter.RawMessage `json:"docs"`
	} `json:"response"`
}

type datasetDoc struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`
	DataNode   string `json:"data_node"`
}

type fileDoc struct {
	ID           string   `json:"id"`
	InstanceID   string   `json:"instance_id"`
	DatasetID    string   `json:"dataset_id"`
	Title        string   `json:"title"`
	Size         int64    `json:"size"`
	URL          []string `json:"url"`
	Checksum     []string `json:"checksum"`
	ChecksumType []string `json:"checksum_type"`
}

// httpURL picks the HTTPServer endpoint out of entries shaped like
// "https://host/path/file.nc|application/netcdf|HTTPServer".
func (d fileDoc) httpURL() (string, bool) {
	for _, u := range d.URL {
		parts := strings.Split(u, "|")
		if len(parts) == 3 && parts[2] == "HTTPServer" {
			return parts[0], true
		}
	}
	return "", false
}

func (d fileDoc) checksum() (string, string) {
	if len(d.Checksum) == 0 || len(d.ChecksumType) == 0 {
		return "", ""
	}
	return d.ChecksumType[0], d.Checksum[0]
}

// datasetInstance strips the "|data_node" suffix from a dataset id.
func datasetInstance(key DatasetKey) string {
	s := string(key)
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	return s
}

func searchQuery(docType string, criteria Criteria, fields []string, offset int) url.Values {
	q := url.Values{}
	q.Set("type", docType)
	q.Set("format", solrFormat)
	q.Set("project", solrProject)
	q.Set("distrib", "true")
	q.Set("limit", strconv.Itoa(solrPageSize))
	q.Set("offset", strconv.Itoa(offset))
	if criteria.Latest {
		q.Set("latest", "true")
	}
	for _, f := range criteria.Facets() {
		q.Set(f.Name, f.Value)
	}
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	return q
}

// facetValue flattens a Solr field to a string. Arrays are joined with ",".
func facetValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, facetValue(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

// distinctRows de-duplicates rows over fields and sorts them.
func distinctRows(rows []FacetRow, fields []string) []FacetRow {
	seen := make(map[string]bool)
	out := make([]FacetRow, 0, len(rows))
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		vals := make([]string, len(fields))
		for i, f := range fields {
			vals[i] = r[f]
		}
		k := strings.Join(vals, "\x00")
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
		keys = append(keys, k)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })
	sorted := make([]FacetRow, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}
