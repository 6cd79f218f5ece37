package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/progress"
	"cmipsync/internal/core/types"
)

func testCatalogConfig(catalogType string) types.CatalogConfig {
	cfg := types.DefaultCatalogConfig()
	cfg.Type = catalogType
	cfg.MaxRetries = types.IntPtr(0)
	cfg.Concurrency = 2
	return cfg
}

func testOptions() Options {
	return Options{Logger: logger.Discard(), Progress: progress.Disabled()}
}

const (
	goodDataset = "CMIP6.DCPP.MIROC.MIROC6.dcppA-hindcast.s1960-r1i1p1f1.Amon.pr.gn.v20190311|esgf.node"
	replica     = "CMIP6.DCPP.MIROC.MIROC6.dcppA-hindcast.s1960-r1i1p1f1.Amon.pr.gn.v20190311|mirror.node"
	badDataset  = "CMIP6.DCPP.MIROC.MIROC6.dcppA-hindcast.s1961-r1i1p1f1.Amon.pr.gn.v20190311|esgf.node"
	goodFile    = "pr_Amon_MIROC6_dcppA-hindcast_s1960-r1i1p1f1_gn_196011-197012.nc"
	badFile     = "pr_Amon_MIROC6_dcppA-hindcast_s1961-r1i1p1f1_gn_196111-197112.nc"
)

var fileBody = []byte("netcdf payload")

func newESGFServer(t *testing.T) *httptest.Server {
	t.Helper()
	sum := sha256.Sum256(fileBody)
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/esg-search/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("format") != solrFormat {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("type") {
		case "Dataset":
			if q.Get("source_id") != "MIROC6" {
				fmt.Fprint(w, `{"response":{"numFound":0,"docs":[]}}`)
				return
			}
			fmt.Fprintf(w, `{"response":{"numFound":3,"docs":[
				{"id":%q,"variant_label":["r1i1p1f1"],"sub_experiment_id":["s1960"]},
				{"id":%q,"variant_label":["r1i1p1f1"],"sub_experiment_id":["s1960"]},
				{"id":%q,"variant_label":["r1i1p1f1"],"sub_experiment_id":["s1961"]}]}}`,
				goodDataset, replica, badDataset)
		case "File":
			switch q.Get("dataset_id") {
			case goodDataset:
				fmt.Fprintf(w, `{"response":{"numFound":1,"docs":[{"id":"f1","title":%q,"size":%d,
					"url":["%s/files/good.nc|application/netcdf|HTTPServer"],
					"checksum":[%q],"checksum_type":["SHA256"]}]}}`,
					goodFile, len(fileBody), srv.URL, hex.EncodeToString(sum[:]))
			case badDataset:
				fmt.Fprintf(w, `{"response":{"numFound":1,"docs":[{"id":"f2","title":%q,"size":10,
					"url":["%s/files/missing.nc|application/netcdf|HTTPServer"]}]}}`,
					badFile, srv.URL)
			default:
				fmt.Fprint(w, `{"response":{"numFound":0,"docs":[]}}`)
			}
		default:
			http.Error(w, "bad type", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/files/good.nc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(fileBody)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestESGF(t *testing.T, srv *httptest.Server) Catalog {
	t.Helper()
	cfg := testCatalogConfig("esgf")
	cfg.URL = srv.URL + "/esg-search/search"
	c, err := NewESGFCatalog(cfg, testOptions())
	if err != nil {
		t.Fatalf("NewESGFCatalog: %v", err)
	}
	return c
}

func TestESGFSearchDropsReplicas(t *testing.T) {
	srv := newESGFServer(t)
	c := newTestESGF(t, srv)

	keys, err := c.Search(context.Background(), Criteria{SourceID: "MIROC6", VariableID: "pr", Latest: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(keys) != 2 || keys[0] != goodDataset || keys[1] != badDataset {
		t.Fatalf("unexpected keys %v", keys)
	}

	none, err := c.Search(context.Background(), Criteria{SourceID: "Nope"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no keys, got %v", none)
	}
}

func TestESGFFetch(t *testing.T) {
	srv := newESGFServer(t)
	c := newTestESGF(t, srv)
	cacheDir := t.TempDir()

	result, err := c.Fetch(context.Background(), []DatasetKey{goodDataset, badDataset}, cacheDir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.Retrieved.Has(goodDataset) || result.Retrieved.Len() != 1 {
		t.Fatalf("expected only the good dataset retrieved, got %v", result.Retrieved.Sorted())
	}
	failed := result.Failed()
	if failed.Len() != 1 || !failed.Has(badDataset) {
		t.Fatalf("expected bad dataset to fail, got %v", failed.Sorted())
	}
	if _, ok := result.Errors[badDataset]; !ok {
		t.Error("expected an error recorded for the bad dataset")
	}

	want := filepath.Join(cacheDir, "CMIP6", "DCPP", "MIROC", "MIROC6", "dcppA-hindcast",
		"s1960-r1i1p1f1", "Amon", "pr", "gn", "v20190311", goodFile)
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected downloaded file at %s: %v", want, err)
	}
	if string(data) != string(fileBody) {
		t.Errorf("unexpected file content %q", data)
	}

	// No partial file may be left for the failed download.
	entries, _ := filepath.Glob(filepath.Join(cacheDir, "CMIP6", "DCPP", "MIROC", "MIROC6", "dcppA-hindcast",
		"s1961-r1i1p1f1", "Amon", "pr", "gn", "v20190311", "*"))
	if len(entries) != 0 {
		t.Errorf("expected no leftovers for failed file, got %v", entries)
	}
}

func TestESGFFetchChecksumMismatch(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response":{"numFound":1,"docs":[{"id":"f1","title":%q,"size":%d,
			"url":["%s/f.nc|application/netcdf|HTTPServer"],
			"checksum":["deadbeef"],"checksum_type":["MD5"]}]}}`, goodFile, len(fileBody), srv.URL)
	})
	var downloads atomic.Int32
	mux.HandleFunc("/f.nc", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		_, _ = w.Write(fileBody)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	cfg := testCatalogConfig("esgf")
	cfg.URL = srv.URL + "/search"
	cfg.MaxRetries = types.IntPtr(3)
	c, err := NewESGFCatalog(cfg, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := c.Fetch(ctx, []DatasetKey{goodDataset}, t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Retrieved.Len() != 0 {
		t.Fatal("dataset with a bad checksum must not count as retrieved")
	}
	if err := result.Errors[goodDataset]; err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("expected checksum error, got %v", err)
	}
	if n := downloads.Load(); n != 1 {
		t.Errorf("checksum mismatch downloaded %d times, want 1", n)
	}
}

func TestESGFFacets(t *testing.T) {
	srv := newESGFServer(t)
	c := newTestESGF(t, srv)

	rows, err := c.Facets(context.Background(), Criteria{SourceID: "MIROC6"}, []string{"variant_label", "sub_experiment_id"})
	if err != nil {
		t.Fatalf("Facets: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 distinct rows, got %v", rows)
	}
	if rows[0]["sub_experiment_id"] != "s1960" || rows[1]["sub_experiment_id"] != "s1961" {
		t.Errorf("unexpected rows %v", rows)
	}
}
