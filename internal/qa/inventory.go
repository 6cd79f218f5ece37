// Package qa audits the canonical tree: file inventory, temporal
// completeness, size anomalies and per-file data metrics.
package qa

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"cmipsync/internal/completeness"
	"cmipsync/internal/core/types"
	"cmipsync/internal/drs"
	"cmipsync/internal/relocate"
)

// FileInfo is one parsed data file.
type FileInfo struct {
	Path   string
	Name   drs.ParsedFilename
	Member drs.MemberIdentity
	Size   types.Bytes
}

// Key groups files by source_id and variant_label.
func (f FileInfo) Key() completeness.GroupKey {
	return completeness.GroupKey{Model: f.Name.SourceID, Ensemble: f.Member.Ensemble}
}

// Inventory lists the data files below a root.
type Inventory struct {
	Root     string
	Files    []FileInfo
	Unparsed []string
}

// TotalSize sums the size of every parsed file.
func (inv Inventory) TotalSize() types.Bytes {
	var total types.Bytes
	for _, f := range inv.Files {
		total += f.Size
	}
	return total
}

// BuildInventory parses every data file under root. Files whose name does
// not follow the grammar or carries no member id are set aside.
func BuildInventory(ctx context.Context, root string) (Inventory, error) {
	inv := Inventory{Root: root}
	paths, err := relocate.DataFiles(ctx, root)
	if err != nil {
		return inv, err
	}
	for _, p := range paths {
		name := filepath.Base(p)
		parsed, err := drs.ParseFilename(name)
		if err != nil {
			inv.Unparsed = append(inv.Unparsed, p)
			continue
		}
		member, ok := parsed.Member()
		if !ok {
			inv.Unparsed = append(inv.Unparsed, p)
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			inv.Unparsed = append(inv.Unparsed, p)
			continue
		}
		inv.Files = append(inv.Files, FileInfo{Path: p, Name: parsed, Member: member, Size: types.Bytes(info.Size())})
	}
	sort.SliceStable(inv.Files, func(i, j int) bool {
		a, b := inv.Files[i], inv.Files[j]
		if a.Name.SourceID != b.Name.SourceID {
			return a.Name.SourceID < b.Name.SourceID
		}
		if a.Member.Ensemble != b.Member.Ensemble {
			return a.Member.Ensemble < b.Member.Ensemble
		}
		if a.Member.InitYear != b.Member.InitYear {
			return a.Member.InitYear < b.Member.InitYear
		}
		return a.Name.Filename < b.Name.Filename
	})
	return inv, nil
}

// Observations converts the inventory for the completeness reconciler.
func (inv Inventory) Observations() []completeness.Observation {
	obs := make([]completeness.Observation, 0, len(inv.Files))
	for _, f := range inv.Files {
		obs = append(obs, completeness.Observation{Model: f.Name.SourceID, Ensemble: f.Member.Ensemble, Year: f.Member.InitYear})
	}
	return obs
}

// Groups splits the inventory by (source_id, variant_label), in key order.
func (inv Inventory) Groups() ([]completeness.GroupKey, map[completeness.GroupKey][]FileInfo) {
	groups := make(map[completeness.GroupKey][]FileInfo)
	var keys []completeness.GroupKey
	for _, f := range inv.Files {
		k := f.Key()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], f)
	}
	return keys, groups
}
