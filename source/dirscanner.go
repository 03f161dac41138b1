package source

import (
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

// Registrar is implemented by the registry: DirScanner calls it once per
// discovered file so startup directory scans populate the registry the same
// way an explicit load request would (spec §3: "Asset created on first
// registration (load request or directory scan)").
type Registrar interface {
	Register(path string, t asset.Type) asset.ID
}

// DirScanner walks AssetRootPath once at startup (or on demand) and
// registers every file whose extension maps to a known AssetType.
type DirScanner struct {
	Root string
}

func NewDirScanner(root string) *DirScanner { return &DirScanner{Root: root} }

// Scan walks Root with godirwalk (chosen for its lower-allocation directory
// walk versus stdlib filepath.WalkDir on large asset trees) and registers
// every recognized file, relative to Root.
func (d *DirScanner) Scan(reg Registrar) (int, error) {
	n := 0
	err := godirwalk.Walk(d.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			t := asset.TypeFromExtension(filepath.Ext(path))
			if t == asset.TypeUnknown {
				return nil
			}
			rel, err := filepath.Rel(d.Root, path)
			if err != nil {
				rel = path
			}
			rel = strings.ReplaceAll(rel, string(filepath.Separator), "/")
			reg.Register(rel, t)
			n++
			return nil
		},
	})
	if err != nil {
		return n, cmn.NewError(cmn.ErrIO, "dirscanner: walk %s: %v", d.Root, err)
	}
	return n, nil
}
