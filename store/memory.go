package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/tidwall/buntdb"

	jsoniter "github.com/json-iterator/go"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MemoryStore satisfies Store against a buntdb database opened with
// ":memory:", the "in-memory store (for tests)" half of spec §4.K's two
// required backends. buntdb was already a direct dependency in the
// teacher's go.mod with no call site anywhere in its own source (grep
// confirms); this is its first real use in the codebase, the same
// promotion already applied to lufia/iostat and prometheus/client_golang.
//
// Keys are "rec:<id>" for the record JSON blob and "path:<path>" ->
// "<id>" for the path index. A buntdb "path" index is created, but Query
// does not use it: it scans every "rec:*" key and applies all filtering,
// sorting and pagination in Go (matchesFilter, sortRecords).
type MemoryStore struct {
	db *buntdb.DB
}

func NewMemoryStore() (*MemoryStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: open buntdb: %v", err)
	}
	if err := db.CreateIndex("path", "path:*", buntdb.IndexString); err != nil {
		return nil, cmn.Internal("store: create path index: %v", err)
	}
	return &MemoryStore{db: db}, nil
}

func recKey(id asset.ID) string  { return fmt.Sprintf("rec:%d", id) }
func pathKey(path string) string { return "path:" + path }

func (s *MemoryStore) Create(ctx context.Context, r asset.Record) error {
	return s.upsert(r)
}

func (s *MemoryStore) Update(ctx context.Context, r asset.Record) error {
	return s.upsert(r)
}

func (s *MemoryStore) upsert(r asset.Record) error {
	data, err := json.Marshal(&r)
	if err != nil {
		return cmn.NewError(cmn.ErrDecode, "store: marshal record %d: %v", r.ID, err)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(recKey(r.ID), string(data), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(pathKey(r.Path), strconv.FormatUint(uint64(r.ID), 10), nil)
		return err
	})
}

func (s *MemoryStore) Get(ctx context.Context, id asset.ID) (asset.Record, bool, error) {
	var r asset.Record
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(recKey(id))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return json.Unmarshal([]byte(val), &r)
	})
	if err != nil {
		return asset.Record{}, false, cmn.NewError(cmn.ErrIO, "store: get %d: %v", id, err)
	}
	return r, found, nil
}

func (s *MemoryStore) GetByPath(ctx context.Context, path string) (asset.Record, bool, error) {
	var id asset.ID
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(pathKey(path))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return err
		}
		id = asset.ID(n)
		found = true
		return nil
	})
	if err != nil {
		return asset.Record{}, false, cmn.NewError(cmn.ErrIO, "store: get by path %q: %v", path, err)
	}
	if !found {
		return asset.Record{}, false, nil
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) Delete(ctx context.Context, id asset.ID) error {
	r, found, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete(recKey(id)); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		if _, err := tx.Delete(pathKey(r.Path)); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	})
}

func (s *MemoryStore) CreateBatch(ctx context.Context, rs []asset.Record) error {
	for _, r := range rs {
		if err := s.Create(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) UpdateBatch(ctx context.Context, rs []asset.Record) error {
	for _, r := range rs {
		if err := s.Update(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) DeleteBatch(ctx context.Context, ids []asset.ID) error {
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// all walks every "rec:*" key directly rather than going through the path
// index, since each record key already carries its own id.
func (s *MemoryStore) all() ([]asset.Record, error) {
	var out []asset.Record
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, val string) bool {
			if len(key) < 4 || key[:4] != "rec:" {
				return true
			}
			var r asset.Record
			if jsonErr := json.Unmarshal([]byte(val), &r); jsonErr == nil {
				out = append(out, r)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: scan: %v", err)
	}
	return out, nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) (Page, error) {
	all, err := s.all()
	if err != nil {
		return Page{}, err
	}
	matched := make([]asset.Record, 0, len(all))
	for _, r := range all {
		if matchesFilter(r, f) {
			matched = append(matched, r)
		}
	}
	sortRecords(matched, f.Sort, f.Desc)

	total := len(matched)
	start := f.Offset
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return Page{Records: matched[start:end], Total: total}, nil
}

func sortRecords(rs []asset.Record, key SortKey, desc bool) {
	less := func(i, j int) bool {
		switch key {
		case SortBySize:
			return rs[i].SizeBytes < rs[j].SizeBytes
		case SortByLastModified:
			return rs[i].LastModified.Before(rs[j].LastModified)
		case SortByAccessCount:
			return rs[i].AccessCount < rs[j].AccessCount
		default:
			return rs[i].Path < rs[j].Path
		}
	}
	if desc {
		sort.SliceStable(rs, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(rs, less)
}

func (s *MemoryStore) AddTag(ctx context.Context, id asset.ID, tag string) error {
	r, found, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return cmn.NewError(cmn.ErrNotFound, "store: add tag: unknown id %d", id)
	}
	for _, t := range r.Tags {
		if t == tag {
			return nil
		}
	}
	r.Tags = append(r.Tags, tag)
	return s.Update(ctx, r)
}

func (s *MemoryStore) RemoveTag(ctx context.Context, id asset.ID, tag string) error {
	r, found, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	out := r.Tags[:0]
	for _, t := range r.Tags {
		if t != tag {
			out = append(out, t)
		}
	}
	r.Tags = out
	return s.Update(ctx, r)
}

func (s *MemoryStore) FindByTag(ctx context.Context, tag string) ([]asset.Record, error) {
	p, err := s.Query(ctx, Filter{Tags: []string{tag}})
	if err != nil {
		return nil, err
	}
	return p.Records, nil
}

func (s *MemoryStore) AddDependency(ctx context.Context, a, b asset.ID) error {
	r, found, err := s.Get(ctx, a)
	if err != nil {
		return err
	}
	if !found {
		return cmn.NewError(cmn.ErrUnknownID, "store: add dependency: unknown id %d", a)
	}
	for _, d := range r.Dependencies {
		if d == b {
			return nil
		}
	}
	r.Dependencies = append(r.Dependencies, b)
	return s.Update(ctx, r)
}

func (s *MemoryStore) RemoveDependency(ctx context.Context, a, b asset.ID) error {
	r, found, err := s.Get(ctx, a)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	out := r.Dependencies[:0]
	for _, d := range r.Dependencies {
		if d != b {
			out = append(out, d)
		}
	}
	r.Dependencies = out
	return s.Update(ctx, r)
}

func (s *MemoryStore) Dependencies(ctx context.Context, id asset.ID) ([]asset.ID, error) {
	r, found, err := s.Get(ctx, id)
	if err != nil || !found {
		return nil, err
	}
	return r.Dependencies, nil
}

func (s *MemoryStore) Dependents(ctx context.Context, id asset.ID) ([]asset.ID, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	var out []asset.ID
	for _, r := range all {
		for _, d := range r.Dependencies {
			if d == id {
				out = append(out, r.ID)
				break
			}
		}
	}
	return out, nil
}

// Optimize/Vacuum are no-ops for buntdb's in-memory backend: there's no
// on-disk fragmentation to reclaim when the data never leaves RAM.
func (s *MemoryStore) Optimize(ctx context.Context) error { return nil }
func (s *MemoryStore) Vacuum(ctx context.Context) error   { return nil }

func (s *MemoryStore) Backup(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: backup create %s: %v", path, err)
	}
	defer f.Close()
	return s.db.Save(f)
}

func (s *MemoryStore) Restore(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: restore open %s: %v", path, err)
	}
	defer f.Close()
	return s.db.Load(f)
}

func (s *MemoryStore) IntegrityCheck(ctx context.Context) error {
	_, err := s.all()
	return err
}

// SchemaVersion/UpdateSchema are fixed at 1 for MemoryStore: buntdb has no
// schema to migrate, every record round-trips through the same JSON
// envelope regardless of version.
func (s *MemoryStore) SchemaVersion(ctx context.Context) (int, error) { return 1, nil }
func (s *MemoryStore) UpdateSchema(ctx context.Context, target int) error {
	if target != 1 {
		return cmn.NewError(cmn.ErrWrongState, "store: memory store only supports schema version 1, got %d", target)
	}
	return nil
}

func (s *MemoryStore) Close() error { return s.db.Close() }
