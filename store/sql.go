package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
	"github.com/forgekit/assetcore/cmn/jsp"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// sqlRecord is the sqlx scan target: a flat row mirroring the assets table,
// translated to/from asset.Record at the store boundary (the teacher's own
// convention of keeping wire/row shapes separate from the in-memory type,
// e.g. cluster.Snode vs. its JSON envelope).
type sqlRecord struct {
	ID               uint64    `db:"id"`
	Type             int       `db:"type"`
	Path             string    `db:"path"`
	Name             string    `db:"name"`
	Version          uint64    `db:"version"`
	SizeBytes        int64     `db:"size_bytes"`
	LastModified     time.Time `db:"last_modified"`
	Flags            uint64    `db:"flags"`
	CurrentQuality   int       `db:"current_quality"`
	State            int       `db:"state"`
	CustomProperties []byte    `db:"custom_properties"`
	AccessCount      uint64    `db:"access_count"`
	TotalLoadTimeNs  int64     `db:"total_load_time_ns"`
	FileHash         string    `db:"file_hash"`
	MimeType         string    `db:"mime_type"`
	CompressedSize   int64     `db:"compressed_size"`
	ErrorCount       uint64    `db:"error_count"`
	CompressionKind  string    `db:"compression_kind"`
}

func (s *sqlRecord) toRecord() (asset.Record, error) {
	props := make(map[string]string)
	if len(s.CustomProperties) > 0 {
		if err := json.Unmarshal(s.CustomProperties, &props); err != nil {
			return asset.Record{}, err
		}
	}
	return asset.Record{
		Metadata: asset.Metadata{
			ID:               asset.ID(s.ID),
			Type:             asset.Type(s.Type),
			Path:             s.Path,
			Name:             s.Name,
			Version:          s.Version,
			SizeBytes:        s.SizeBytes,
			LastModified:     s.LastModified,
			Flags:            asset.Flags(s.Flags),
			CurrentQuality:   asset.Quality(s.CurrentQuality),
			CustomProperties: props,
		},
		State:           asset.State(s.State),
		AccessCount:     s.AccessCount,
		TotalLoadTime:   time.Duration(s.TotalLoadTimeNs),
		FileHash:        s.FileHash,
		MimeType:        s.MimeType,
		CompressedSize:  s.CompressedSize,
		CompressionKind: s.CompressionKind,
		ErrorCount:      s.ErrorCount,
	}, nil
}

func fromRecord(r asset.Record) (sqlRecord, error) {
	props, err := json.Marshal(r.CustomProperties)
	if err != nil {
		return sqlRecord{}, err
	}
	return sqlRecord{
		ID:               uint64(r.ID),
		Type:             int(r.Type),
		Path:             r.Path,
		Name:             r.Name,
		Version:          r.Version,
		SizeBytes:        r.SizeBytes,
		LastModified:     r.LastModified,
		Flags:            uint64(r.Flags),
		CurrentQuality:   int(r.CurrentQuality),
		State:            int(r.State),
		CustomProperties: props,
		AccessCount:      r.AccessCount,
		TotalLoadTimeNs:  int64(r.TotalLoadTime),
		FileHash:         r.FileHash,
		MimeType:         r.MimeType,
		CompressedSize:   r.CompressedSize,
		CompressionKind:  r.CompressionKind,
		ErrorCount:       r.ErrorCount,
	}, nil
}

// SQLStore satisfies Store against Postgres via jmoiron/sqlx + lib/pq,
// with golang-migrate/migrate/v4 driving UpdateSchema. This is the
// "embedded SQL store (persisted)" half of spec §4.K; "embedded" is read
// as "in-process client library, no separate query-language service to
// shell out to" (Open Question resolution #1, DESIGN.md) — MemoryStore
// covers the literal single-process-embedded case for tests.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore opens dsn (a postgres:// connection string) and migrates the
// schema to the latest embedded version before returning.
func NewSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: connect postgres: %v", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrateTo(0); err != nil { // 0 == latest
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, cmn.Internal("store: load embedded migrations: %v", err)
	}
	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: postgres migrate driver: %v", err)
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

// migrateTo runs forward migrations up to target (spec §4.K:
// "update_schema(target) performs forward migrations"); target 0 means
// "migrate to the latest embedded version."
func (s *SQLStore) migrateTo(target uint) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if target == 0 {
		err = m.Up()
	} else {
		err = m.Migrate(target)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return cmn.NewError(cmn.ErrIO, "store: migrate: %v", err)
	}
	return nil
}

func (s *SQLStore) SchemaVersion(ctx context.Context) (int, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, err
	}
	defer m.Close()
	v, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, cmn.NewError(cmn.ErrIO, "store: schema version: %v", err)
	}
	return int(v), nil
}

func (s *SQLStore) UpdateSchema(ctx context.Context, target int) error {
	return s.migrateTo(uint(target))
}

// sqlExecer is satisfied by both *sqlx.DB and *sqlx.Tx, letting upsertTx
// run identically inside or outside a transaction.
type sqlExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLStore) Create(ctx context.Context, r asset.Record) error {
	return s.upsertTx(ctx, s.db, r)
}

func (s *SQLStore) Update(ctx context.Context, r asset.Record) error {
	return s.upsertTx(ctx, s.db, r)
}

func (s *SQLStore) upsertTx(ctx context.Context, x sqlExecer, r asset.Record) error {
	row, err := fromRecord(r)
	if err != nil {
		return cmn.NewError(cmn.ErrDecode, "store: encode record %d: %v", r.ID, err)
	}
	const q = `
INSERT INTO assets (id, type, path, name, version, size_bytes, last_modified, flags,
    current_quality, state, custom_properties, access_count, total_load_time_ns,
    file_hash, mime_type, compressed_size, compression_kind, error_count)
VALUES (:id, :type, :path, :name, :version, :size_bytes, :last_modified, :flags,
    :current_quality, :state, :custom_properties, :access_count, :total_load_time_ns,
    :file_hash, :mime_type, :compressed_size, :compression_kind, :error_count)
ON CONFLICT (id) DO UPDATE SET
    type = EXCLUDED.type, path = EXCLUDED.path, name = EXCLUDED.name,
    version = EXCLUDED.version, size_bytes = EXCLUDED.size_bytes,
    last_modified = EXCLUDED.last_modified, flags = EXCLUDED.flags,
    current_quality = EXCLUDED.current_quality, state = EXCLUDED.state,
    custom_properties = EXCLUDED.custom_properties, access_count = EXCLUDED.access_count,
    total_load_time_ns = EXCLUDED.total_load_time_ns, file_hash = EXCLUDED.file_hash,
    mime_type = EXCLUDED.mime_type, compressed_size = EXCLUDED.compressed_size,
    compression_kind = EXCLUDED.compression_kind, error_count = EXCLUDED.error_count`
	if _, err := x.NamedExecContext(ctx, q, &row); err != nil {
		return cmn.NewError(cmn.ErrIO, "store: upsert %d: %v", r.ID, err)
	}
	return s.syncTags(ctx, x, r.ID, r.Tags)
}

func (s *SQLStore) syncTags(ctx context.Context, x sqlExecer, id asset.ID, tags []string) error {
	if _, err := x.ExecContext(ctx, `DELETE FROM asset_tags WHERE asset_id = $1`, uint64(id)); err != nil {
		return cmn.NewError(cmn.ErrIO, "store: clear tags %d: %v", id, err)
	}
	for _, tag := range tags {
		if _, err := x.ExecContext(ctx,
			`INSERT INTO asset_tags (asset_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			uint64(id), tag); err != nil {
			return cmn.NewError(cmn.ErrIO, "store: insert tag %d/%s: %v", id, tag, err)
		}
	}
	return nil
}

func (s *SQLStore) loadTags(ctx context.Context, id asset.ID) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags, `SELECT tag FROM asset_tags WHERE asset_id = $1 ORDER BY tag`, uint64(id))
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: load tags %d: %v", id, err)
	}
	return tags, nil
}

func (s *SQLStore) loadDependencies(ctx context.Context, id asset.ID) ([]asset.ID, error) {
	var raw []uint64
	err := s.db.SelectContext(ctx, &raw,
		`SELECT depends_on FROM asset_dependencies WHERE asset_id = $1 ORDER BY depends_on`, uint64(id))
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: load dependencies %d: %v", id, err)
	}
	out := make([]asset.ID, len(raw))
	for i, v := range raw {
		out[i] = asset.ID(v)
	}
	return out, nil
}

func (s *SQLStore) hydrate(ctx context.Context, row sqlRecord) (asset.Record, error) {
	r, err := row.toRecord()
	if err != nil {
		return asset.Record{}, cmn.NewError(cmn.ErrDecode, "store: decode record %d: %v", row.ID, err)
	}
	tags, err := s.loadTags(ctx, r.ID)
	if err != nil {
		return asset.Record{}, err
	}
	r.Tags = tags
	deps, err := s.loadDependencies(ctx, r.ID)
	if err != nil {
		return asset.Record{}, err
	}
	r.Dependencies = deps
	return r, nil
}

func (s *SQLStore) Get(ctx context.Context, id asset.ID) (asset.Record, bool, error) {
	var row sqlRecord
	err := s.db.GetContext(ctx, &row, `SELECT * FROM assets WHERE id = $1`, uint64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return asset.Record{}, false, nil
	}
	if err != nil {
		return asset.Record{}, false, cmn.NewError(cmn.ErrIO, "store: get %d: %v", id, err)
	}
	r, err := s.hydrate(ctx, row)
	return r, err == nil, err
}

func (s *SQLStore) GetByPath(ctx context.Context, path string) (asset.Record, bool, error) {
	var row sqlRecord
	err := s.db.GetContext(ctx, &row, `SELECT * FROM assets WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return asset.Record{}, false, nil
	}
	if err != nil {
		return asset.Record{}, false, cmn.NewError(cmn.ErrIO, "store: get by path %q: %v", path, err)
	}
	r, err := s.hydrate(ctx, row)
	return r, err == nil, err
}

func (s *SQLStore) Delete(ctx context.Context, id asset.ID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, uint64(id))
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: delete %d: %v", id, err)
	}
	return nil
}

func (s *SQLStore) CreateBatch(ctx context.Context, rs []asset.Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: begin batch tx: %v", err)
	}
	for _, r := range rs {
		if err := s.upsertTx(ctx, tx, r); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return cmn.NewError(cmn.ErrIO, "store: commit batch tx: %v", err)
	}
	return nil
}

func (s *SQLStore) UpdateBatch(ctx context.Context, rs []asset.Record) error {
	return s.CreateBatch(ctx, rs)
}

func (s *SQLStore) DeleteBatch(ctx context.Context, ids []asset.ID) error {
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, f Filter) (Page, error) {
	where, args := buildWhere(f)
	order := sortColumn(f.Sort)
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	countQ := fmt.Sprintf(`SELECT count(*) FROM assets %s`, where)
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQ), args...); err != nil {
		return Page{}, cmn.NewError(cmn.ErrIO, "store: query count: %v", err)
	}

	q := fmt.Sprintf(`SELECT * FROM assets %s ORDER BY %s`, where, order)
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	} else if f.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	var rows []sqlRecord
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return Page{}, cmn.NewError(cmn.ErrIO, "store: query: %v", err)
	}
	recs := make([]asset.Record, 0, len(rows))
	for _, row := range rows {
		r, err := s.hydrate(ctx, row)
		if err != nil {
			return Page{}, err
		}
		recs = append(recs, r)
	}
	return Page{Records: recs, Total: total}, nil
}

func sortColumn(k SortKey) string {
	switch k {
	case SortBySize:
		return "size_bytes"
	case SortByLastModified:
		return "last_modified"
	case SortByAccessCount:
		return "access_count"
	default:
		return "path"
	}
}

func buildWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if len(f.Types) > 0 {
		clauses = append(clauses, "type = ANY(?)")
		types := make([]int, len(f.Types))
		for i, t := range f.Types {
			types[i] = int(t)
		}
		args = append(args, types)
	}
	if len(f.States) > 0 {
		clauses = append(clauses, "state = ANY(?)")
		states := make([]int, len(f.States))
		for i, st := range f.States {
			states[i] = int(st)
		}
		args = append(args, states)
	}
	if f.MinSize > 0 {
		clauses = append(clauses, "size_bytes >= ?")
		args = append(args, f.MinSize)
	}
	if f.MaxSize > 0 {
		clauses = append(clauses, "size_bytes <= ?")
		args = append(args, f.MaxSize)
	}
	if !f.After.IsZero() {
		clauses = append(clauses, "last_modified >= ?")
		args = append(args, f.After)
	}
	if !f.Before.IsZero() {
		clauses = append(clauses, "last_modified <= ?")
		args = append(args, f.Before)
	}
	if f.PathGlob != "" {
		clauses = append(clauses, "path LIKE ?")
		args = append(args, globToLike(f.PathGlob))
	}
	if f.HasDependsOn {
		clauses = append(clauses, "id IN (SELECT asset_id FROM asset_dependencies WHERE depends_on = ?)")
		args = append(args, uint64(f.DependsOn))
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses,
			"id IN (SELECT asset_id FROM asset_tags WHERE tag = ANY(?) GROUP BY asset_id HAVING count(DISTINCT tag) = ?)")
		args = append(args, f.Tags, len(f.Tags))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

// globToLike translates the shell-glob patterns spec §4.K's path_glob
// filter uses ("textures/*.png") into a SQL LIKE pattern; '*' -> '%',
// '?' -> '_'. Good enough for the glyph set hot-reload/registry paths
// actually use (no bracket-class globs anywhere in this domain).
func globToLike(glob string) string {
	out := make([]byte, 0, len(glob))
	for i := 0; i < len(glob); i++ {
		switch glob[i] {
		case '*':
			out = append(out, '%')
		case '?':
			out = append(out, '_')
		default:
			out = append(out, glob[i])
		}
	}
	return string(out)
}

func (s *SQLStore) AddTag(ctx context.Context, id asset.ID, tag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_tags (asset_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`, uint64(id), tag)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: add tag %d/%s: %v", id, tag, err)
	}
	return nil
}

func (s *SQLStore) RemoveTag(ctx context.Context, id asset.ID, tag string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM asset_tags WHERE asset_id = $1 AND tag = $2`, uint64(id), tag)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: remove tag %d/%s: %v", id, tag, err)
	}
	return nil
}

func (s *SQLStore) FindByTag(ctx context.Context, tag string) ([]asset.Record, error) {
	p, err := s.Query(ctx, Filter{Tags: []string{tag}})
	if err != nil {
		return nil, err
	}
	return p.Records, nil
}

func (s *SQLStore) AddDependency(ctx context.Context, a, b asset.ID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_dependencies (asset_id, depends_on) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		uint64(a), uint64(b))
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: add dependency %d -> %d: %v", a, b, err)
	}
	return nil
}

func (s *SQLStore) RemoveDependency(ctx context.Context, a, b asset.ID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM asset_dependencies WHERE asset_id = $1 AND depends_on = $2`, uint64(a), uint64(b))
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: remove dependency %d -> %d: %v", a, b, err)
	}
	return nil
}

func (s *SQLStore) Dependencies(ctx context.Context, id asset.ID) ([]asset.ID, error) {
	return s.loadDependencies(ctx, id)
}

func (s *SQLStore) Dependents(ctx context.Context, id asset.ID) ([]asset.ID, error) {
	var raw []uint64
	err := s.db.SelectContext(ctx, &raw,
		`SELECT asset_id FROM asset_dependencies WHERE depends_on = $1 ORDER BY asset_id`, uint64(id))
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "store: dependents %d: %v", id, err)
	}
	out := make([]asset.ID, len(raw))
	for i, v := range raw {
		out[i] = asset.ID(v)
	}
	return out, nil
}

// Optimize runs Postgres's ANALYZE to refresh planner statistics; Vacuum
// runs VACUUM. Both are spec §4.K maintenance operations with a direct
// Postgres equivalent, unlike buntdb's in-memory no-ops.
func (s *SQLStore) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ANALYZE assets`); err != nil {
		return cmn.NewError(cmn.ErrIO, "store: analyze: %v", err)
	}
	return nil
}

func (s *SQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM assets`); err != nil {
		return cmn.NewError(cmn.ErrIO, "store: vacuum: %v", err)
	}
	return nil
}

// Backup dumps every record (plus tags/dependencies) to path as JSON via
// cmn/jsp's atomic write-tmp-fsync-rename — simpler and more portable
// across Postgres versions than shelling out to pg_dump, and it round-trips
// through the exact same asset.Record Restore reads back.
func (s *SQLStore) Backup(ctx context.Context, path string) error {
	p, err := s.Query(ctx, Filter{})
	if err != nil {
		return err
	}
	return jsp.Save(path, p.Records)
}

func (s *SQLStore) Restore(ctx context.Context, path string) error {
	var recs []asset.Record
	if err := jsp.Load(path, &recs); err != nil {
		return err
	}
	if err := s.UpdateBatch(ctx, recs); err != nil {
		return err
	}
	for _, r := range recs {
		for _, dep := range r.Dependencies {
			if err := s.AddDependency(ctx, r.ID, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLStore) IntegrityCheck(ctx context.Context) error {
	var orphans int
	err := s.db.GetContext(ctx, &orphans, `
SELECT count(*) FROM asset_dependencies d
WHERE NOT EXISTS (SELECT 1 FROM assets a WHERE a.id = d.depends_on)`)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "store: integrity check: %v", err)
	}
	if orphans > 0 {
		return cmn.NewError(cmn.ErrDependencyMissing, "store: integrity check: %d dangling dependency edges", orphans)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
