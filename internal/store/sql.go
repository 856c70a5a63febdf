package store

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joescharf/tagger/internal/logger"
	"github.com/joescharf/tagger/internal/models"
	"github.com/joescharf/tagger/internal/tagging"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql.tmpl
var schemaFS embed.FS

const (
	tableTag          = "tag"
	tableRelationship = "relationship"

	tagColumns = "id, name, descri, created_at, updated_at"
)

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SQLOptions selects the flavor and the table naming of a SQLStore.
type SQLOptions struct {
	Dialect        string
	Type           string
	TablePrefix    string
	TableSeparator string
}

// SQLStore implements tagging.Dialect on a relational database.
type SQLStore struct {
	db     *sql.DB
	ownsDB bool
	flavor flavor
	tag    string
	rel    string
	now    func() time.Time
	log    *zap.SugaredLogger
}

var _ tagging.Dialect = (*SQLStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLStore wraps a caller-owned database handle. Close does not close db.
func NewSQLStore(db *sql.DB, opts SQLOptions) (*SQLStore, error) {
	f, err := flavorFor(opts.Dialect)
	if err != nil {
		return nil, err
	}
	tag, err := buildTableName(opts, tableTag)
	if err != nil {
		return nil, err
	}
	rel, err := buildTableName(opts, tableRelationship)
	if err != nil {
		return nil, err
	}
	return &SQLStore{
		db:     db,
		flavor: f,
		tag:    tag,
		rel:    rel,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.ComponentLogger("store.sql").With(logger.FieldDialect, f.name),
	}, nil
}

// buildTableName joins prefix, type and table with the separator (default "_").
func buildTableName(opts SQLOptions, table string) (string, error) {
	sep := opts.TableSeparator
	if sep == "" {
		sep = "_"
	}
	var parts []string
	if opts.TablePrefix != "" {
		parts = append(parts, opts.TablePrefix)
	}
	if opts.Type != "" {
		parts = append(parts, opts.Type)
	}
	parts = append(parts, table)
	name := strings.Join(parts, sep)
	if !identPattern.MatchString(name) {
		return "", errors.WithHint(
			errors.Newf("invalid table name %q", name),
			"type, table_prefix and table_separator may only contain letters, digits and underscores",
		)
	}
	return name, nil
}

// OpenSQL opens the database named by dsn and wraps it. The returned store owns
// the connection and closes it on Close.
func OpenSQL(ctx context.Context, dsn string, opts SQLOptions) (*SQLStore, error) {
	f, err := flavorFor(opts.Dialect)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch f.name {
	case DialectSQLite:
		db, err = openSQLite(dsn)
	default:
		db, err = sql.Open(f.driverName, dsn)
		if err == nil {
			if err = db.PingContext(ctx); err != nil {
				_ = db.Close()
			}
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", f.name)
	}

	s, err := NewSQLStore(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// openSQLite opens (or creates) a SQLite database at path.
func openSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "create db directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection serializes writers and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "exec %s", pragma)
		}
	}
	return db, nil
}

// Sync creates the tag and relationship tables when they do not exist yet.
func (s *SQLStore) Sync(ctx context.Context) error {
	tmpl, err := template.ParseFS(schemaFS, s.flavor.schema)
	if err != nil {
		return errors.Wrap(err, "parse schema template")
	}
	var buf bytes.Buffer
	data := struct{ Tag, Relationship string }{Tag: s.tag, Relationship: s.rel}
	if err := tmpl.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "render schema")
	}
	if _, err := s.db.ExecContext(ctx, buf.String()); err != nil {
		return errors.Wrapf(err, "create tables %s, %s", s.tag, s.rel)
	}
	s.log.Infow("schema synced", "tag_table", s.tag, "relationship_table", s.rel)
	return nil
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) q(query string, args ...any) string {
	return s.flavor.rebind(fmt.Sprintf(query, args...))
}

// inTx runs fn in a transaction, committing only successful results. Failed
// results roll back so no partial write survives.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (tagging.Result, error)) (tagging.Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tagging.Result{}, errors.Wrap(err, "begin transaction")
	}
	r, err := fn(tx)
	if err != nil || !r.Success {
		_ = tx.Rollback()
		return r, err
	}
	if err := tx.Commit(); err != nil {
		return tagging.Result{}, errors.Wrap(err, "commit transaction")
	}
	return r, nil
}

func scanTag(row interface{ Scan(...any) error }) (*models.Tag, error) {
	t := &models.Tag{}
	if err := row.Scan(&t.ID, &t.Name, &t.Desc, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// findTag resolves a ref. A missing tag is (nil, nil).
func (s *SQLStore) findTag(ctx context.Context, q querier, ref tagging.Ref) (*models.Tag, error) {
	var row *sql.Row
	if ref.IsID() {
		row = q.QueryRowContext(ctx, s.q("SELECT "+tagColumns+" FROM %s WHERE id = ?", s.tag), ref.ID)
	} else {
		row = q.QueryRowContext(ctx, s.q("SELECT "+tagColumns+" FROM %s WHERE name = ?", s.tag), ref.Name)
	}
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get tag %s", ref)
	}
	return t, nil
}

func (s *SQLStore) insertTag(ctx context.Context, q querier, def tagging.TagDefine) (uint64, error) {
	now := s.now()
	var id uint64
	err := q.QueryRowContext(ctx,
		s.q("INSERT INTO %s (name, descri, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id", s.tag),
		def.Name, def.Desc, now, now,
	).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "insert tag")
	}
	return id, nil
}

func (s *SQLStore) New(ctx context.Context, def tagging.TagDefine) (tagging.Result, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (tagging.Result, error) {
		existing, err := s.findTag(ctx, tx, tagging.ByName(def.Name))
		if err != nil {
			return tagging.Result{}, err
		}
		if existing != nil {
			return tagging.Exists(existing.ID), nil
		}
		id, err := s.insertTag(ctx, tx, def)
		if err != nil {
			return tagging.Result{}, err
		}
		if id == 0 {
			return tagging.OperError(), nil
		}
		return tagging.Ok(id), nil
	})
}

func (s *SQLStore) Remove(ctx context.Context, ref tagging.Ref) (tagging.Result, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (tagging.Result, error) {
		t, err := s.findTag(ctx, tx, ref)
		if err != nil {
			return tagging.Result{}, err
		}
		if t == nil {
			return tagging.NotExists(ref), nil
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE tid = ?", s.rel), t.ID); err != nil {
			return tagging.Result{}, errors.Wrap(err, "delete tag relationships")
		}
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE id = ?", s.tag), t.ID)
		if err != nil {
			return tagging.Result{}, errors.Wrap(err, "delete tag")
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return tagging.OperError(), nil
		}
		return tagging.Ok(t.ID), nil
	})
}

func (s *SQLStore) Update(ctx context.Context, ref tagging.Ref, patch tagging.TagPatch) (tagging.Result, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (tagging.Result, error) {
		t, err := s.findTag(ctx, tx, ref)
		if err != nil {
			return tagging.Result{}, err
		}
		if t == nil {
			return tagging.NotExists(ref), nil
		}

		var sets []string
		var args []any
		if patch.Name != nil && *patch.Name != t.Name {
			other, err := s.findTag(ctx, tx, tagging.ByName(*patch.Name))
			if err != nil {
				return tagging.Result{}, err
			}
			if other != nil {
				return tagging.Exists(other.ID), nil
			}
			sets = append(sets, "name = ?")
			args = append(args, *patch.Name)
		}
		if patch.Desc != nil {
			sets = append(sets, "descri = ?")
			args = append(args, *patch.Desc)
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, s.now(), t.ID)

		res, err := tx.ExecContext(ctx,
			s.q("UPDATE %s SET %s WHERE id = ?", s.tag, strings.Join(sets, ", ")), args...)
		if err != nil {
			return tagging.Result{}, errors.Wrap(err, "update tag")
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return tagging.OperError(), nil
		}
		return tagging.Ok(t.ID), nil
	})
}

// limitClause renders the page window. ok is false when the window is empty.
func limitClause(p tagging.Pagination) (clause string, ok bool) {
	start, end := p.Window()
	start = max(start, 0)
	if end <= start {
		return "", false
	}
	if end == math.MaxInt {
		return "", true
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", end-start, start), true
}

func (s *SQLStore) matchCondition(match []tagging.Ref) (string, []any) {
	var conds []string
	var args []any
	var ids []string
	for _, m := range match {
		if m.IsID() {
			ids = append(ids, "?")
			args = append(args, m.ID)
		}
	}
	if len(ids) > 0 {
		conds = append(conds, "id IN ("+strings.Join(ids, ", ")+")")
	}
	for _, m := range match {
		if m.IsID() {
			continue
		}
		cond, arg := s.flavor.nameCondition(tagging.ParsePattern(m.Name))
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " OR "), args
}

func (s *SQLStore) List(ctx context.Context, opts tagging.ListOptions) (tagging.ListResult[models.Tag], error) {
	out := tagging.ListResult[models.Tag]{List: []models.Tag{}}
	where, args := s.matchCondition(opts.Match)

	if limit, ok := limitClause(opts.Pagination); ok {
		rows, err := s.db.QueryContext(ctx,
			s.q("SELECT "+tagColumns+" FROM %s%s ORDER BY id%s", s.tag, where, limit), args...)
		if err != nil {
			return out, errors.Wrap(err, "list tags")
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTag(rows)
			if err != nil {
				return out, errors.Wrap(err, "scan tag")
			}
			out.List = append(out.List, *t)
		}
		if err := rows.Err(); err != nil {
			return out, errors.Wrap(err, "list tags")
		}
	}

	if opts.Count {
		var total int
		if err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM %s%s", s.tag, where), args...).Scan(&total); err != nil {
			return out, errors.Wrap(err, "count tags")
		}
		out.Total = tagging.Total(total)
	}
	return out, nil
}

func (s *SQLStore) Bind(ctx context.Context, opts tagging.BindOptions) (tagging.Result, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (tagging.Result, error) {
		ids := make([]uint64, len(opts.Tags))
		var missing []int
		for i, ref := range opts.Tags {
			t, err := s.findTag(ctx, tx, ref)
			if err != nil {
				return tagging.Result{}, err
			}
			if t != nil {
				ids[i] = t.ID
				continue
			}
			if ref.IsID() || !opts.AutoCreateTag {
				return tagging.NotExists(ref), nil
			}
			missing = append(missing, i)
		}

		created := make(map[string]uint64)
		for _, i := range missing {
			name := opts.Tags[i].Name
			if id, ok := created[name]; ok {
				ids[i] = id
				continue
			}
			id, err := s.insertTag(ctx, tx, tagging.TagDefine{Name: name, Desc: tagging.AutoCreateDesc})
			if err != nil {
				return tagging.Result{}, err
			}
			if id == 0 {
				return tagging.OperError(), nil
			}
			created[name] = id
			ids[i] = id
		}

		now := s.now()
		insert := s.q("INSERT INTO %s (tid, inid, created_at) VALUES (?, ?, ?) ON CONFLICT (tid, inid) DO NOTHING", s.rel)
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, insert, id, opts.InstanceID, now); err != nil {
				return tagging.Result{}, errors.Wrap(err, "insert relationship")
			}
		}
		return tagging.Ok(0), nil
	})
}

func (s *SQLStore) Unbind(ctx context.Context, opts tagging.UnbindOptions) (tagging.Result, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (tagging.Result, error) {
		del := s.q("DELETE FROM %s WHERE tid = ? AND inid = ?", s.rel)
		for _, ref := range opts.Tags {
			t, err := s.findTag(ctx, tx, ref)
			if err != nil {
				return tagging.Result{}, err
			}
			if t == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx, del, t.ID, opts.InstanceID); err != nil {
				return tagging.Result{}, errors.Wrap(err, "delete relationship")
			}
		}
		return tagging.Ok(0), nil
	})
}

func (s *SQLStore) ListInstance(ctx context.Context, opts tagging.ListInstanceOptions) (tagging.ListResult[uint64], error) {
	out := tagging.ListResult[uint64]{List: []uint64{}}

	var tagIDs []any
	seen := make(map[uint64]bool)
	for _, ref := range opts.Tags {
		t, err := s.findTag(ctx, s.db, ref)
		if err != nil {
			return out, err
		}
		if t == nil {
			if opts.Count {
				out.Total = tagging.Total(0)
			}
			return out, nil
		}
		if !seen[t.ID] {
			seen[t.ID] = true
			tagIDs = append(tagIDs, t.ID)
		}
	}

	// An instance is listed once its last required pair exists, so it sorts by
	// the newest of those pairs. With no tags it sorts by its first pair.
	var matched, order string
	args := tagIDs
	if len(tagIDs) == 0 {
		matched = s.q("SELECT inid FROM %s GROUP BY inid", s.rel)
		order = "MIN(id)"
	} else {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(tagIDs)), ", ")
		matched = s.q("SELECT inid FROM %s WHERE tid IN (%s) GROUP BY inid HAVING COUNT(*) = %d", s.rel, marks, len(tagIDs))
		order = "MAX(id)"
	}

	if limit, ok := limitClause(opts.Pagination); ok {
		rows, err := s.db.QueryContext(ctx, matched+" ORDER BY "+order+limit, args...)
		if err != nil {
			return out, errors.Wrap(err, "list instances")
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				return out, errors.Wrap(err, "scan instance")
			}
			out.List = append(out.List, id)
		}
		if err := rows.Err(); err != nil {
			return out, errors.Wrap(err, "list instances")
		}
	}

	if opts.Count {
		var total int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+matched+") matched", args...).Scan(&total); err != nil {
			return out, errors.Wrap(err, "count instances")
		}
		out.Total = tagging.Total(total)
	}
	return out, nil
}

func (s *SQLStore) ListInstanceTags(ctx context.Context, opts tagging.ListInstanceTagsOptions) (tagging.ListResult[models.Tag], error) {
	out := tagging.ListResult[models.Tag]{List: []models.Tag{}}

	if limit, ok := limitClause(opts.Pagination); ok {
		rows, err := s.db.QueryContext(ctx, s.q(
			`SELECT t.id, t.name, t.descri, t.created_at, t.updated_at
			FROM %s r JOIN %s t ON t.id = r.tid
			WHERE r.inid = ? ORDER BY r.id%s`, s.rel, s.tag, limit), opts.InstanceID)
		if err != nil {
			return out, errors.Wrap(err, "list instance tags")
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTag(rows)
			if err != nil {
				return out, errors.Wrap(err, "scan tag")
			}
			out.List = append(out.List, *t)
		}
		if err := rows.Err(); err != nil {
			return out, errors.Wrap(err, "list instance tags")
		}
	}

	if opts.Count {
		var total int
		if err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM %s WHERE inid = ?", s.rel), opts.InstanceID).Scan(&total); err != nil {
			return out, errors.Wrap(err, "count instance tags")
		}
		out.Total = tagging.Total(total)
	}
	return out, nil
}
