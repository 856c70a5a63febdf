package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tagger/internal/tagging"
)

var tagCols = []string{"id", "name", "descri", "created_at", "updated_at"}

func newMockStore(t *testing.T, dialect string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	s, err := NewSQLStore(db, SQLOptions{Dialect: dialect, Type: "article"})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return s, mock
}

func TestBuildTableName(t *testing.T) {
	tests := []struct {
		name string
		opts SQLOptions
		want string
	}{
		{"bare", SQLOptions{}, "tag"},
		{"type", SQLOptions{Type: "article"}, "article_tag"},
		{"prefix", SQLOptions{TablePrefix: "app", Type: "article"}, "app_article_tag"},
		{"separator", SQLOptions{TablePrefix: "app", Type: "article", TableSeparator: "__"}, "app__article__tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildTableName(tt.opts, tableTag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := buildTableName(SQLOptions{Type: "a-b"}, tableTag)
	assert.Error(t, err)
	_, err = buildTableName(SQLOptions{Type: "a", TableSeparator: "; DROP"}, tableTag)
	assert.Error(t, err)
}

func TestOpenSQL_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "tags.db")

	s, err := OpenSQL(context.Background(), dbPath, SQLOptions{Dialect: DialectSQLite})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestSync_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Sync(context.Background()))

	var n int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('test_tag', 'test_relationship')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLStore_TypesAreIsolated(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	db, err := openSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	articles, err := NewSQLStore(db, SQLOptions{Dialect: DialectSQLite, Type: "article"})
	require.NoError(t, err)
	users, err := NewSQLStore(db, SQLOptions{Dialect: DialectSQLite, Type: "user"})
	require.NoError(t, err)
	require.NoError(t, articles.Sync(ctx))
	require.NoError(t, users.Sync(ctx))

	r, err := articles.New(ctx, tagging.TagDefine{Name: "go"})
	require.NoError(t, err)
	require.True(t, r.Success)

	r, err = users.New(ctx, tagging.TagDefine{Name: "go"})
	require.NoError(t, err)
	assert.True(t, r.Success, "same name in another type is a different tag")
	assert.Equal(t, uint64(1), r.ID)

	// Closing a store over a shared handle leaves the handle open.
	require.NoError(t, articles.Close())
	assert.NoError(t, db.Ping())
}

func TestSQLStore_NewOperError(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("go").
		WillReturnRows(sqlmock.NewRows(tagCols))
	mock.ExpectQuery(`INSERT INTO article_tag (name, descri, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`).
		WithArgs("go", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	r, err := s.New(context.Background(), tagging.TagDefine{Name: "go"})
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Equal(t, tagging.OperErrorKind, r.Message)
	assert.ErrorIs(t, r.Err(), tagging.ErrOperation)
}

func TestSQLStore_NewCommits(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("go").
		WillReturnRows(sqlmock.NewRows(tagCols))
	mock.ExpectQuery(`INSERT INTO article_tag (name, descri, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`).
		WithArgs("go", "golang", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	r, err := s.New(context.Background(), tagging.TagDefine{Name: "go", Desc: "golang"})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(7), r.ID)
}

func TestSQLStore_RemoveOperError(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE id = $1`).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(3, "go", "", now, now))
	mock.ExpectExec(`DELETE FROM article_relationship WHERE tid = $1`).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM article_tag WHERE id = $1`).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	r, err := s.Remove(context.Background(), tagging.ByID(3))
	require.NoError(t, err)
	assert.Equal(t, tagging.OperErrorKind, r.Message)
}

func TestSQLStore_UpdateStatement(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("go").
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(3, "go", "", now, now))
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("golang").
		WillReturnRows(sqlmock.NewRows(tagCols))
	mock.ExpectExec(`UPDATE article_tag SET name = $1, descri = $2, updated_at = $3 WHERE id = $4`).
		WithArgs("golang", "the language", sqlmock.AnyArg(), uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, desc := "golang", "the language"
	r, err := s.Update(context.Background(), tagging.ByName("go"), tagging.TagPatch{Name: &name, Desc: &desc})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(3), r.ID)
}

func TestSQLStore_BindRollsBackOnMissingTag(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE id = $1`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(1, "go", "", now, now))
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("xxx").
		WillReturnRows(sqlmock.NewRows(tagCols))
	mock.ExpectRollback()

	r, err := s.Bind(context.Background(), tagging.BindOptions{
		InstanceID: 5,
		Tags:       []tagging.Ref{tagging.ByID(1), tagging.ByName("xxx")},
	})
	require.NoError(t, err)
	assert.Equal(t, tagging.NotExistsKind, r.Message)
	assert.Equal(t, tagging.ByName("xxx"), *r.Tag)
}

func TestSQLStore_BindStatements(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE id = $1`).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(1, "go", "", now, now))
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("new").
		WillReturnRows(sqlmock.NewRows(tagCols))
	mock.ExpectQuery(`INSERT INTO article_tag (name, descri, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`).
		WithArgs("new", tagging.AutoCreateDesc, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	insert := `INSERT INTO article_relationship (tid, inid, created_at) VALUES ($1, $2, $3) ON CONFLICT (tid, inid) DO NOTHING`
	mock.ExpectExec(insert).WithArgs(uint64(1), uint64(5), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs(uint64(2), uint64(5), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	r, err := s.Bind(context.Background(), tagging.BindOptions{
		InstanceID:    5,
		Tags:          []tagging.Ref{tagging.ByID(1), tagging.ByName("new")},
		AutoCreateTag: true,
	})
	require.NoError(t, err)
	assert.True(t, r.Success)
}

func TestSQLStore_DriverErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t, DialectSQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = ?`).
		WithArgs("go").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := s.New(context.Background(), tagging.TagDefine{Name: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestSQLStore_ListStatements(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	now := time.Now()
	where := `WHERE id IN ($1) OR name LIKE $2 ESCAPE '\'`

	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag `+where+` ORDER BY id LIMIT 10 OFFSET 10`).
		WithArgs(uint64(2), "test9%").
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(95, "test95", "", now, now))
	mock.ExpectQuery(`SELECT COUNT(*) FROM article_tag ` + where).
		WithArgs(uint64(2), "test9%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	res, err := s.List(context.Background(), tagging.ListOptions{
		Pagination: tagging.Pagination{Page: 2, PageSize: 10, Count: true},
		Match:      []tagging.Ref{tagging.ByID(2), tagging.ByName("test9%")},
	})
	require.NoError(t, err)
	require.Len(t, res.List, 1)
	assert.Equal(t, "test95", res.List[0].Name)
	assert.Equal(t, 12, *res.Total)
}

func TestSQLStore_ListEmptyWindowSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)

	mock.ExpectQuery(`SELECT COUNT(*) FROM article_tag`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	res, err := s.List(context.Background(), tagging.ListOptions{
		Pagination: tagging.Pagination{Page: 2, PageSize: tagging.All, Count: true},
	})
	require.NoError(t, err)
	assert.Empty(t, res.List)
	assert.Equal(t, 4, *res.Total)
}

func TestSQLStore_ListInstanceStatements(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	now := time.Now()
	matched := `SELECT inid FROM article_relationship WHERE tid IN ($1, $2) GROUP BY inid HAVING COUNT(*) = 2`

	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE id = $1`).
		WithArgs(uint64(16)).
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(16, "test16", "", now, now))
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE name = $1`).
		WithArgs("test32").
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(32, "test32", "", now, now))
	mock.ExpectQuery(`SELECT id, name, descri, created_at, updated_at FROM article_tag WHERE id = $1`).
		WithArgs(uint64(16)).
		WillReturnRows(sqlmock.NewRows(tagCols).AddRow(16, "test16", "", now, now))
	mock.ExpectQuery(matched+` ORDER BY MAX(id) LIMIT 20 OFFSET 0`).
		WithArgs(uint64(16), uint64(32)).
		WillReturnRows(sqlmock.NewRows([]string{"inid"}).AddRow(4).AddRow(8))
	mock.ExpectQuery(`SELECT COUNT(*) FROM (`+matched+`) matched`).
		WithArgs(uint64(16), uint64(32)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	res, err := s.ListInstance(context.Background(), tagging.ListInstanceOptions{
		Pagination: tagging.Pagination{Page: 1, PageSize: 20, Count: true},
		Tags:       []tagging.Ref{tagging.ByID(16), tagging.ByName("test32"), tagging.ByID(16)},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 8}, res.List)
	assert.Equal(t, 2, *res.Total)
}
