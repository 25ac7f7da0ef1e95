package sqlstore

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/testutil"
)

// setupSQLite opens a private in-memory database with every fixture table
func setupSQLite(t *testing.T) (*sql.DB, repositories.StaticRegistry) {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_time_format=sqlite")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := testutil.Schema(t)
	require.NoError(t, EnsureSchema(context.Background(), db, SQLite, schema))
	return db, NewRegistry(db, SQLite, schema)
}

func storage(t *testing.T, reg repositories.StaticRegistry, name string) repositories.Storage {
	t.Helper()
	s, err := reg.Storage(name)
	require.NoError(t, err)
	return s
}

func ids(records []entities.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID("id")
	}
	return out
}

func TestStore_SQLiteCRUD(t *testing.T) {
	_, reg := setupSQLite(t)
	comments := storage(t, reg, "comment")
	ctx := context.Background()

	created, err := comments.CreateInTransaction(ctx, entities.Record{"id": "C1", "text": "first", "rank": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created["rank"])
	assert.Nil(t, created["study_comments_fk"])

	_, err = comments.CreateInTransaction(ctx, entities.Record{"id": "C2", "text": "second", "study_comments_fk": "S1"})
	require.NoError(t, err)
	_, err = comments.CreateInTransaction(ctx, entities.Record{"id": "C3", "text": "third", "rank": 1})
	require.NoError(t, err)

	t.Run("null sorts first ascending", func(t *testing.T) {
		records, err := comments.Find(ctx, &repositories.Query{Order: []search.Order{{Field: "rank", Direction: search.ASC}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"C2", "C3", "C1"}, ids(records))
	})

	t.Run("null sorts last descending", func(t *testing.T) {
		records, err := comments.Find(ctx, &repositories.Query{Order: []search.Order{{Field: "rank", Direction: search.DESC}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"C1", "C3", "C2"}, ids(records))
	})

	t.Run("count", func(t *testing.T) {
		n, err := comments.Count(ctx, search.NotNull("rank"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("update by id", func(t *testing.T) {
		rec, err := comments.UpdateByID(ctx, "C1", entities.Record{"text": "changed"})
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "changed", rec["text"])
		assert.Equal(t, int64(3), rec["rank"])

		rec, err = comments.UpdateByID(ctx, "missing", entities.Record{"text": "x"})
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("guarded update where", func(t *testing.T) {
		guard := search.And(search.Eq("id", "C2"), search.Eq("study_comments_fk", "S9"))
		n, err := comments.UpdateWhere(ctx, guard, entities.Record{"study_comments_fk": nil})
		require.NoError(t, err)
		assert.Zero(t, n)

		guard = search.And(search.Eq("id", "C2"), search.Eq("study_comments_fk", "S1"))
		n, err = comments.UpdateWhere(ctx, guard, entities.Record{"study_comments_fk": nil})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("delete", func(t *testing.T) {
		ok, err := comments.DeleteByID(ctx, "C3")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = comments.DeleteByID(ctx, "C3")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_SQLiteArraysAndTimes(t *testing.T) {
	_, reg := setupSQLite(t)
	ctx := context.Background()

	materials := storage(t, reg, "material")
	_, err := materials.CreateInTransaction(ctx, entities.Record{
		"id":                      "M1",
		"weight":                  1.5,
		"ontology_annotation_ids": []string{"A1", "A2"},
	})
	require.NoError(t, err)

	rec, err := repositories.FindByID(ctx, materials, "id", "M1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []any{"A1", "A2"}, rec["ontology_annotation_ids"])
	assert.Equal(t, 1.5, rec["weight"])

	studies := storage(t, reg, "study")
	start := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	_, err = studies.CreateInTransaction(ctx, entities.Record{"id": "S1", "name": "drought", "start_date": start})
	require.NoError(t, err)

	rec, err = repositories.FindByID(ctx, studies, "id", "S1")
	require.NoError(t, err)
	got, ok := rec["start_date"].(time.Time)
	require.True(t, ok, "start_date decodes to time.Time, got %T", rec["start_date"])
	assert.True(t, start.Equal(got))

	records, err := studies.Find(ctx, &repositories.Query{Search: search.Gt("start_date", "2024-01-01T00:00:00Z")})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, ids(records))
}

func TestStore_SQLiteCreateManyRollsBack(t *testing.T) {
	_, reg := setupSQLite(t)
	comments := storage(t, reg, "comment")
	ctx := context.Background()

	_, err := comments.CreateInTransaction(ctx, entities.Record{"id": "C1"})
	require.NoError(t, err)

	_, err = comments.CreateManyInTransaction(ctx, []entities.Record{{"id": "C2"}, {"id": "C1"}})
	require.Error(t, err)

	n, err := comments.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "failed batch leaves nothing behind")

	created, err := comments.CreateManyInTransaction(ctx, []entities.Record{{"id": "C2"}, {"id": "C3"}})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}

type recordingObserver struct {
	ops []string
}

func (o *recordingObserver) ObserveQuery(entityType, operation string, seconds float64, err error) {
	o.ops = append(o.ops, entityType+"."+operation)
}

func TestStore_PostgresStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	obs := &recordingObserver{}
	s := New(db, Postgres, commentDef(t), WithObserver(obs))
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments" SET "text" = $1 WHERE "id" = $2`)).
		WithArgs("changed", "C1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "text", "rank", "study_comments_fk" FROM "comments" WHERE "id" = $1`)).
		WithArgs("C1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "rank", "study_comments_fk"}).AddRow("C1", "changed", int64(2), nil))
	mock.ExpectCommit()

	rec, err := s.UpdateByID(ctx, "C1", entities.Record{"text": "changed"})
	require.NoError(t, err)
	assert.Equal(t, entities.Record{"id": "C1", "text": "changed", "rank": int64(2), "study_comments_fk": nil}, rec)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "text", "rank", "study_comments_fk" FROM "comments" WHERE "id" = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "rank", "study_comments_fk"}).
			AddRow("C1", "a", []byte("1"), "S1").
			AddRow("C2", "b", nil, nil))

	records, err := s.Find(ctx, &repositories.Query{Search: search.In("id", "C1", "C2")})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, ids(records))
	assert.Equal(t, int64(1), records[0]["rank"])

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "comments" WHERE "id" = $1`)).
		WithArgs("C9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.DeleteByID(ctx, "C9")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"comment.update", "comment.find", "comment.delete"}, obs.ops)
}

func TestStore_PostgresUpdateRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres, commentDef(t))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments"`)).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err = s.UpdateByID(context.Background(), "C1", entities.Record{"text": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}
