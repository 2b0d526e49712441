package pivot

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/dbexec"
	"resourcekit/internal/resterr"
	"resourcekit/internal/sqlutil"
)

const (
	selectPivotSQL = "SELECT `tag_id` FROM `article_tags` WHERE `article_id` = ?"
	deletePivotSQL = "DELETE FROM `article_tags` WHERE (`article_id` = ? AND `tag_id` IN (?))"
)

func tagsSpec() Spec {
	return Spec{
		Table:          "article_tags",
		ForeignKey:     "article_id",
		OtherKey:       "tag_id",
		Relationship:   "tags",
		TargetResource: "tags",
		TargetTable:    "tags",
		TargetIDColumn: "id",
	}
}

func newMock(t *testing.T) (dbexec.QueryExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return dbexec.NewStandardExecutor(db), mock
}

func exact(sql string) string {
	return "^" + regexp.QuoteMeta(sql) + "$"
}

func TestSync_NoChangeMeansNoWrite(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(2)).AddRow(int64(1)))

	result, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, tagsSpec(), "1", []string{"1", "2", "1"})
	require.NoError(t, err)
	assert.False(t, result.Changed())
	assert.Equal(t, []string{"1", "2"}, result.Unchanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_DeletesThenInserts(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectQuery(exact("SELECT `id` FROM `tags` WHERE `id` IN (?,?)")).
		WithArgs("3", "4").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(4)))
	mock.ExpectExec(exact(deletePivotSQL)).
		WithArgs("1", "2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(exact("INSERT INTO `article_tags` (`article_id`,`tag_id`) VALUES (?,?),(?,?)")).
		WithArgs("1", "3", "1", "4").
		WillReturnResult(sqlmock.NewResult(0, 2))

	result, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, tagsSpec(), "1", []string{"3", "1", "4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, result.Added)
	assert.Equal(t, []string{"2"}, result.Removed)
	assert.Equal(t, []string{"1"}, result.Unchanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_EmptyDesiredClears(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(5)))
	mock.ExpectExec(exact(deletePivotSQL)).
		WithArgs("1", "5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, tagsSpec(), "1", []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, result.Removed)
	assert.Empty(t, result.Added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_MissingTargetBlocksAllWrites(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(2)))
	mock.ExpectQuery(exact("SELECT `id` FROM `tags` WHERE `id` IN (?,?)")).
		WithArgs("3", "99").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	_, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, tagsSpec(), "1", []string{"3", "99"})
	require.Error(t, err)

	var rerr *resterr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, resterr.KindNotFound, rerr.Kind)
	assert.Equal(t, "tags", rerr.ResourceType)
	assert.Equal(t, "99", rerr.ResourceID)
	assert.Equal(t, "tags", rerr.Relationship)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_ValidationDisabled(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}))
	mock.ExpectExec(exact("INSERT INTO `article_tags` (`article_id`,`tag_id`) VALUES (?,?)")).
		WithArgs("1", "7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	skip := false
	spec := tagsSpec()
	spec.ValidateExists = &skip

	_, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, spec, "1", []string{"7"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	exec, mock = newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}))
	mock.ExpectExec(exact("INSERT INTO `article_tags` (`article_id`,`tag_id`) VALUES (?,?)")).
		WithArgs("1", "7").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = NewSynchronizer(sqlutil.MySQL, WithValidateExists(false)).Sync(context.Background(), exec, tagsSpec(), "1", []string{"7"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_DuplicateInsertIsConflict(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}))
	mock.ExpectExec("^INSERT INTO `article_tags`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := NewSynchronizer(sqlutil.MySQL, WithValidateExists(false)).Sync(context.Background(), exec, tagsSpec(), "1", []string{"7"})
	require.Error(t, err)
	assert.Equal(t, resterr.KindConflict, resterr.KindOf(err))
	assert.ErrorIs(t, err, resterr.Conflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_LoadFailure(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).WillReturnError(errors.New("connection reset"))

	_, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, tagsSpec(), "1", []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_InvalidSpec(t *testing.T) {
	exec, mock := newMock(t)
	_, err := NewSynchronizer(sqlutil.MySQL).Sync(context.Background(), exec, Spec{Relationship: "tags"}, "1", nil)
	assert.Equal(t, resterr.KindConfiguration, resterr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_PostgresPlaceholders(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(`SELECT "tag_id" FROM "article_tags" WHERE "article_id" = $1`)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(1)))
	mock.ExpectExec(exact(`DELETE FROM "article_tags" WHERE ("article_id" = $1 AND "tag_id" IN ($2))`)).
		WithArgs("1", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := NewSynchronizer(sqlutil.Postgres).Sync(context.Background(), exec, tagsSpec(), "1", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePivotRecords(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact("SELECT `id` FROM `tags` WHERE `id` IN (?,?)")).
		WithArgs("1", "2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectExec(exact("INSERT INTO `article_tags` (`article_id`,`tag_id`) VALUES (?,?),(?,?)")).
		WithArgs("9", "1", "9", "2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	result, err := NewSynchronizer(sqlutil.MySQL).CreatePivotRecords(context.Background(), exec, tagsSpec(), "9", []string{"1", "2", "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, result.Added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePivotRecords_Empty(t *testing.T) {
	exec, mock := newMock(t)
	result, err := NewSynchronizer(sqlutil.MySQL).CreatePivotRecords(context.Background(), exec, tagsSpec(), "9", nil)
	require.NoError(t, err)
	assert.False(t, result.Changed())
	require.NoError(t, mock.ExpectationsWereMet())
}

type stubChecker struct {
	missing []string
	calls   int
}

func (s *stubChecker) Missing(ctx context.Context, exec dbexec.QueryExecutor, spec Spec, ids []string) ([]string, error) {
	s.calls++
	return s.missing, nil
}

func TestSync_CustomChecker(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact(selectPivotSQL)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}))

	checker := &stubChecker{missing: []string{"5"}}
	_, err := NewSynchronizer(sqlutil.MySQL, WithChecker(checker)).Sync(context.Background(), exec, tagsSpec(), "1", []string{"5"})
	assert.Equal(t, resterr.KindNotFound, resterr.KindOf(err))
	assert.Equal(t, 1, checker.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLChecker_Batches(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact("SELECT `id` FROM `tags` WHERE `id` IN (?,?)")).
		WithArgs("1", "2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(exact("SELECT `id` FROM `tags` WHERE `id` IN (?)")).
		WithArgs("3").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	missing, err := SQLChecker{Dialect: sqlutil.MySQL, BatchSize: 2}.Missing(context.Background(), exec, tagsSpec(), []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckExists_ReadsOnly(t *testing.T) {
	exec, mock := newMock(t)
	mock.ExpectQuery(exact("SELECT `id` FROM `tags` WHERE `id` IN (?,?)")).
		WithArgs("3", "99").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	err := NewSynchronizer(sqlutil.MySQL).CheckExists(context.Background(), exec, tagsSpec(), []string{"3", "99", "3"})
	require.Error(t, err)
	assert.Equal(t, resterr.KindNotFound, resterr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckExists_SkippedWhenDisabled(t *testing.T) {
	exec, mock := newMock(t)

	err := NewSynchronizer(sqlutil.MySQL, WithValidateExists(false)).CheckExists(context.Background(), exec, tagsSpec(), []string{"99"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
