package database

import (
	"context"
	"io/fs"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrationsRunsFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("CREATE TABLE b (id TEXT)")},
		"0001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT)")},
		"README.md":  {Data: []byte("ignored")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b")).WillReturnResult(sqlmock.NewResult(0, 0))

	err = ApplyMigrations(context.Background(), sqlx.NewDb(db, "sqlmock"), fsys, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrationsStopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("BROKEN")},
		"0002_b.sql": {Data: []byte("CREATE TABLE b (id TEXT)")},
	}
	mock.ExpectExec("BROKEN").WillReturnError(assert.AnError)

	err = ApplyMigrations(context.Background(), sqlx.NewDb(db, "sqlmock"), fsys, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_a.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrationsContainSchema(t *testing.T) {
	fsys := Migrations()
	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var schema strings.Builder
	for _, entry := range entries {
		content, err := fs.ReadFile(fsys, entry.Name())
		require.NoError(t, err)
		schema.Write(content)
	}
	assert.Contains(t, schema.String(), "uq_extension_requests_active")
	assert.Contains(t, schema.String(), "workflow_targets")
}
