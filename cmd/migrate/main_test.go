package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadMigrations_SortedSkipsEmptyAndNonSQL(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_b.sql":  "CREATE TABLE b (id INT);",
		"001_a.sql":  "CREATE TABLE a (id INT);",
		"003_c.sql":  "  \n",
		"README.txt": "not a migration",
	})

	got, err := loadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a.sql", got[0].name)
	assert.Equal(t, "002_b.sql", got[1].name)
	assert.Len(t, got[0].checksum, 64)
	assert.NotEqual(t, got[0].checksum, got[1].checksum)
}

func TestMigrate_AppliesOnlyPending(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id INT);",
		"002_b.sql": "CREATE TABLE b (id INT);",
	})
	files, err := loadMigrations(dir)
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT filename, checksum, applied_at FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "checksum", "applied_at"}).
			AddRow("001_a.sql", files[0].checksum, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs("002_b.sql", files[1].checksum).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var out bytes.Buffer
	n, err := migrate(context.Background(), db, dir, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "002_b.sql ... OK")
	assert.NotContains(t, out.String(), "001_a.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsAtFirstFailure(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id INT);",
		"002_b.sql": "CREATE TABLE b (id INT);",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT filename, checksum, applied_at FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "checksum", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id INT);")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	var out bytes.Buffer
	n, err := migrate(context.Background(), db, dir, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_a.sql")
	assert.Zero(t, n)
	assert.NotContains(t, out.String(), "002_b.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrintStatus(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id INT);",
		"002_b.sql": "CREATE TABLE b (id INT);",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT filename, checksum, applied_at FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "checksum", "applied_at"}).
			AddRow("001_a.sql", "stale", at))

	var out bytes.Buffer
	require.NoError(t, printStatus(context.Background(), db, dir, &out))
	assert.Contains(t, out.String(), "applied 2025-03-14T09:30:00Z (modified since)")
	assert.Regexp(t, `002_b\.sql\s+pending`, out.String())
	assert.Contains(t, out.String(), "Total: 2 migrations, 1 pending")
}
