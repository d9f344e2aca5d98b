package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, name string) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    "file:" + name + "?mode=memory&cache=shared",
		Profile: ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHealthCheck(t *testing.T) {
	db := setupTestDB(t, "db_test_health")

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestWALCheckpoint(t *testing.T) {
	db := setupTestDB(t, "db_test_checkpoint")

	assert.NoError(t, db.WALCheckpoint("TRUNCATE"))
	assert.NoError(t, db.WALCheckpoint("")) // Defaults to TRUNCATE
}

func TestWithTransactionCommits(t *testing.T) {
	db := setupTestDB(t, "db_test_commit")
	conn := db.Conn()

	_, err := conn.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	err = WithTransaction(conn, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO items (id) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := setupTestDB(t, "db_test_rollback")
	conn := db.Conn()

	_, err := conn.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO items (id) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 0, count, "insert must not survive the failed transaction")
}

func TestWithTransactionRecoversPanic(t *testing.T) {
	db := setupTestDB(t, "db_test_panic")

	err := WithTransaction(db.Conn(), func(*sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestWithTransactionNilDB(t *testing.T) {
	err := WithTransaction(nil, func(*sql.Tx) error { return nil })
	assert.Error(t, err)
}
