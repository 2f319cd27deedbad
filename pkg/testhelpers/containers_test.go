//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)

	var name string
	err := testDB.Pool.QueryRow(context.Background(), "SELECT current_database()").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, testDatabase, name)
	assert.Equal(t, "disable", testDB.DatasourceConfig()["ssl_mode"])
}

func TestGetEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)

	var count int
	err := engineDB.DB.Pool.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name IN ('engine_tables', 'engine_columns', 'engine_migration_log')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUniqueTableName(t *testing.T) {
	a := UniqueTableName("orders")
	b := UniqueTableName("orders")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^orders_[0-9a-f]{12}$`, a)
}
