package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselight/caselight/internal/config"
)

func testDBConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "caselight",
		Password: "secret",
		DBName:   "caselight",
		SSLMode:  "disable",
		MaxConns: 10,
		MinConns: 2,
	}
}

func TestDSN_ParsesAsPoolConfig(t *testing.T) {
	t.Parallel()

	cfg := testDBConfig()
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)

	assert.Equal(t, "localhost", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(5432), poolCfg.ConnConfig.Port)
	assert.Equal(t, "caselight", poolCfg.ConnConfig.Database)
	assert.Equal(t, "caselight", poolCfg.ConnConfig.User)
}

func TestMigrateURL_RewritesScheme(t *testing.T) {
	t.Parallel()

	dsn := "postgres://u:p@host:5432/db?sslmode=disable"
	assert.Equal(t, "pgx5://u:p@host:5432/db?sslmode=disable", migrateURL(dsn))
}

func TestMigrateURL_LeavesOtherSchemesAlone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u@host/db", migrateURL("pgx5://u@host/db"))
}
