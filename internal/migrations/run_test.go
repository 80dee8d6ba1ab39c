package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(sqlFiles, "*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0001_reports.down.sql", "0001_reports.up.sql"}, names)
}

func TestRun_RequiresDSN(t *testing.T) {
	require.EqualError(t, Run(""), "DATABASE_URL is not set")
}
