package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsAreContiguous(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"000001", "000002", "000003", "000004", "000005"}, versions)
}

func TestEveryUpHasDown(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
		assert.True(t, names[down], "missing %s", down)
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	_, err := RunMigrations(nil, nil)
	assert.Error(t, err)
}
