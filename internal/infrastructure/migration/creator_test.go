package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storefront/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add invoice records", "add_invoice_records"},
		{"Add-Invoice-Records", "add_invoice_records"},
		{"ADD_INVOICE_RECORDS", "add_invoice_records"},
		{"add__invoice__records", "add_invoice_records"},
		{"Add Index 123", "add_index_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- test"), 0o644))
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add invoice notes", "Store a free-text note per invoice")
	require.NoError(t, err)

	assert.Equal(t, "000001", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_invoice_notes.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_invoice_notes.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add invoice notes")
	assert.Contains(t, string(up), "Store a free-text note per invoice")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")
}

func TestCreateMigration_NumbersAfterExisting(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"000001_create_customers.up.sql", "000001_create_customers.down.sql",
		"000007_create_orders.up.sql", "000007_create_orders.down.sql",
	)

	mf, err := CreateMigration(dir, "next one", "")
	require.NoError(t, err)
	assert.Equal(t, "000008", mf.Version)
	assert.True(t, strings.HasSuffix(mf.UpPath, "000008_next_one.up.sql"))
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	t.Run("lists up migrations in order", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir,
			"000002_create_orders.up.sql", "000002_create_orders.down.sql",
			"000001_create_customers.up.sql", "000001_create_customers.down.sql",
			"README.md", ".gitkeep",
		)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.up.sql"), 0o755))

		names, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"000001_create_customers", "000002_create_orders"}, names)
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		names, err := ListMigrations(filepath.Join(t.TempDir(), "missing"))
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(migrations.FS, down)
		assert.NoError(t, err, "missing rollback for %s", up)
	}

	contents, err := fs.ReadFile(migrations.FS, "000003_create_invoice_records.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(contents), "idx_invoice_records_order_id")
}
