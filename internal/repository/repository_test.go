package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pronto-ballbot/internal/config"
	"pronto-ballbot/internal/model"
)

// exerciseRepository runs the whole-record contract against any backend.
func exerciseRepository(t *testing.T, repo InventoryRepository) {
	t.Helper()
	ctx := context.Background()

	inv, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv)

	first := model.Inventories{
		"5302428": {"Gondor", "Rohan", "Gondor"},
		"7":       {"Mordor"},
	}
	require.NoError(t, repo.Save(ctx, first))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Fatalf("loaded inventory mismatch (-want +got):\n%s", diff)
	}

	// users dropped from the record are removed, emptied users are kept
	second := model.Inventories{
		"5302428": {},
		"9":       {"Gondor"},
	}
	require.NoError(t, repo.Save(ctx, second))

	got, err = repo.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(second, got); diff != "" {
		t.Fatalf("replaced inventory mismatch (-want +got):\n%s", diff)
	}

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stats["backend"])
}

func TestFileInventoryRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "inventory.json")
	repo, err := NewFileInventoryRepository(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileInventoryRepository_ReadsExistingFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"5302428":["Gondor","Gondor"]}`), 0o644))

	repo, err := NewFileInventoryRepository(path, nil)
	require.NoError(t, err)

	inv, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Count("5302428", "Gondor"))
}

func TestFileInventoryRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	repo, err := NewFileInventoryRepository(path, nil)
	require.NoError(t, err)

	_, err = repo.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteInventoryRepository_CorruptRow(t *testing.T) {
	repo, err := NewSQLiteInventoryRepository(filepath.Join(t.TempDir(), "inventory.db"), nil)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.db.Exec(`INSERT INTO ballbot_inventory (user_id, items_json, updated_at) VALUES ('7', '{bad', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = repo.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteInventoryRepository(t *testing.T) {
	repo, err := NewSQLiteInventoryRepository(filepath.Join(t.TempDir(), "inventory.db"), nil)
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	repo, err := Open(context.Background(), config.InventoryDBConfig{Type: "file", Path: filepath.Join(dir, "inv.json")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileInventoryRepository{}, repo)

	repo, err = Open(context.Background(), config.InventoryDBConfig{Type: "SQLite", Path: filepath.Join(dir, "inv.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteInventoryRepository{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(context.Background(), config.InventoryDBConfig{Type: "cassandra"}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), config.InventoryDBConfig{Type: "mongodb"}, nil)
	assert.Error(t, err)
}

func TestIntegrationBackends(t *testing.T) {
	ctx := context.Background()

	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN not set")
		}
		repo, err := NewPostgresInventoryRepository(ctx, dsn, nil)
		require.NoError(t, err)
		defer repo.Close()
		require.NoError(t, repo.Save(ctx, model.Inventories{}))
		exerciseRepository(t, repo)
	})

	t.Run("mysql", func(t *testing.T) {
		dsn := os.Getenv("MYSQL_TEST_DSN")
		if dsn == "" {
			t.Skip("MYSQL_TEST_DSN not set")
		}
		repo, err := NewMySQLInventoryRepository(ctx, dsn, nil)
		require.NoError(t, err)
		defer repo.Close()
		require.NoError(t, repo.Save(ctx, model.Inventories{}))
		exerciseRepository(t, repo)
	})

	t.Run("mongodb", func(t *testing.T) {
		uri := os.Getenv("MONGODB_TEST_URI")
		if uri == "" {
			t.Skip("MONGODB_TEST_URI not set")
		}
		repo, err := NewMongoDBInventoryRepository(ctx, uri, "ballbot_test", "inventories", nil)
		require.NoError(t, err)
		defer repo.Close()
		require.NoError(t, repo.Save(ctx, model.Inventories{}))
		exerciseRepository(t, repo)
	})
}
