package ingest_test

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/USA-RedDragon/logcapture-server/internal/config"
	"github.com/USA-RedDragon/logcapture-server/internal/db"
	"github.com/glebarez/sqlite"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const networkDevicePath = "lighting/NetworkDevice/"

// buildArchive returns a gzip-compressed tar holding files, with parent
// directory entries emitted before their children.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	dirs := map[string]bool{}
	for _, name := range names {
		for dir := filepath.Dir(name); dir != "." && !dirs[dir]; dir = filepath.Dir(dir) {
			dirs[dir] = true
		}
	}
	dirNames := make([]string, 0, len(dirs))
	for dir := range dirs {
		dirNames = append(dirNames, dir)
	}
	sort.Strings(dirNames)
	for _, dir := range dirNames {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     dir + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
		}))
	}

	for _, name := range names {
		content := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// writeTree creates files beneath root and returns root.
func writeTree(t *testing.T, root string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func makeTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{}
	cfg.Persistence.Database.Driver = config.DatabaseDriverSQLite
	cfg.Persistence.Database.Database = filepath.Join(t.TempDir(), "test.db")
	testDB, err := db.MakeDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := testDB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return testDB
}

func makeHistoryStore(t *testing.T, path string, rows [][3]any) {
	t.Helper()
	makeTypedHistoryStore(t, path, "INTEGER", rows)
}

// makeTypedHistoryStore declares the timestamp column as timestampType.
func makeTypedHistoryStore(t *testing.T, path, timestampType string, rows [][3]any) {
	t.Helper()
	store := openSQLite(t, path)
	require.NoError(t, store.Exec("CREATE TABLE state_changes (device_id TEXT, state TEXT, timestamp "+timestampType+")").Error)
	require.NoError(t, store.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Exec("INSERT INTO state_changes (device_id, state, timestamp) VALUES (?, ?, ?)", row[0], row[1], row[2]).Error; err != nil {
				return err
			}
		}
		return nil
	}))
	sqlDB, err := store.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func openSQLite(t *testing.T, path string) *gorm.DB {
	t.Helper()
	store, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	return store
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}
