package cmd_test

import (
	"path/filepath"
	"testing"

	"github.com/USA-RedDragon/logcapture-server/cmd"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	baseCmd := cmd.NewCommand("testing", "default")
	// Avoid port conflict
	baseCmd.SetArgs([]string{
		"--http.port", "8082",
		"--http.metrics.port", "8083",
		"--persistence.database.database", filepath.Join(dir, "logcapture.db"),
		"--ingest.work_dir", filepath.Join(dir, "work"),
	})
	err := baseCmd.Execute()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
