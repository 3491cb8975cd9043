package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// HistoryLimit caps the number of state changes read from a capture's
// history store. The cap is shared by all devices, so a busy store can
// push older transitions of quieter devices out of the window.
const HistoryLimit = 1000

// The unary + turns state and timestamp into expressions without a declared
// type, so the driver hands back the stored value instead of converting
// DATETIME text into time.Time.
const stateChangesQuery = `SELECT device_id, +state AS state, +timestamp AS timestamp
FROM state_changes ORDER BY state_changes.timestamp DESC LIMIT ?`

// History maps a device identifier to its state transitions, most recent first.
type History map[string][]models.HistoryEntry

// ReadStateHistory reads the most recent state changes from the sqlite store
// at path. It returns nil if the store cannot be read.
func ReadStateHistory(ctx context.Context, path string) History {
	history, err := readStateHistory(ctx, path)
	if err != nil {
		slog.Error("Error parsing lighting history", "path", path, "error", err)
		return nil
	}
	return history
}

func readStateHistory(ctx context.Context, path string) (History, error) {
	// Opening a missing path would create an empty database in the capture.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	store, err := gorm.Open(sqlite.Open(path+"?_pragma=query_only(1)"), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	sqlDB, err := store.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	defer sqlDB.Close()

	rows, err := store.WithContext(ctx).Raw(stateChangesQuery, HistoryLimit).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query state changes: %w", err)
	}
	defer rows.Close()

	history := History{}
	for rows.Next() {
		var (
			deviceID  sql.NullString
			state     any
			timestamp any
		)
		if err := rows.Scan(&deviceID, &state, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan state change: %w", err)
		}
		if !deviceID.Valid {
			continue
		}
		history[deviceID.String] = append(history[deviceID.String], models.HistoryEntry{
			State:     textValue(state),
			Timestamp: textValue(timestamp),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read state changes: %w", err)
	}

	return history, nil
}

func textValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
