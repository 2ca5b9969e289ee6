package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/bridges/zwave"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
)

// Store persists device state snapshots in SQLite.
//
// It implements the bridge's StateStore interface: one row per device in
// the device_state table, with the snapshot serialised as JSON. A corrupt
// row is treated as absent and cleared so the bridge starts that device
// from a fresh state rather than failing startup.
//
// Thread Safety:
//   - All methods are safe for concurrent use (the underlying pool
//     serialises writes per SQLite's single-writer model).
type Store struct {
	db *database.DB

	logger Logger
}

// Logger is the optional logging interface for the store.
type Logger interface {
	Warn(msg string, args ...any)
}

// NewStore creates a state store backed by the given database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// SetLogger sets an optional logger for corrupt-record warnings.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SaveDeviceState stores the snapshot for a device, replacing any
// previous snapshot.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - snap: Snapshot to persist
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) SaveDeviceState(ctx context.Context, deviceID string, snap zwave.StateSnapshot) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO device_state (device_id, snapshot, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		   snapshot = excluded.snapshot,
		   updated_at = excluded.updated_at`,
		deviceID,
		string(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving device state: %w", err)
	}

	return nil
}

// LoadDeviceState retrieves the snapshot for a device.
//
// The bool result reports whether a snapshot existed. A snapshot that
// fails to decode is deleted and reported as absent.
func (s *Store) LoadDeviceState(ctx context.Context, deviceID string) (zwave.StateSnapshot, bool, error) {
	if deviceID == "" {
		return zwave.StateSnapshot{}, false, fmt.Errorf("device id is required")
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM device_state WHERE device_id = ?",
		deviceID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zwave.StateSnapshot{}, false, nil
	}
	if err != nil {
		return zwave.StateSnapshot{}, false, fmt.Errorf("loading device state: %w", err)
	}

	var snap zwave.StateSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		// Corrupt record. Clear it so the device starts fresh.
		if s.logger != nil {
			s.logger.Warn("clearing corrupt device state record",
				"device_id", deviceID,
				"error", err,
			)
		}
		if delErr := s.DeleteDeviceState(ctx, deviceID); delErr != nil {
			return zwave.StateSnapshot{}, false, delErr
		}
		return zwave.StateSnapshot{}, false, nil
	}

	return snap, true, nil
}

// DeleteDeviceState removes the stored snapshot for a device.
// Deleting an absent record is not an error.
func (s *Store) DeleteDeviceState(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM device_state WHERE device_id = ?",
		deviceID,
	); err != nil {
		return fmt.Errorf("deleting device state: %w", err)
	}

	return nil
}

// ListDeviceIDs returns the device IDs that have stored snapshots.
func (s *Store) ListDeviceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		"SELECT device_id FROM device_state ORDER BY device_id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing device states: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device states: %w", err)
	}
	return ids, nil
}
