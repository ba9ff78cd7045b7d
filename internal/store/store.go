// Package store is the power-cycle-safe storage of the node: provisioned key
// material, the factory-reset marker and user settings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/lora-node/internal/lorawan"
)

var (
	ErrNotProvisioned = errors.New("store: key material not provisioned")
	ErrInvalidKeys    = errors.New("store: invalid key material")
)

// SettingDutyCycle is the application duty cycle override, in seconds.
const SettingDutyCycle = "app_duty_cycle_s"

const schema = `
CREATE TABLE IF NOT EXISTS key_material (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	dev_eui BLOB NOT NULL,
	join_eui BLOB NOT NULL,
	app_key BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reset_marker (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	requested_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("chmod store path: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SaveKeys stores the node identity, replacing any previous one.
func (s *Store) SaveKeys(ctx context.Context, km lorawan.KeyMaterial) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO key_material(id, dev_eui, join_eui, app_key, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	dev_eui=excluded.dev_eui,
	join_eui=excluded.join_eui,
	app_key=excluded.app_key,
	updated_at=excluded.updated_at
`, km.DevEUI[:], km.JoinEUI[:], km.AppKey[:], ts(time.Now()))
	if err != nil {
		return fmt.Errorf("save keys: %w", err)
	}
	return nil
}

// LoadKeys returns the stored identity. Missing rows yield ErrNotProvisioned,
// wrong field sizes or an all-zero key yield ErrInvalidKeys.
func (s *Store) LoadKeys(ctx context.Context) (lorawan.KeyMaterial, error) {
	var km lorawan.KeyMaterial
	var devEUI, joinEUI, appKey []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dev_eui, join_eui, app_key FROM key_material WHERE id = 1`).
		Scan(&devEUI, &joinEUI, &appKey)
	if errors.Is(err, sql.ErrNoRows) {
		return km, ErrNotProvisioned
	}
	if err != nil {
		return km, fmt.Errorf("load keys: %w", err)
	}
	if len(devEUI) != len(km.DevEUI) || len(joinEUI) != len(km.JoinEUI) || len(appKey) != len(km.AppKey) {
		return km, fmt.Errorf("%w: field sizes %d/%d/%d", ErrInvalidKeys, len(devEUI), len(joinEUI), len(appKey))
	}
	copy(km.DevEUI[:], devEUI)
	copy(km.JoinEUI[:], joinEUI)
	copy(km.AppKey[:], appKey)
	if km.AppKey.IsZero() {
		return km, fmt.Errorf("%w: zero AppKey", ErrInvalidKeys)
	}
	return km, nil
}

// MarkFactoryReset persists the reset request so it survives the restart
// that follows.
func (s *Store) MarkFactoryReset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reset_marker(id, requested_at) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET requested_at=excluded.requested_at
`, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("mark factory reset: %w", err)
	}
	return nil
}

// ConsumeFactoryReset reports whether a reset was requested before the last
// restart. If so, user settings are wiped and the marker is cleared in one
// transaction. Key material is kept.
func (s *Store) ConsumeFactoryReset(ctx context.Context) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM reset_marker WHERE id = 1`)
	if err != nil {
		return false, fmt.Errorf("clear reset marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear reset marker: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return false, fmt.Errorf("wipe settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reset tx: %w", err)
	}
	return true, nil
}

// SetSetting stores a named value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(name, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, name, value, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// Setting returns a named value and whether it exists.
func (s *Store) Setting(ctx context.Context, name string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", name, err)
	}
	return v, true, nil
}

// SetDutyCycle persists the application duty cycle with second resolution.
func (s *Store) SetDutyCycle(ctx context.Context, d time.Duration) error {
	return s.SetSetting(ctx, SettingDutyCycle, strconv.FormatInt(int64(d/time.Second), 10))
}

// DutyCycle returns the persisted duty cycle, if any.
func (s *Store) DutyCycle(ctx context.Context) (time.Duration, bool, error) {
	v, ok, err := s.Setting(ctx, SettingDutyCycle)
	if err != nil || !ok {
		return 0, false, err
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", SettingDutyCycle, err)
	}
	return time.Duration(secs) * time.Second, true, nil
}
