package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence of sync runs and installed bundles
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Store initialized successfully", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// SyncRun Operations
// ============================================================================

const syncRunColumns = `id, run_uuid, manifest_url, start_time, end_time, bundles_installed,
	bundles_skipped, bundles_failed, bytes_transferred, status, error_message`

type scanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row scanner) (SyncRun, error) {
	var run SyncRun
	err := row.Scan(
		&run.ID, &run.RunUUID, &run.ManifestURL, &run.StartTime, &run.EndTime,
		&run.BundlesInstalled, &run.BundlesSkipped, &run.BundlesFailed,
		&run.BytesTransferred, &run.Status, &run.ErrorMessage,
	)
	return run, err
}

// CreateSyncRun inserts a new SyncRun and sets its ID. A run UUID is
// generated when the caller leaves it empty.
func (s *Store) CreateSyncRun(run *SyncRun) error {
	const query = `
		INSERT INTO sync_runs (
			run_uuid, manifest_url, start_time, end_time, bundles_installed,
			bundles_skipped, bundles_failed, bytes_transferred, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if run.RunUUID == "" {
		run.RunUUID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	result, err := s.db.Exec(
		query,
		run.RunUUID, run.ManifestURL, run.StartTime, run.EndTime,
		run.BundlesInstalled, run.BundlesSkipped, run.BundlesFailed,
		run.BytesTransferred, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateSyncRun updates an existing SyncRun by ID
func (s *Store) UpdateSyncRun(run *SyncRun) error {
	const query = `
		UPDATE sync_runs SET
			manifest_url = ?, start_time = ?, end_time = ?, bundles_installed = ?,
			bundles_skipped = ?, bundles_failed = ?, bytes_transferred = ?,
			status = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.ManifestURL, run.StartTime, run.EndTime, run.BundlesInstalled,
		run.BundlesSkipped, run.BundlesFailed, run.BytesTransferred,
		run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("sync run %d: %w", run.ID, ErrNotFound)
	}

	return nil
}

// GetSyncRun retrieves a SyncRun by ID
func (s *Store) GetSyncRun(id int64) (*SyncRun, error) {
	query := "SELECT " + syncRunColumns + " FROM sync_runs WHERE id = ?"

	run, err := scanSyncRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync run %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query sync run: %w", err)
	}

	return &run, nil
}

// ListSyncRuns retrieves the most recent SyncRuns first
func (s *Store) ListSyncRuns(limit int) ([]SyncRun, error) {
	query := "SELECT " + syncRunColumns + " FROM sync_runs ORDER BY start_time DESC, id DESC"
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// ============================================================================
// InstalledBundle Operations
// ============================================================================

const installedColumns = `name, version, revision, stability, host_os, url, sha1, size,
	path, installed_at, sync_run_id`

func scanInstalled(row scanner) (InstalledBundle, error) {
	var b InstalledBundle
	var runID sql.NullInt64
	err := row.Scan(
		&b.Name, &b.Version, &b.Revision, &b.Stability, &b.HostOS, &b.URL,
		&b.SHA1, &b.Size, &b.Path, &b.InstalledAt, &runID,
	)
	b.SyncRunID = runID.Int64
	return b, err
}

// UpsertInstalledBundle inserts or replaces the record for b.Name
func (s *Store) UpsertInstalledBundle(b *InstalledBundle) error {
	const query = `
		INSERT OR REPLACE INTO installed_bundles (` + installedColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var runID interface{}
	if b.SyncRunID != 0 {
		runID = b.SyncRunID
	}

	_, err := s.db.Exec(
		query,
		b.Name, b.Version, b.Revision, b.Stability, b.HostOS, b.URL,
		b.SHA1, b.Size, b.Path, b.InstalledAt, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert installed bundle: %w", err)
	}
	return nil
}

// GetInstalledBundle retrieves the record for a bundle name
func (s *Store) GetInstalledBundle(name string) (*InstalledBundle, error) {
	query := "SELECT " + installedColumns + " FROM installed_bundles WHERE name = ?"

	b, err := scanInstalled(s.db.QueryRow(query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("installed bundle %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query installed bundle: %w", err)
	}

	return &b, nil
}

// ListInstalledBundles retrieves all installed bundles ordered by name
func (s *Store) ListInstalledBundles() ([]InstalledBundle, error) {
	query := "SELECT " + installedColumns + " FROM installed_bundles ORDER BY name"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query installed bundles: %w", err)
	}
	defer rows.Close()

	var bundles []InstalledBundle
	for rows.Next() {
		b, err := scanInstalled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installed bundle: %w", err)
		}
		bundles = append(bundles, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installed bundles: %w", err)
	}

	return bundles, nil
}

// DeleteInstalledBundle removes the record for a bundle name
func (s *Store) DeleteInstalledBundle(name string) error {
	const query = "DELETE FROM installed_bundles WHERE name = ?"

	result, err := s.db.Exec(query, name)
	if err != nil {
		return fmt.Errorf("failed to delete installed bundle: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("installed bundle %q: %w", name, ErrNotFound)
	}

	return nil
}
