package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/entitykit/entitykit/pkg/entity"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded source.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// SaveRecord inserts or updates an entity record keyed by id.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *EntityRecord) error {
	query := `
		INSERT INTO entities (id, entity_type, state, version, data, tags, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			version = excluded.version,
			data = excluded.data,
			tags = excluded.tags,
			meta = excluded.meta,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.EntityType,
		rec.State,
		rec.Version,
		rec.Data,
		rec.Tags,
		rec.Meta,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		return fmt.Errorf("failed to save entity record: %w", err)
	}

	return nil
}

// GetRecord retrieves an entity record by id.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*EntityRecord, error) {
	query := `
		SELECT id, entity_type, state, version, data, tags, meta, created_at, updated_at
		FROM entities
		WHERE id = ?
	`

	rec := &EntityRecord{}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.EntityType,
		&rec.State,
		&rec.Version,
		&rec.Data,
		&rec.Tags,
		&rec.Meta,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity record: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

// ListRecords lists entity records with pagination. An empty entityType lists
// every class.
func (s *SQLiteStore) ListRecords(ctx context.Context, entityType string, limit, offset int) ([]*EntityRecord, error) {
	query := `
		SELECT id, entity_type, state, version, data, tags, meta, created_at, updated_at
		FROM entities
		WHERE (? = '' OR entity_type = ?)
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, entityType, entityType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity records: %w", err)
	}
	defer rows.Close()

	records := []*EntityRecord{}
	for rows.Next() {
		rec := &EntityRecord{}
		var createdAt, updatedAt string
		err := rows.Scan(
			&rec.ID,
			&rec.EntityType,
			&rec.State,
			&rec.Version,
			&rec.Data,
			&rec.Tags,
			&rec.Meta,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity records: %w", err)
	}

	return records, nil
}

// DeleteRecord deletes an entity record by id.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	query := `DELETE FROM entities WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("entity not found: %s", id)
	}

	return nil
}

// CountRecords counts entity records, optionally filtered by class.
func (s *SQLiteStore) CountRecords(ctx context.Context, entityType string) (int64, error) {
	query := `SELECT COUNT(*) FROM entities WHERE (? = '' OR entity_type = ?)`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, entityType, entityType).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entity records: %w", err)
	}
	return count, nil
}

// SaveEntity snapshots a live entity and persists it.
func (s *SQLiteStore) SaveEntity(ctx context.Context, e *entity.Entity) error {
	rec, err := RecordFromSnapshot(e.Snapshot(entity.SnapshotOptions{}))
	if err != nil {
		return err
	}
	return s.SaveRecord(ctx, rec)
}

// LoadEntity retrieves a persisted snapshot and reconstructs it against the
// given class.
func (s *SQLiteStore) LoadEntity(ctx context.Context, desc *entity.Descriptor, id string) (*entity.Entity, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := rec.Snapshot()
	if err != nil {
		return nil, err
	}
	return entity.FromSnapshot(desc, snap)
}

// LoadEntities reconstructs every persisted entity of a class.
func (s *SQLiteStore) LoadEntities(ctx context.Context, desc *entity.Descriptor, limit, offset int) ([]*entity.Entity, error) {
	records, err := s.ListRecords(ctx, desc.Type(), limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.Entity, 0, len(records))
	for _, rec := range records {
		snap, err := rec.Snapshot()
		if err != nil {
			return nil, err
		}
		e, err := entity.FromSnapshot(desc, snap)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// AppendAudit appends a dispatch record to the audit trail.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (entity_id, action, profile, actor, outcome, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		entry.EntityID,
		entry.Action,
		entry.Profile,
		entry.Actor,
		entry.Outcome,
		entry.Details,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAudit lists audit entries with optional filters and pagination.
func (s *SQLiteStore) ListAudit(ctx context.Context, entityID *string, action *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, entity_id, action, profile, actor, outcome, details, timestamp
		FROM audit
		WHERE (? IS NULL OR entity_id = ?)
		  AND (? IS NULL OR action = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, entityID, entityID, action, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		var ts string
		err := rows.Scan(
			&entry.ID,
			&entry.EntityID,
			&entry.Action,
			&entry.Profile,
			&entry.Actor,
			&entry.Outcome,
			&entry.Details,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
