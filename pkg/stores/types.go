package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entitykit/entitykit/pkg/entity"
)

// EntityRecord is the persisted row form of an entity snapshot. Data, tags,
// and annotations are stored as JSON blobs.
type EntityRecord struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	State      string    `json:"state"`
	Version    int       `json:"version"`
	Data       string    `json:"data"` // JSON blob
	Tags       string    `json:"tags"` // JSON array
	Meta       string    `json:"meta"` // JSON blob
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuditEntry is one row of the dispatch audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"`
	Profile   string    `json:"profile"`
	Actor     string    `json:"actor"`
	Outcome   string    `json:"outcome"` // ok or error
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence interface: entity snapshot CRUD plus the audit
// trail.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	BeginTx(ctx context.Context) (*sql.Tx, error)

	SaveRecord(ctx context.Context, rec *EntityRecord) error
	GetRecord(ctx context.Context, id string) (*EntityRecord, error)
	ListRecords(ctx context.Context, entityType string, limit, offset int) ([]*EntityRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	CountRecords(ctx context.Context, entityType string) (int64, error)

	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, entityID *string, action *string, limit, offset int) ([]*AuditEntry, error)

	HealthCheck(ctx context.Context) error
}

// RecordFromSnapshot converts a snapshot into its row form.
func RecordFromSnapshot(snap *entity.Snapshot) (*EntityRecord, error) {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	tags, err := json.Marshal(snap.Metadata.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	meta, err := json.Marshal(snap.Metadata.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode meta: %w", err)
	}

	rec := &EntityRecord{
		ID:         snap.Metadata.ID,
		EntityType: snap.Metadata.Type,
		State:      string(snap.Metadata.State),
		Version:    snap.Metadata.Version,
		Data:       string(data),
		Tags:       string(tags),
		Meta:       string(meta),
	}
	if t, err := time.Parse(time.RFC3339Nano, snap.Metadata.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, snap.Metadata.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

// Snapshot converts the row back into snapshot form.
func (r *EntityRecord) Snapshot() (*entity.Snapshot, error) {
	snap := &entity.Snapshot{
		Metadata: entity.SnapshotMetadata{
			ID:        r.ID,
			Type:      r.EntityType,
			State:     entity.State(r.State),
			Version:   r.Version,
			CreatedAt: r.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt: r.UpdatedAt.Format(time.RFC3339Nano),
		},
	}
	if r.Data != "" {
		if err := json.Unmarshal([]byte(r.Data), &snap.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data for %s: %w", r.ID, err)
		}
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &snap.Metadata.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", r.ID, err)
		}
	}
	if r.Meta != "" {
		if err := json.Unmarshal([]byte(r.Meta), &snap.Metadata.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode meta for %s: %w", r.ID, err)
		}
	}
	return snap, nil
}
