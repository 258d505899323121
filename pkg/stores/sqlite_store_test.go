package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/entitykit/entitykit/pkg/entity"
	"github.com/entitykit/entitykit/pkg/schema"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "entitykit.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return store
}

func userClass(t *testing.T) *entity.Descriptor {
	t.Helper()
	d, err := entity.NewBuilder("user").
		Field(entity.FieldSpec{
			Name:        "username",
			Constraints: &schema.ConstraintSet{Type: schema.TypeString, MinLength: schema.IntPtr(3)},
		}).
		Field(entity.FieldSpec{Name: "role", Default: "user"}).
		Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return d
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &EntityRecord{
		ID:         "u-1",
		EntityType: "user",
		State:      "DRAFT",
		Version:    1,
		Data:       `{"username":"alice"}`,
		Tags:       `["imported"]`,
		Meta:       `{"source":"csv"}`,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	got, err := store.GetRecord(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.EntityType != "user" || got.Version != 1 || got.Data != `{"username":"alice"}` {
		t.Errorf("Unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("Expected created_at %v, got %v", now, got.CreatedAt)
	}
}

func TestSaveRecordUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &EntityRecord{
		ID: "u-1", EntityType: "user", State: "DRAFT", Version: 1,
		Data: `{}`, Tags: `[]`, Meta: `{}`,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := store.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	rec.State = "VALIDATED"
	rec.Version = 2
	if err := store.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetRecord(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.State != "VALIDATED" || got.Version != 2 {
		t.Errorf("Expected upserted state, got %+v", got)
	}

	count, err := store.CountRecords(ctx, "user")
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single row after upsert, got %d", count)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetRecord(context.Background(), "missing"); err == nil {
		t.Error("Expected error for unknown id")
	}
}

func TestListRecordsByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, typ := range []string{"user", "user", "order"} {
		rec := &EntityRecord{
			ID: string(rune('a' + i)), EntityType: typ, State: "DRAFT", Version: 1,
			Data: `{}`, Tags: `[]`, Meta: `{}`,
			CreatedAt: now, UpdatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveRecord(ctx, rec); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	users, err := store.ListRecords(ctx, "user", 10, 0)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 user records, got %d", len(users))
	}

	all, err := store.ListRecords(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 records across classes, got %d", len(all))
	}

	// Pagination.
	page, err := store.ListRecords(ctx, "", 2, 2)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("Expected 1 record on the last page, got %d", len(page))
	}
}

func TestDeleteRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &EntityRecord{
		ID: "u-1", EntityType: "user", State: "DRAFT", Version: 1,
		Data: `{}`, Tags: `[]`, Meta: `{}`,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := store.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	if err := store.DeleteRecord(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if err := store.DeleteRecord(ctx, "u-1"); err == nil {
		t.Error("Expected error deleting a missing record")
	}
}

func TestEntityRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := userClass(t)

	e, err := entity.NewWithData(d, map[string]interface{}{"username": "alice"})
	if err != nil {
		t.Fatalf("NewWithData failed: %v", err)
	}
	e.AddTag("imported")
	e.SetMeta("source", "csv")
	if err := e.ToValidated(); err != nil {
		t.Fatalf("ToValidated failed: %v", err)
	}

	if err := store.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}

	back, err := store.LoadEntity(ctx, d, e.ID())
	if err != nil {
		t.Fatalf("LoadEntity failed: %v", err)
	}
	if back.ID() != e.ID() {
		t.Errorf("Expected id %s, got %s", e.ID(), back.ID())
	}
	if back.State() != entity.StateValidated || back.Version() != e.Version() {
		t.Errorf("Expected state and version restored, got %s v%d", back.State(), back.Version())
	}
	if got := back.Get("username", nil); got != "alice" {
		t.Errorf("Expected restored data, got %v", got)
	}
	if !back.HasTag("imported") {
		t.Error("Expected tags restored")
	}
	if v, _ := back.Meta("source"); v != "csv" {
		t.Errorf("Expected annotations restored, got %v", v)
	}
}

func TestLoadEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := userClass(t)

	for _, name := range []string{"alice", "bob"} {
		e, err := entity.NewWithData(d, map[string]interface{}{"username": name})
		if err != nil {
			t.Fatalf("NewWithData failed: %v", err)
		}
		if err := store.SaveEntity(ctx, e); err != nil {
			t.Fatalf("SaveEntity failed: %v", err)
		}
	}

	loaded, err := store.LoadEntities(ctx, d, 10, 0)
	if err != nil {
		t.Fatalf("LoadEntities failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 entities, got %d", len(loaded))
	}
	for _, e := range loaded {
		if e.Type() != "user" {
			t.Errorf("Unexpected type %s", e.Type())
		}
	}
}

func TestAuditTrail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*AuditEntry{
		{EntityID: "u-1", Action: "promote", Profile: "command", Actor: "admin-1", Outcome: "ok"},
		{EntityID: "u-1", Action: "greet", Profile: "query", Actor: "guest-1", Outcome: "ok"},
		{EntityID: "u-2", Action: "promote", Profile: "command", Actor: "admin-1", Outcome: "error"},
	}
	for _, entry := range entries {
		if err := store.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}
		if entry.ID == 0 {
			t.Error("Expected the auto-generated id filled in")
		}
	}

	all, err := store.ListAudit(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(all))
	}

	id := "u-1"
	byEntity, err := store.ListAudit(ctx, &id, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(byEntity) != 2 {
		t.Errorf("Expected 2 entries for u-1, got %d", len(byEntity))
	}

	action := "promote"
	byAction, err := store.ListAudit(ctx, nil, &action, 10, 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(byAction) != 2 {
		t.Errorf("Expected 2 promote entries, got %d", len(byAction))
	}
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}

	uninitialized := &SQLiteStore{}
	if err := uninitialized.HealthCheck(context.Background()); err == nil {
		t.Error("Expected error for uninitialized store")
	}
}
