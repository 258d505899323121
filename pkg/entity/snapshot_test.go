package entity

import (
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	d := userClass(t, nil)
	e, err := NewWithData(d, map[string]interface{}{
		"username": "alice",
		"age":      30,
	})
	if err != nil {
		t.Fatalf("NewWithData failed: %v", err)
	}
	e.AddTag("imported")
	e.SetMeta("source", "csv")
	if err := e.ToValidated(); err != nil {
		t.Fatalf("ToValidated failed: %v", err)
	}

	snap := e.Snapshot(SnapshotOptions{})
	if snap.Metadata.ID != e.ID() || snap.Metadata.Type != "user" {
		t.Errorf("Unexpected snapshot identity: %+v", snap.Metadata)
	}
	if snap.Metadata.State != StateValidated {
		t.Errorf("Expected VALIDATED, got %s", snap.Metadata.State)
	}

	back, err := FromSnapshot(d, snap)
	if err != nil {
		t.Fatalf("FromSnapshot failed: %v", err)
	}
	if back.ID() != e.ID() {
		t.Errorf("Expected the snapshot id kept, got %s", back.ID())
	}
	if back.State() != e.State() || back.Version() != e.Version() {
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

func TestSnapshotOptionalBlocks(t *testing.T) {
	d := NewBuilder("user").
		Field(FieldSpec{Name: "username"}).
		Action(ActionSpec{Name: "touch", Roles: []string{"*"}, Body: noopAction}).
		MustBuild(nil)
	e := New(d)

	bare := e.Snapshot(SnapshotOptions{})
	if bare.Schema != nil || bare.Actions != nil {
		t.Error("Expected optional blocks omitted by default")
	}

	full := e.Snapshot(SnapshotOptions{IncludeSchema: true, IncludeActions: true})
	if full.Schema == nil || full.Schema["type"] != "user" {
		t.Errorf("Expected schema block, got %v", full.Schema)
	}
	if _, ok := full.Actions["touch"]; !ok {
		t.Errorf("Expected actions block, got %v", full.Actions)
	}
}

func TestFromSnapshotTypeMismatch(t *testing.T) {
	d := userClass(t, nil)
	snap := &Snapshot{Metadata: SnapshotMetadata{Type: "order"}}

	if _, err := FromSnapshot(d, snap); err == nil {
		t.Fatal("Expected type mismatch to fail")
	}
}

func TestFromSnapshotWithID(t *testing.T) {
	d := userClass(t, nil)
	snap := &Snapshot{Data: map[string]interface{}{"username": "alice"}}

	e, err := FromSnapshotWithID(d, snap, "user-17")
	if err != nil {
		t.Fatalf("FromSnapshotWithID failed: %v", err)
	}
	if e.ID() != "user-17" {
		t.Errorf("Expected the supplied id, got %s", e.ID())
	}

	if _, err := FromSnapshotWithID(d, snap, ""); err == nil {
		t.Error("Expected empty id to be rejected")
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	d := userClass(t, nil)
	e, err := NewWithData(d, map[string]interface{}{"username": "alice", "age": 30})
	if err != nil {
		t.Fatalf("NewWithData failed: %v", err)
	}

	for _, name := range []string{"user.yaml", "user.json"} {
		path := filepath.Join(t.TempDir(), name)
		if err := e.SaveFile(path, SnapshotOptions{}); err != nil {
			t.Fatalf("SaveFile(%s) failed: %v", name, err)
		}
		back, err := LoadFile(d, path)
		if err != nil {
			t.Fatalf("LoadFile(%s) failed: %v", name, err)
		}
		if back.ID() != e.ID() {
			t.Errorf("%s: expected id kept, got %s", name, back.ID())
		}
		if got := back.Get("username", nil); got != "alice" {
			t.Errorf("%s: expected restored data, got %v", name, got)
		}
	}
}

func TestBundleRoundTrip(t *testing.T) {
	d := userClass(t, nil)
	var entities []*Entity
	for _, name := range []string{"alice", "bob", "carol"} {
		e, err := NewWithData(d, map[string]interface{}{"username": name})
		if err != nil {
			t.Fatalf("NewWithData failed: %v", err)
		}
		entities = append(entities, e)
	}

	b, err := NewBundle(entities, SnapshotOptions{IncludeSchema: true})
	if err != nil {
		t.Fatalf("NewBundle failed: %v", err)
	}
	if b.Metadata.Type != "user" || b.Metadata.Count != 3 {
		t.Errorf("Unexpected bundle metadata: %+v", b.Metadata)
	}
	if b.Schema == nil {
		t.Error("Expected shared schema block")
	}

	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := b.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	loaded, err := LoadBundleFile(path)
	if err != nil {
		t.Fatalf("LoadBundleFile failed: %v", err)
	}

	back, err := loaded.Entities(d)
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	if len(back) != 3 {
		t.Fatalf("Expected 3 entities, got %d", len(back))
	}
	for _, e := range back {
		if e.State() != StateDraft || e.Version() != 1 {
			t.Errorf("Expected imported entities fresh in DRAFT v1, got %s v%d", e.State(), e.Version())
		}
		if _, ok := loaded.Data[e.ID()]; !ok {
			t.Errorf("Expected id %s keyed in the bundle", e.ID())
		}
	}
}

func TestBundleRejectsMixedClasses(t *testing.T) {
	users := userClass(t, nil)
	orders := NewBuilder("order").
		Field(FieldSpec{Name: "total", Default: 0}).
		MustBuild(nil)

	u, err := NewWithData(users, map[string]interface{}{"username": "alice"})
	if err != nil {
		t.Fatalf("NewWithData failed: %v", err)
	}
	o := New(orders)

	if _, err := NewBundle([]*Entity{u, o}, SnapshotOptions{}); err == nil {
		t.Error("Expected mixed-class bundle to be rejected")
	}
}

func TestBundleTypeMismatchOnImport(t *testing.T) {
	d := userClass(t, nil)
	b := &Bundle{Metadata: BundleMetadata{Type: "order"}}

	if _, err := b.Entities(d); err == nil {
		t.Error("Expected bundle type mismatch to fail")
	}
}
