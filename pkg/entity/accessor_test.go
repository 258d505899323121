package entity

import (
	"fmt"
	"testing"

	"github.com/entitykit/entitykit/pkg/schema"
)

func strategyConfig(s Strategy) *Config {
	cfg := DefaultConfig()
	cfg.Strategy = s
	return cfg
}

func smallClass(t *testing.T, cfg *Config) *Descriptor {
	t.Helper()
	d, err := NewBuilder("account").
		Field(FieldSpec{Name: "username", Constraints: &schema.ConstraintSet{Type: schema.TypeString}}).
		Field(FieldSpec{Name: "bio", Default: ""}).
		Field(FieldSpec{Name: "active", Default: true}).
		Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return d
}

func TestDirectStrategyUsesSlots(t *testing.T) {
	d := smallClass(t, strategyConfig(StrategyDirect))
	if d.ResolvedStrategy() != StrategyDirect {
		t.Fatalf("Expected direct, got %s", d.ResolvedStrategy())
	}

	e := New(d)
	if err := e.Set("username", "alice"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := e.Get("username", nil); got != "alice" {
		t.Errorf("Expected alice, got %v", got)
	}
	// Declared fields live in slots, never in the backing store.
	if e.StoreView().Has("username") {
		t.Error("Expected the field store to stay empty under the direct strategy")
	}
}

func TestDelegatedStrategyUsesStore(t *testing.T) {
	d := smallClass(t, strategyConfig(StrategyDelegated))
	if d.ResolvedStrategy() != StrategyDelegated {
		t.Fatalf("Expected delegated, got %s", d.ResolvedStrategy())
	}

	e := New(d)
	if err := e.Set("username", "alice"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !e.StoreView().Has("username") {
		t.Error("Expected the field store to hold delegated values")
	}
	if got := e.Get("username", nil); got != "alice" {
		t.Errorf("Expected alice, got %v", got)
	}
}

func TestMixedStrategySplitsHotFields(t *testing.T) {
	d := smallClass(t, strategyConfig(StrategyMixed))
	if d.ResolvedStrategy() != StrategyMixed {
		t.Fatalf("Expected mixed, got %s", d.ResolvedStrategy())
	}

	e := New(d)
	if err := e.Update(map[string]interface{}{"username": "alice", "bio": "hello"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// username and active are hot; bio delegates to the store.
	if e.StoreView().Has("username") {
		t.Error("Expected hot field username in a direct slot")
	}
	if !e.StoreView().Has("bio") {
		t.Error("Expected cold field bio in the store")
	}
	if got := e.Get("bio", nil); got != "hello" {
		t.Errorf("Expected hello, got %v", got)
	}
}

func TestMixedHotFieldsCaseInsensitive(t *testing.T) {
	d := NewBuilder("account").
		Field(FieldSpec{Name: "Email", Default: ""}).
		MustBuild(strategyConfig(StrategyMixed))

	e := New(d)
	if err := e.Set("Email", "a@b.io"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if e.StoreView().Has("Email") {
		t.Error("Expected Email to match the hot-field list case-insensitively")
	}
}

func TestAutoResolvesByFieldCount(t *testing.T) {
	small := smallClass(t, strategyConfig(StrategyAuto))
	if small.ResolvedStrategy() != StrategyDirect {
		t.Errorf("Expected auto to resolve a small class to direct, got %s", small.ResolvedStrategy())
	}

	b := NewBuilder("wide")
	for i := 0; i < 11; i++ {
		b.Field(FieldSpec{Name: fmt.Sprintf("f%02d", i), Default: i})
	}
	wide := b.MustBuild(strategyConfig(StrategyAuto))
	if wide.ResolvedStrategy() != StrategyDelegated {
		t.Errorf("Expected auto to delegate above the field threshold, got %s", wide.ResolvedStrategy())
	}
}

func TestAutoResolutionIsSticky(t *testing.T) {
	d := smallClass(t, strategyConfig(StrategyAuto))

	first := d.ResolvedStrategy()
	for i := 0; i < 10; i++ {
		New(d)
	}
	if got := d.ResolvedStrategy(); got != first {
		t.Errorf("Expected strategy resolved once per class, got %s then %s", first, got)
	}
}

func TestUndeclaredPathsAlwaysDelegate(t *testing.T) {
	d := smallClass(t, strategyConfig(StrategyDirect))
	e := New(d)

	if err := e.Set("profile.theme", "dark"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := e.Get("profile.theme", nil); got != "dark" {
		t.Errorf("Expected dark, got %v", got)
	}
	if !e.StoreView().Has("profile.theme") {
		t.Error("Expected undeclared path in the field store")
	}
}
