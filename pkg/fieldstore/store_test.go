package fieldstore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStore_GetSetDelete(t *testing.T) {
	s := New()

	if got := s.Get("missing", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback for missing key, got %v", got)
	}

	s.Set("name", "alice")
	if got := s.Get("name", nil); got != "alice" {
		t.Errorf("Expected alice, got %v", got)
	}

	s.Delete("name")
	if s.Has("name") {
		t.Error("Expected name to be deleted")
	}
}

func TestStore_NestedPaths(t *testing.T) {
	s := New()
	s.Set("profile.address.city", "Berlin")

	if got := s.Get("profile.address.city", nil); got != "Berlin" {
		t.Errorf("Expected Berlin, got %v", got)
	}

	// Intermediate nodes are created as maps.
	if _, ok := s.Get("profile.address", nil).(map[string]interface{}); !ok {
		t.Error("Expected intermediate node to be a map")
	}

	// Traversing through a scalar yields the default.
	s.Set("scalar", 42)
	if got := s.Get("scalar.child", "def"); got != "def" {
		t.Errorf("Expected default when traversing scalar, got %v", got)
	}

	s.Delete("profile.address")
	if s.Has("profile.address.city") {
		t.Error("Expected subtree to be gone")
	}
	if !s.Has("profile") {
		t.Error("Expected parent to remain")
	}
}

func TestStore_SetReplacesScalarOnPath(t *testing.T) {
	s := New()
	s.Set("a", "scalar")
	s.Set("a.b", 1)

	if got := s.Get("a.b", nil); got != 1 {
		t.Errorf("Expected scalar to be replaced by map, got %v", got)
	}
}

func TestStore_ToMapDeepCopies(t *testing.T) {
	s := New()
	s.Set("nested.value", 1)

	out := s.ToMap()
	out["nested"].(map[string]interface{})["value"] = 99

	if got := s.Get("nested.value", nil); got != 1 {
		t.Errorf("Expected store to be isolated from exported map, got %v", got)
	}
}

func TestStore_LoadMapDeepCopies(t *testing.T) {
	src := map[string]interface{}{
		"nested": map[string]interface{}{"value": 1},
		"list":   []interface{}{1, 2, 3},
	}

	s := NewFrom(src)
	src["nested"].(map[string]interface{})["value"] = 99

	if got := s.Get("nested.value", nil); got != 1 {
		t.Errorf("Expected store to be isolated from source map, got %v", got)
	}
}

func TestStore_Clone(t *testing.T) {
	s := New()
	s.Set("a.b", "x")

	c := s.Clone()
	c.Set("a.b", "y")

	if got := s.Get("a.b", nil); got != "x" {
		t.Errorf("Expected original untouched, got %v", got)
	}
}

func TestView_IsReadOnly(t *testing.T) {
	s := New()
	s.Set("key", "value")

	v := s.View()
	if got := v.Get("key", nil); got != "value" {
		t.Errorf("Expected value through view, got %v", got)
	}
	if !v.Has("key") {
		t.Error("Expected Has through view")
	}
	if v.Len() != 1 {
		t.Errorf("Expected Len 1, got %d", v.Len())
	}

	out := v.ToMap()
	out["key"] = "mutated"
	if got := s.Get("key", nil); got != "value" {
		t.Errorf("Expected store isolated from view export, got %v", got)
	}
}

func TestStore_FileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := New()
	s.Set("name", "alice")
	s.Set("profile.city", "Berlin")
	s.Set("tags", []interface{}{"a", "b"})

	for _, name := range []string{"data.yaml", "data.json"} {
		path := filepath.Join(dir, name)
		if err := s.SaveFile(path); err != nil {
			t.Fatalf("SaveFile(%s) failed: %v", name, err)
		}

		loaded := New()
		if err := loaded.LoadFile(path); err != nil {
			t.Fatalf("LoadFile(%s) failed: %v", name, err)
		}

		if got := loaded.Get("profile.city", nil); got != "Berlin" {
			t.Errorf("%s: expected Berlin, got %v", name, got)
		}
		if got := loaded.Get("name", nil); got != "alice" {
			t.Errorf("%s: expected alice, got %v", name, got)
		}
	}
}

func TestStore_LoadFileMissing(t *testing.T) {
	s := New()
	if err := s.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFormatForPath(t *testing.T) {
	cases := map[string]Format{
		"x.json": FormatJSON,
		"x.yaml": FormatYAML,
		"x.yml":  FormatYAML,
		"x":      FormatYAML,
	}
	for path, want := range cases {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%s): expected %s, got %s", path, want, got)
		}
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	data := map[string]interface{}{"a": "x", "n": map[string]interface{}{"b": "y"}}

	for _, format := range []Format{FormatYAML, FormatJSON} {
		raw, err := Marshal(data, format)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", format, err)
		}
		back, err := Unmarshal(raw, format)
		if err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", format, err)
		}
		if !reflect.DeepEqual(back["a"], "x") {
			t.Errorf("%s: expected a=x, got %v", format, back["a"])
		}
	}

	if _, err := Marshal(data, Format("toml")); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestSaveFile_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "nested", "data.yaml")

	s := New()
	s.Set("k", "v")
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected file to exist: %v", err)
	}
}
