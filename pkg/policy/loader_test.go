package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const denyAllRego = `package entitykit.authz

import rego.v1

default allow := false

reason := "everything is denied" if {
	not allow
}
`

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoaderLoadFile(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	path := writePolicy(t, dir, "authz.rego", BuiltinAuthzRego)
	source, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if source != BuiltinAuthzRego {
		t.Error("Expected the file contents back")
	}

	if _, err := l.LoadFile(writePolicy(t, dir, "authz.yaml", "x")); err == nil {
		t.Error("Expected error for a non-rego extension")
	}
	if _, err := l.LoadFile(writePolicy(t, dir, "empty.rego", "")); err == nil {
		t.Error("Expected error for an empty policy file")
	}
	if _, err := l.LoadFile(filepath.Join(dir, "missing.rego")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestLoaderAuthorizer(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "authz.rego", BuiltinAuthzRego)

	a, err := l.Authorizer(context.Background(), path)
	if err != nil {
		t.Fatalf("Authorizer failed: %v", err)
	}

	decision, err := a.Authorize(context.Background(), Request{
		Action:       "promote",
		CallerRoles:  []string{"admin"},
		AllowedRoles: []string{"admin"},
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("Expected the builtin policy to admit a matching role")
	}
}

func TestLoaderWatchReloadsPolicy(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	defer l.Close()

	dir := t.TempDir()
	path := writePolicy(t, dir, "authz.rego", BuiltinAuthzRego)

	a, err := l.Authorizer(context.Background(), path)
	if err != nil {
		t.Fatalf("Authorizer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Watch(ctx, path, a); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// The policy file is replaced with one that denies everything.
	writePolicy(t, dir, "authz.rego", denyAllRego)

	req := Request{
		Action:       "promote",
		CallerRoles:  []string{"admin"},
		AllowedRoles: []string{"admin"},
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		decision, err := a.Authorize(context.Background(), req)
		if err != nil {
			t.Fatalf("Authorize failed: %v", err)
		}
		if !decision.Allowed {
			if decision.Reason != "everything is denied" {
				t.Errorf("Unexpected denial reason %q", decision.Reason)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the policy reload")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestLoaderCloseIsIdempotent(t *testing.T) {
	l := NewLoader(zerolog.Nop())
	path := writePolicy(t, t.TempDir(), "authz.rego", BuiltinAuthzRego)

	a, err := l.Authorizer(context.Background(), path)
	if err != nil {
		t.Fatalf("Authorizer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Watch(ctx, path, a); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}
