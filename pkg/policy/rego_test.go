package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestRegoAuthorizer_BuiltinPolicy(t *testing.T) {
	ctx := context.Background()
	a, err := NewRegoAuthorizer(ctx, BuiltinAuthzRego, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegoAuthorizer failed: %v", err)
	}

	dec, err := a.Authorize(ctx, Request{
		Action:       "promote",
		CallerRoles:  []string{"admin"},
		AllowedRoles: []string{"admin", "operator"},
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !dec.Allowed {
		t.Errorf("Expected intersecting roles to be allowed: %+v", dec)
	}

	dec, err = a.Authorize(ctx, Request{
		Action:       "promote",
		CallerRoles:  []string{"viewer"},
		AllowedRoles: []string{"admin"},
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if dec.Allowed {
		t.Error("Expected disjoint roles to be denied")
	}
	if dec.Reason == "" {
		t.Error("Expected a reason on denial")
	}
}

func TestRegoAuthorizer_Wildcard(t *testing.T) {
	ctx := context.Background()
	a, err := NewRegoAuthorizer(ctx, BuiltinAuthzRego, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegoAuthorizer failed: %v", err)
	}

	dec, err := a.Authorize(ctx, Request{
		Action:       "describe",
		AllowedRoles: []string{"*"},
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !dec.Allowed {
		t.Error("Expected wildcard to admit a caller with no roles")
	}
}

func TestRegoAuthorizer_CustomPolicy(t *testing.T) {
	// Deny all commands outside business hours would be the realistic case;
	// here a profile gate keeps the test deterministic.
	const source = `package entitykit.authz

import rego.v1

default allow := false

allow if {
	input.profile != "command"
	"*" in input.allowed_roles
}

allow if {
	input.profile == "command"
	"admin" in input.caller_roles
}

reason := "commands require the admin role" if {
	not allow
	input.profile == "command"
}
`
	ctx := context.Background()
	a, err := NewRegoAuthorizer(ctx, source, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegoAuthorizer failed: %v", err)
	}

	dec, err := a.Authorize(ctx, Request{
		Action:       "deactivate",
		Profile:      "command",
		CallerRoles:  []string{"user"},
		AllowedRoles: []string{"*"},
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if dec.Allowed {
		t.Error("Expected command to be denied for non-admin despite wildcard")
	}
	if dec.Reason != "commands require the admin role" {
		t.Errorf("Unexpected reason: %q", dec.Reason)
	}
}

func TestRegoAuthorizer_SetPolicyRejectsBadSource(t *testing.T) {
	ctx := context.Background()
	a, err := NewRegoAuthorizer(ctx, BuiltinAuthzRego, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegoAuthorizer failed: %v", err)
	}

	if err := a.SetPolicy(ctx, "package entitykit.authz\n\nallow {"); err == nil {
		t.Fatal("Expected compile error for malformed policy")
	}

	// The previous policy stays in effect.
	dec, err := a.Authorize(ctx, Request{AllowedRoles: []string{"*"}})
	if err != nil {
		t.Fatalf("Authorize after failed SetPolicy: %v", err)
	}
	if !dec.Allowed {
		t.Error("Expected previous policy to remain active")
	}
}
