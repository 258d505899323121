// Package entity implements the schema-driven smart object runtime. A class
// is declared once through a Builder, producing an immutable Descriptor; the
// Descriptor synthesizes per-field accessors bound to one of two storage
// strategies, and every instance built from it combines typed validated field
// access, a bounded lifecycle state machine, and role-authorized action
// dispatch.
//
// The Runtime type is the composition root: it owns the bounded entity and
// schema caches and wires logging, metrics, and tracing around dispatch.
package entity
