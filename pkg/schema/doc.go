// Package schema evaluates field values against declared constraint sets.
//
// A ConstraintSet is the declarative description of what a single value may
// look like: a primitive type, length bounds, a numeric range, a regular
// expression pattern, or an enumeration. The Evaluator checks one value
// against one set and reports pass/fail with a human-readable detail string.
// It deliberately knows nothing about entities, fields, or lifecycle state;
// callers own the mapping from field names to constraint sets.
package schema
