// Package fieldstore provides a generic nested key/value container addressed
// by dotted paths, plus YAML/JSON file round-tripping and a read-only view.
//
// The store is the memory-light backing used by delegated field accessors:
// values live in a tree of string-keyed maps and are reached by paths such as
// "profile.address.city". Intermediate maps are created on write and pruned
// lazily. The store itself performs no locking; owners serialize access.
package fieldstore
