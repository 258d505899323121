// Package stores provides durable persistence for entity snapshots and an
// audit trail of dispatched actions, backed by SQLite with embedded
// migrations.
package stores
