package entity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/entitykit/entitykit/pkg/fieldstore"
)

// SnapshotMetadata is the metadata block of a persisted snapshot. Timestamps
// are ISO-8601 strings.
type SnapshotMetadata struct {
	ID        string                 `json:"id" yaml:"id"`
	Type      string                 `json:"type" yaml:"type"`
	State     State                  `json:"state" yaml:"state"`
	Version   int                    `json:"version" yaml:"version"`
	CreatedAt string                 `json:"created_at" yaml:"created_at"`
	UpdatedAt string                 `json:"updated_at" yaml:"updated_at"`
	Tags      []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Snapshot is the persisted form of one entity: metadata, the plain data
// mapping, and optionally the class schema and action table for
// self-describing exports.
type Snapshot struct {
	Metadata SnapshotMetadata        `json:"metadata" yaml:"metadata"`
	Data     map[string]interface{}  `json:"data" yaml:"data"`
	Schema   map[string]interface{}  `json:"schema,omitempty" yaml:"schema,omitempty"`
	Actions  map[string]ActionExport `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// SnapshotOptions controls which optional blocks a snapshot carries.
type SnapshotOptions struct {
	IncludeSchema  bool
	IncludeActions bool
}

// Snapshot renders the entity into its persisted form. Round-tripping
// through FromSnapshot reproduces the data mapping and the metadata's state,
// version, tags, and annotations.
func (e *Entity) Snapshot(opts SnapshotOptions) *Snapshot {
	e.lock()
	defer e.unlock()

	tags := make([]string, len(e.meta.Tags))
	copy(tags, e.meta.Tags)
	meta := make(map[string]interface{}, len(e.meta.Meta))
	for k, v := range e.meta.Meta {
		meta[k] = v
	}

	snap := &Snapshot{
		Metadata: SnapshotMetadata{
			ID:        e.identity.ID,
			Type:      e.identity.Type,
			State:     e.meta.State,
			Version:   e.meta.Version,
			CreatedAt: e.meta.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt: e.meta.UpdatedAt.Format(time.RFC3339Nano),
			Tags:      tags,
			Meta:      meta,
		},
		Data: e.dataLocked(),
	}
	if opts.IncludeSchema {
		snap.Schema = e.desc.DescribeSchema()
	}
	if opts.IncludeActions {
		snap.Actions = e.desc.ExportActions()
	}
	return snap
}

// FromSnapshot reconstructs an entity of the given class from a snapshot.
// The snapshot's id is kept when present; otherwise a fresh one is assigned.
// Data is loaded without re-validation — snapshots are trusted to have been
// validated when written.
func FromSnapshot(desc *Descriptor, snap *Snapshot) (*Entity, error) {
	id := snap.Metadata.ID
	if id == "" {
		id = uuid.NewString()
	}
	return fromSnapshotWithID(desc, snap, id)
}

// FromSnapshotWithID reconstructs an entity with an externally supplied id,
// the way collection imports key snapshots by id and assign it after the
// fact.
func FromSnapshotWithID(desc *Descriptor, snap *Snapshot, id string) (*Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("entity id must not be empty")
	}
	return fromSnapshotWithID(desc, snap, id)
}

func fromSnapshotWithID(desc *Descriptor, snap *Snapshot, id string) (*Entity, error) {
	if snap.Metadata.Type != "" && snap.Metadata.Type != desc.entityType {
		return nil, fmt.Errorf("snapshot type %q does not match class %q", snap.Metadata.Type, desc.entityType)
	}

	e := New(desc)
	e.identity.ID = id
	e.loadData(snap.Data)

	if snap.Metadata.State != "" {
		e.meta.State = snap.Metadata.State
	}
	if snap.Metadata.Version > 0 {
		e.meta.Version = snap.Metadata.Version
	}
	if t, err := time.Parse(time.RFC3339Nano, snap.Metadata.CreatedAt); err == nil {
		e.meta.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, snap.Metadata.UpdatedAt); err == nil {
		e.meta.UpdatedAt = t
	}
	if len(snap.Metadata.Tags) > 0 {
		e.meta.Tags = append([]string(nil), snap.Metadata.Tags...)
	}
	for k, v := range snap.Metadata.Meta {
		e.meta.Meta[k] = v
	}
	return e, nil
}

// loadData seeds field storage from a plain mapping without touching the
// version counter. Declared direct fields go to their slots, everything else
// to the field store.
func (e *Entity) loadData(data map[string]interface{}) {
	e.store.LoadMap(data)
	for i := range e.acc.accessors {
		a := &e.acc.accessors[i]
		if !a.direct {
			continue
		}
		if e.store.Has(a.spec.Name) {
			e.slots[a.slot] = e.store.Get(a.spec.Name, nil)
			e.set[a.slot] = true
			e.store.Delete(a.spec.Name)
		}
	}
}

// SaveFile writes the entity's snapshot to a file, YAML or JSON by
// extension, creating parent directories.
func (e *Entity) SaveFile(path string, opts SnapshotOptions) error {
	snap := e.Snapshot(opts)

	raw, err := marshalByPath(snap, path)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a snapshot file and reconstructs an entity of the given
// class.
func LoadFile(desc *Descriptor, path string) (*Entity, error) {
	var snap Snapshot
	if err := unmarshalFile(path, &snap); err != nil {
		return nil, err
	}
	return FromSnapshot(desc, &snap)
}

// BundleMetadata is the metadata block of a collection bundle.
type BundleMetadata struct {
	Type       string `json:"type" yaml:"type"`
	Count      int    `json:"count" yaml:"count"`
	ExportedAt string `json:"exported_at" yaml:"exported_at"`
}

// Bundle is the persisted form of a collection: per-entity data payloads
// keyed by entity id, sharing one schema/actions block across the class.
type Bundle struct {
	Metadata BundleMetadata                    `json:"metadata" yaml:"metadata"`
	Data     map[string]map[string]interface{} `json:"data" yaml:"data"`
	Schema   map[string]interface{}            `json:"schema,omitempty" yaml:"schema,omitempty"`
	Actions  map[string]ActionExport           `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// NewBundle renders a set of same-class entities into a collection bundle.
func NewBundle(entities []*Entity, opts SnapshotOptions) (*Bundle, error) {
	b := &Bundle{
		Data: make(map[string]map[string]interface{}, len(entities)),
	}
	for _, e := range entities {
		if b.Metadata.Type == "" {
			b.Metadata.Type = e.identity.Type
			if opts.IncludeSchema {
				b.Schema = e.desc.DescribeSchema()
			}
			if opts.IncludeActions {
				b.Actions = e.desc.ExportActions()
			}
		} else if e.identity.Type != b.Metadata.Type {
			return nil, fmt.Errorf("bundle requires a single class: got %q and %q", b.Metadata.Type, e.identity.Type)
		}
		b.Data[e.ID()] = e.Data()
	}
	b.Metadata.Count = len(b.Data)
	b.Metadata.ExportedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return b, nil
}

// Entities reconstructs every entity in the bundle, assigning each its key as
// id. The reconstructed entities start fresh in DRAFT at version 1; bundles
// carry data, not lifecycle history.
func (b *Bundle) Entities(desc *Descriptor) ([]*Entity, error) {
	if b.Metadata.Type != "" && b.Metadata.Type != desc.Type() {
		return nil, fmt.Errorf("bundle type %q does not match class %q", b.Metadata.Type, desc.Type())
	}

	out := make([]*Entity, 0, len(b.Data))
	for _, id := range sortedBundleIDs(b.Data) {
		e := New(desc)
		e.identity.ID = id
		e.loadData(b.Data[id])
		out = append(out, e)
	}
	return out, nil
}

// SaveFile writes the bundle to a file, YAML or JSON by extension.
func (b *Bundle) SaveFile(path string) error {
	raw, err := marshalByPath(b, path)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadBundleFile reads a collection bundle from a file.
func LoadBundleFile(path string) (*Bundle, error) {
	var b Bundle
	if err := unmarshalFile(path, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func marshalByPath(v interface{}, path string) ([]byte, error) {
	if fieldstore.FormatForPath(path) == fieldstore.FormatJSON {
		return json.MarshalIndent(v, "", "  ")
	}
	return yaml.Marshal(v)
}

func unmarshalFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if fieldstore.FormatForPath(path) == fieldstore.FormatJSON {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func sortedBundleIDs(data map[string]map[string]interface{}) []string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
