package crdt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrInvalidDelta indicates that a delta payload could not be decoded.
	ErrInvalidDelta = errors.New("crdt: invalid delta")
	// ErrInvalidSnapshot indicates that a snapshot payload could not be decoded.
	ErrInvalidSnapshot = errors.New("crdt: invalid snapshot")
)

// ReplicatedDocument is the merge engine the sync layer builds on. Updates
// merge commutatively, associatively, and idempotently; callers may apply
// the same delta stream in any order and converge on the same state.
type ReplicatedDocument interface {
	ApplyUpdate(delta []byte) error
	DiffSince(version int64) ([]byte, error)
	Snapshot() []byte
	Version() int64
}

// Entry is one last-writer-wins register inside the document map. Conflicts
// resolve on the higher (Timestamp, NodeID) pair.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp int64           `json:"ts"`
	NodeID    string          `json:"node_id"`
	Deleted   bool            `json:"deleted,omitempty"`
}

func (e Entry) supersedes(other Entry) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp > other.Timestamp
	}
	return e.NodeID > other.NodeID
}

type delta struct {
	Entries []Entry `json:"entries"`
}

// LWWDocument is a last-writer-wins map document. The zero value is not
// usable; construct with NewLWWDocument.
type LWWDocument struct {
	mu      sync.RWMutex
	entries map[string]Entry
	nodeID  string
	clock   int64
}

// NewLWWDocument returns an empty document owned by the given node.
func NewLWWDocument(nodeID string) *LWWDocument {
	return &LWWDocument{
		entries: make(map[string]Entry),
		nodeID:  nodeID,
	}
}

// ApplyUpdate merges a delta into the document. Applying the same delta
// twice is a no-op; applying deltas in a different order yields the same
// final entries.
func (d *LWWDocument) ApplyUpdate(payload []byte) error {
	decoded, err := decodeDelta(payload)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, entry := range decoded.Entries {
		existing, ok := d.entries[entry.Key]
		if ok && !entry.supersedes(existing) {
			continue
		}
		d.entries[entry.Key] = entry
		if entry.Timestamp > d.clock {
			d.clock = entry.Timestamp
		}
	}
	return nil
}

// Set records a local mutation and returns the delta that carries it.
func (d *LWWDocument) Set(key string, value json.RawMessage) ([]byte, error) {
	return d.mutate(key, value, false)
}

// Delete records a local tombstone and returns the delta that carries it.
func (d *LWWDocument) Delete(key string) ([]byte, error) {
	return d.mutate(key, nil, true)
}

func (d *LWWDocument) mutate(key string, value json.RawMessage, deleted bool) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidDelta)
	}

	d.mu.Lock()
	d.clock++
	entry := Entry{
		Key:       key,
		Value:     value,
		Timestamp: d.clock,
		NodeID:    d.nodeID,
		Deleted:   deleted,
	}
	d.entries[key] = entry
	d.mu.Unlock()

	return json.Marshal(delta{Entries: []Entry{entry}})
}

// DiffSince returns a delta carrying every entry written after the given
// version. A version of zero returns the full state.
func (d *LWWDocument) DiffSince(version int64) ([]byte, error) {
	d.mu.RLock()
	entries := make([]Entry, 0, len(d.entries))
	for _, entry := range d.entries {
		if entry.Timestamp > version {
			entries = append(entries, entry)
		}
	}
	d.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].Key < entries[j].Key
	})
	return json.Marshal(delta{Entries: entries})
}

// Snapshot serializes the full document state as one delta. Replaying a
// snapshot into an empty document reproduces the state exactly.
func (d *LWWDocument) Snapshot() []byte {
	payload, err := d.DiffSince(0)
	if err != nil {
		// DiffSince only fails on marshaling, and entries are
		// constructed from previously-marshaled JSON.
		return []byte(`{"entries":[]}`)
	}
	return payload
}

// Version returns the highest timestamp merged into the document.
func (d *LWWDocument) Version() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.clock
}

// Get returns the live (non-tombstoned) value for a key.
func (d *LWWDocument) Get(key string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[key]
	if !ok || entry.Deleted {
		return nil, false
	}
	return entry.Value, true
}

// Keys returns the live keys in lexical order.
func (d *LWWDocument) Keys() []string {
	d.mu.RLock()
	keys := make([]string, 0, len(d.entries))
	for key, entry := range d.entries {
		if entry.Deleted {
			continue
		}
		keys = append(keys, key)
	}
	d.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Equal reports whether two documents hold the same live entries.
func (d *LWWDocument) Equal(other *LWWDocument) bool {
	if other == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for key, entry := range d.entries {
		otherEntry, ok := other.entries[key]
		if !ok {
			return false
		}
		if entry.Deleted != otherEntry.Deleted {
			return false
		}
		if string(entry.Value) != string(otherEntry.Value) {
			return false
		}
	}
	for key := range other.entries {
		if _, ok := d.entries[key]; !ok {
			return false
		}
	}
	return true
}

func decodeDelta(payload []byte) (delta, error) {
	if len(payload) == 0 {
		return delta{}, fmt.Errorf("%w: empty payload", ErrInvalidDelta)
	}
	var decoded delta
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return delta{}, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	for _, entry := range decoded.Entries {
		if entry.Key == "" {
			return delta{}, fmt.Errorf("%w: entry with empty key", ErrInvalidDelta)
		}
		if entry.NodeID == "" {
			return delta{}, fmt.Errorf("%w: entry with empty node id", ErrInvalidDelta)
		}
	}
	return decoded, nil
}
