package shard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrNoOpenShards is returned when a shard set contains no open shards after
// filtering and deduplication. It signals a contract violation by the
// component supplying shard metadata, not a transient condition; callers
// typically keep the previous entry and wait for fresh metadata.
var ErrNoOpenShards = errors.New("no open shards")

// Key identifies the shard set of one (index, source) pair. Keys are compared
// by exact string equality, no normalization.
type Key struct {
	IndexID  string
	SourceID string
}

func (k Key) String() string { return k.IndexID + "/" + k.SourceID }

// TableEntry holds the open shards of one (index, source) pair. The shard
// slice is immutable after construction; only the round-robin cursor mutates.
type TableEntry struct {
	shards []Shard
	cursor atomic.Uint64
}

// NewTableEntry builds an entry from the control plane's shard set. Closed
// shards are dropped, the remainder is sorted ascending by shard ID and
// deduplicated by shard ID. Returns ErrNoOpenShards if nothing survives.
func NewTableEntry(shards []Shard) (*TableEntry, error) {
	open := make([]Shard, 0, len(shards))
	for _, s := range shards {
		if s.IsOpen() {
			open = append(open, s)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].ShardID < open[j].ShardID })

	deduped := open[:0]
	for _, s := range open {
		if len(deduped) == 0 || deduped[len(deduped)-1].ShardID != s.ShardID {
			deduped = append(deduped, s)
		}
	}
	if len(deduped) == 0 {
		return nil, ErrNoOpenShards
	}
	return &TableEntry{shards: deduped}, nil
}

// NextShardRoundRobin returns the next shard in round-robin order. Safe for
// concurrent callers; the first call returns the lowest shard ID.
func (e *TableEntry) NextShardRoundRobin() Shard {
	idx := e.cursor.Add(1) - 1
	return e.shards[idx%uint64(len(e.shards))]
}

// Len returns the number of open shards in the entry.
func (e *TableEntry) Len() int { return len(e.shards) }

// Shards returns a copy of the entry's shard set in ascending shard ID order.
func (e *TableEntry) Shards() []Shard {
	out := make([]Shard, len(e.shards))
	copy(out, e.shards)
	return out
}

// Table maps (index, source) pairs to their open shard sets. Reads vastly
// outnumber writes: every record write resolves an entry, while entries only
// change when shard membership does.
type Table struct {
	mu      sync.RWMutex
	entries map[Key]*TableEntry
}

// NewTable creates an empty shard table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]*TableEntry)}
}

// ContainsEntry reports whether the table has an entry for the pair.
func (t *Table) ContainsEntry(indexID, sourceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[Key{IndexID: indexID, SourceID: sourceID}]
	return ok
}

// FindEntry returns the entry for the pair, if any.
func (t *Table) FindEntry(indexID, sourceID string) (*TableEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[Key{IndexID: indexID, SourceID: sourceID}]
	return entry, ok
}

// InsertShards builds a fresh entry from shards and replaces any existing
// entry for the pair wholesale: the new entry's cursor starts at zero. There
// is no incremental add/remove; refreshing shard state means recomputing the
// full open-shard set upstream and re-inserting it.
func (t *Table) InsertShards(indexID, sourceID string, shards []Shard) error {
	key := Key{IndexID: indexID, SourceID: sourceID}

	// Construct outside the lock so readers only ever block on the map swap.
	entry, err := NewTableEntry(shards)
	if err != nil {
		return fmt.Errorf("insert shards for %s: %w", key, err)
	}

	t.mu.Lock()
	t.entries[key] = entry
	t.mu.Unlock()
	return nil
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
