// Package shard tracks the open partitions of each (index, source) write
// stream and hands out the next shard to target using round-robin selection.
package shard

import "fmt"

// State reports whether a shard accepts writes.
type State int

const (
	StateUnspecified State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unspecified"
	}
}

// ParseState converts the control plane's string form of a shard state.
func ParseState(s string) (State, error) {
	switch s {
	case "open":
		return StateOpen, nil
	case "closed":
		return StateClosed, nil
	case "", "unspecified":
		return StateUnspecified, nil
	default:
		return StateUnspecified, fmt.Errorf("unknown shard state %q", s)
	}
}

// Shard is one partition of an index+source write stream, owned by a single
// leader node. Supplied by the control plane and consumed read-only here.
type Shard struct {
	ShardID  int64  `json:"shard_id"`
	LeaderID string `json:"leader_id"`
	State    State  `json:"-"`
	IndexUID string `json:"index_uid"`
}

// IsOpen reports whether the shard accepts writes.
func (s Shard) IsOpen() bool { return s.State == StateOpen }
