package store

import (
	"errors"
)

// Action is the kind of mutation recorded in the change queue and carried
// on the wire.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ErrRowNotFound is returned by the write API when the target row does not
// exist. No queue entry is appended in that case.
var ErrRowNotFound = errors.New("row not found")

// QueueEntry is one pending outbound mutation. Entries are created by the
// write API in the same transaction as the row mutation, and removed by the
// push pipeline only after the cloud acknowledged the batch. They are never
// mutated in place.
type QueueEntry struct {
	ID        int64
	TableName string
	RecordID  string
	Action    Action
	CreatedAt int64
}

// RemoteChange is one change received from the cloud, ready to apply.
type RemoteChange struct {
	Table    string
	RecordID string
	Action   Action
	Data     map[string]any
}
