package sync

import (
	"github.com/just-nadir/justpos-sync/internal/store"
)

// Change is one record mutation on the wire. Data carries the row's
// business columns for INSERT/UPDATE and is omitted for DELETE.
type Change struct {
	Table    string         `json:"table"`
	RecordID string         `json:"record_id"`
	Action   store.Action   `json:"action"`
	Data     map[string]any `json:"data,omitempty"`
}

// PushRequest is the batch a store submits to the cloud apply endpoint.
// The whole batch is applied in one transaction or not at all.
type PushRequest struct {
	StoreID string   `json:"store_id"`
	Changes []Change `json:"changes"`
}

type PushResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PullResponse carries every change past the store's cursor plus the
// authority clock reading the cursor advances to.
type PullResponse struct {
	Success    bool     `json:"success"`
	ServerTime int64    `json:"server_time"`
	Changes    []Change `json:"changes"`
	Error      string   `json:"error,omitempty"`
}

type PushResult struct {
	Pushed  int
	Batches int
}

type PullResult struct {
	Applied    int
	ServerTime int64
}
