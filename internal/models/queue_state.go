package models

import "time"

// QueueState is a point-in-time copy of the offline queue.
type QueueState struct {
	Online       bool            `json:"online"`
	Syncing      bool            `json:"syncing"`
	LastSyncTime *time.Time      `json:"last_sync_time,omitempty"`
	Pending      []PendingAction `json:"pending"`
}

// SyncResult reports the outcome of one synchronization pass.
type SyncResult struct {
	Succeeded    []string  `json:"succeeded"`
	Failed       []string  `json:"failed"`
	DeadLettered []string  `json:"dead_lettered,omitempty"`
	Skipped      []string  `json:"skipped,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Attempted is the number of actions replayed in the pass.
func (r *SyncResult) Attempted() int {
	return len(r.Succeeded) + len(r.Failed)
}
