package model

import "time"

// QueueStatus controls whether the tick processor acts on a queue
type QueueStatus string

const (
	QueueStatusRunning QueueStatus = "RUNNING"
	QueueStatusPaused  QueueStatus = "PAUSED"
)

// EntryStatus is the lifecycle state of a single job entry.
// PENDING is initial; SUCCEEDED and FAILED are terminal.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusLaunching EntryStatus = "LAUNCHING"
	EntryStatusRunning   EntryStatus = "RUNNING"
	EntryStatusSucceeded EntryStatus = "SUCCEEDED"
	EntryStatusFailed    EntryStatus = "FAILED"
)

// IsTerminal reports whether an entry in this status is never revisited
// by normal processing (only by cleanup, for deletion).
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusSucceeded || s == EntryStatusFailed
}

// StatusChange is one record in an entry's audit trail
type StatusChange struct {
	Status EntryStatus `json:"status"`
	At     time.Time   `json:"at"`
}

// JobEntry is one requested unit of work within a queue document
type JobEntry struct {
	ID           int                    `json:"id"`
	Status       EntryStatus            `json:"status"`
	Params       map[string]interface{} `json:"params"`
	ExecutionRef string                 `json:"execution_ref,omitempty"`
	ResultPrefix string                 `json:"result_prefix,omitempty"`
	Error        *string                `json:"error,omitempty"`
	Verification string                 `json:"verification,omitempty"`
	History      []StatusChange         `json:"history,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// QueueDocument is the sole persisted aggregate: one JSON object per
// named queue, read-modify-written as a whole on every mutation.
// Entry order is submission order and defines FIFO processing.
type QueueDocument struct {
	Status  QueueStatus `json:"status"`
	Entries []JobEntry  `json:"entries"`
}

// NextID returns the next monotonic entry id for the document
func (d *QueueDocument) NextID() int {
	max := 0
	for _, e := range d.Entries {
		if e.ID > max {
			max = e.ID
		}
	}
	return max + 1
}

// Entry returns a pointer to the entry with the given id, or nil
func (d *QueueDocument) Entry(id int) *JobEntry {
	for i := range d.Entries {
		if d.Entries[i].ID == id {
			return &d.Entries[i]
		}
	}
	return nil
}
