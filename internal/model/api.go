package model

// EnqueueRequest is a batch of producer-defined parameter dictionaries,
// one per job to append
type EnqueueRequest struct {
	Jobs []map[string]interface{} `json:"jobs" validate:"required,min=1,dive,required"`
}

// EnqueueResponse reports the ids assigned to the appended entries
type EnqueueResponse struct {
	Queue string `json:"queue"`
	IDs   []int  `json:"ids"`
	Count int    `json:"count"`
}

// QueueResponse is the full queue document plus its name
type QueueResponse struct {
	Queue   string      `json:"queue"`
	Status  QueueStatus `json:"status"`
	Entries []JobEntry  `json:"entries"`
}

// QueueControlResponse acknowledges a pause/resume request
type QueueControlResponse struct {
	Queue  string      `json:"queue"`
	Status QueueStatus `json:"status"`
}

// TickResponse reports the outcome of a single manually triggered tick
type TickResponse struct {
	Queue     string `json:"queue"`
	Processed bool   `json:"processed"`
	EntryID   *int   `json:"entryId,omitempty"`
}
