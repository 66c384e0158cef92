package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/marketsci/robynq/internal/client"
	"github.com/marketsci/robynq/internal/model"
)

// storageAttempts bounds the backoff on queue document reads and
// writes. Entry-level failures are never retried; this covers only
// transient storage errors on the document itself.
const storageAttempts = 3

// QueueStore reads and writes queue documents in object storage. Each
// named queue is one JSON object; every mutation is a read-modify-write
// of the whole document.
type QueueStore struct {
	store  client.ObjectStore
	bucket string
}

// NewQueueStore creates a queue store over the control bucket
func NewQueueStore(store client.ObjectStore, bucket string) *QueueStore {
	return &QueueStore{
		store:  store,
		bucket: bucket,
	}
}

// Key returns the object key for a named queue
func Key(queueName string) string {
	return fmt.Sprintf("robyn-queues/%s/queue.json", queueName)
}

// Load fetches the queue document. A missing object is not an error:
// it yields an empty RUNNING queue so enqueue-before-first-tick works.
func (s *QueueStore) Load(ctx context.Context, queueName string) (*model.QueueDocument, error) {
	var data []byte

	err := retry.Do(
		func() error {
			var err error
			data, err = s.store.Download(ctx, s.bucket, Key(queueName))
			return err
		},
		retry.Attempts(storageAttempts),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, client.ErrObjectNotFound)
		}),
	)
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return &model.QueueDocument{Status: model.QueueStatusRunning}, nil
		}
		return nil, fmt.Errorf("failed to load queue %q: %w", queueName, err)
	}

	var doc model.QueueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse queue %q: %w", queueName, err)
	}

	return &doc, nil
}

// Save writes the queue document back, replacing the stored copy
func (s *QueueStore) Save(ctx context.Context, queueName string, doc *model.QueueDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue %q: %w", queueName, err)
	}

	err = retry.Do(
		func() error {
			return s.store.Upload(ctx, s.bucket, Key(queueName), bytes.NewReader(data), "application/json")
		},
		retry.Attempts(storageAttempts),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save queue %q: %w", queueName, err)
	}

	return nil
}

// NextPending returns the first entry, in stored order, with status
// PENDING, or nil when there is none
func NextPending(doc *model.QueueDocument) *model.JobEntry {
	for i := range doc.Entries {
		if doc.Entries[i].Status == model.EntryStatusPending {
			return &doc.Entries[i]
		}
	}
	return nil
}

// MarkFields carries the optional fields recorded with a transition
type MarkFields struct {
	ExecutionRef string
	ResultPrefix string
	Error        string
	Verification string
}

// Mark transitions an entry to a new status, appending to its audit
// trail and stamping updated_at. The error text is recorded only with
// FAILED.
func Mark(doc *model.QueueDocument, id int, status model.EntryStatus, fields MarkFields) error {
	entry := doc.Entry(id)
	if entry == nil {
		return fmt.Errorf("entry %d not found", id)
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.UpdatedAt = now
	entry.History = append(entry.History, model.StatusChange{Status: status, At: now})

	if fields.ExecutionRef != "" {
		entry.ExecutionRef = fields.ExecutionRef
	}
	if fields.ResultPrefix != "" {
		entry.ResultPrefix = fields.ResultPrefix
	}
	if fields.Verification != "" {
		entry.Verification = fields.Verification
	}
	if status == model.EntryStatusFailed && fields.Error != "" {
		msg := fields.Error
		entry.Error = &msg
	}

	return nil
}

// Append adds a new PENDING entry with the next monotonic id and
// returns it
func Append(doc *model.QueueDocument, params map[string]interface{}) *model.JobEntry {
	now := time.Now().UTC()
	entry := model.JobEntry{
		ID:        doc.NextID(),
		Status:    model.EntryStatusPending,
		Params:    params,
		History:   []model.StatusChange{{Status: model.EntryStatusPending, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.Entries = append(doc.Entries, entry)
	return &doc.Entries[len(doc.Entries)-1]
}
