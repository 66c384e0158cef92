package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/marketsci/robynq/internal/model"
	"github.com/marketsci/robynq/internal/orchestrator"
	"github.com/marketsci/robynq/internal/store"
)

const TaskTypeVerify = "verify:results"

// VerifyTaskPayload identifies the entry whose results a background
// worker should look for
type VerifyTaskPayload struct {
	Queue        string `json:"queue"`
	EntryID      int    `json:"entryId"`
	ResultPrefix string `json:"resultPrefix"`
}

// NewVerifyTask builds the asynq task for one verification pass
func NewVerifyTask(queueName string, entryID int, resultPrefix string) (*asynq.Task, error) {
	data, err := json.Marshal(VerifyTaskPayload{
		Queue:        queueName,
		EntryID:      entryID,
		ResultPrefix: resultPrefix,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeVerify, data), nil
}

// AsynqVerifyScheduler implements orchestrator.VerifyScheduler by
// enqueueing verification onto the background worker
type AsynqVerifyScheduler struct {
	client *asynq.Client
}

func NewAsynqVerifyScheduler(client *asynq.Client) *AsynqVerifyScheduler {
	return &AsynqVerifyScheduler{client: client}
}

func (s *AsynqVerifyScheduler) ScheduleVerify(ctx context.Context, queueName string, entryID int, resultPrefix string) error {
	task, err := NewVerifyTask(queueName, entryID, resultPrefix)
	if err != nil {
		return fmt.Errorf("failed to create verify task: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue("verify"),
		asynq.TaskID(fmt.Sprintf("verify:%s:%d", queueName, entryID)),
		asynq.MaxRetry(2),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue verify task: %w", err)
	}
	return nil
}

// QueueService fronts the queue store for the producer-facing API
type QueueService struct {
	queues    *store.QueueStore
	processor *orchestrator.Processor
}

func NewQueueService(queues *store.QueueStore, processor *orchestrator.Processor) *QueueService {
	return &QueueService{
		queues:    queues,
		processor: processor,
	}
}

// Enqueue appends one PENDING entry per parameter dictionary and
// returns the assigned ids
func (s *QueueService) Enqueue(ctx context.Context, queueName string, jobs []map[string]interface{}) ([]int, error) {
	doc, err := s.queues.Load(ctx, queueName)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(jobs))
	for _, params := range jobs {
		entry := store.Append(doc, params)
		ids = append(ids, entry.ID)
	}

	if err := s.queues.Save(ctx, queueName, doc); err != nil {
		return nil, err
	}
	return ids, nil
}

// Get returns the queue document
func (s *QueueService) Get(ctx context.Context, queueName string) (*model.QueueResponse, error) {
	doc, err := s.queues.Load(ctx, queueName)
	if err != nil {
		return nil, err
	}
	return &model.QueueResponse{
		Queue:   queueName,
		Status:  doc.Status,
		Entries: doc.Entries,
	}, nil
}

// Pause stops the tick processor from acting on the queue until it is
// resumed (or until the next tick auto-resumes it)
func (s *QueueService) Pause(ctx context.Context, queueName string) (*model.QueueControlResponse, error) {
	return s.setStatus(ctx, queueName, model.QueueStatusPaused)
}

// Resume re-enables processing
func (s *QueueService) Resume(ctx context.Context, queueName string) (*model.QueueControlResponse, error) {
	return s.setStatus(ctx, queueName, model.QueueStatusRunning)
}

func (s *QueueService) setStatus(ctx context.Context, queueName string, status model.QueueStatus) (*model.QueueControlResponse, error) {
	doc, err := s.queues.Load(ctx, queueName)
	if err != nil {
		return nil, err
	}

	doc.Status = status
	if err := s.queues.Save(ctx, queueName, doc); err != nil {
		return nil, err
	}
	return &model.QueueControlResponse{Queue: queueName, Status: status}, nil
}

// Tick advances at most one entry, on demand
func (s *QueueService) Tick(ctx context.Context, queueName string) (*model.TickResponse, error) {
	result, err := s.processor.Tick(ctx, queueName)
	if err != nil {
		return nil, err
	}

	resp := &model.TickResponse{Queue: queueName, Processed: result.Processed}
	if result.Processed {
		id := result.EntryID
		resp.EntryID = &id
	}
	return resp, nil
}
