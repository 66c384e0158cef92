package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/marketsci/robynq/internal/service"
	"github.com/marketsci/robynq/internal/store"
	"github.com/marketsci/robynq/internal/trainer"
)

// VerifyWorker runs result verification off the tick path. It records
// the outcome as a note on the entry; the entry's terminal status is
// never touched.
type VerifyWorker struct {
	queues   *store.QueueStore
	verifier *trainer.Verifier
}

// NewVerifyWorker creates a verification worker
func NewVerifyWorker(queues *store.QueueStore, verifier *trainer.Verifier) *VerifyWorker {
	return &VerifyWorker{
		queues:   queues,
		verifier: verifier,
	}
}

// ProcessTask handles one verification task
func (w *VerifyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.VerifyTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal verify payload: %w", err)
	}

	log.Printf("[Verifier] checking results for %s entry %d under %s", payload.Queue, payload.EntryID, payload.ResultPrefix)

	outcome, err := w.verifier.Verify(ctx, payload.ResultPrefix)
	if err != nil {
		return fmt.Errorf("verification of %s failed: %w", payload.ResultPrefix, err)
	}

	if outcome.State != trainer.StateVerified {
		log.Printf("[Verifier] %s entry %d: results not confirmed (%s)", payload.Queue, payload.EntryID, outcome.Note())
	}

	w.annotate(ctx, payload.Queue, payload.EntryID, outcome.Note())
	return nil
}

// annotate writes the verification note back onto the entry. Best
// effort: the note is advisory and losing it to a concurrent save is
// acceptable.
func (w *VerifyWorker) annotate(ctx context.Context, queueName string, entryID int, note string) {
	doc, err := w.queues.Load(ctx, queueName)
	if err != nil {
		log.Printf("[Verifier] failed to load %s for annotation: %v", queueName, err)
		return
	}

	entry := doc.Entry(entryID)
	if entry == nil {
		return
	}

	entry.Verification = note
	entry.UpdatedAt = time.Now().UTC()

	if err := w.queues.Save(ctx, queueName, doc); err != nil {
		log.Printf("[Verifier] failed to save annotation for %s entry %d: %v", queueName, entryID, err)
	}
}
