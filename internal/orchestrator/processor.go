package orchestrator

import (
	"context"
	"log"
	"sort"

	"github.com/marketsci/robynq/internal/client"
	"github.com/marketsci/robynq/internal/model"
	"github.com/marketsci/robynq/internal/store"
	"github.com/marketsci/robynq/internal/trainer"
)

// VerifyScheduler hands result verification off to a background worker.
// When nil, the processor verifies inline within the tick.
type VerifyScheduler interface {
	ScheduleVerify(ctx context.Context, queueName string, entryID int, resultPrefix string) error
}

// TickResult reports what a single tick did
type TickResult struct {
	Processed bool
	EntryID   int
	Failed    bool
}

// RunSummary counts the entries a run advanced
type RunSummary struct {
	Processed int
	Failed    int
}

// Processor drives job entries through build, launch and verification,
// one entry per tick, strictly FIFO. It assumes it is the only
// processor acting on a given queue name.
type Processor struct {
	queues    *store.QueueStore
	launcher  *trainer.Launcher
	verifier  *trainer.Verifier
	runner    client.JobRunner
	scheduler VerifyScheduler
	retention int
}

// NewProcessor creates a tick processor. scheduler may be nil for
// inline verification.
func NewProcessor(queues *store.QueueStore, launcher *trainer.Launcher, verifier *trainer.Verifier, runner client.JobRunner, scheduler VerifyScheduler, retention int) *Processor {
	return &Processor{
		queues:    queues,
		launcher:  launcher,
		verifier:  verifier,
		runner:    runner,
		scheduler: scheduler,
		retention: retention,
	}
}

// Tick loads the queue, reconciles RUNNING entries against the remote
// execution state, advances at most one PENDING entry, and saves. A
// tick that changes nothing leaves the stored document untouched.
func (p *Processor) Tick(ctx context.Context, queueName string) (*TickResult, error) {
	doc, err := p.queues.Load(ctx, queueName)
	if err != nil {
		return nil, err
	}

	dirty := false

	// Availability over strict control: a paused queue is resumed
	// rather than refused.
	if doc.Status == model.QueueStatusPaused {
		log.Printf("[Queue] %s is PAUSED, auto-resuming", queueName)
		doc.Status = model.QueueStatusRunning
		dirty = true
	}

	if p.reconcileRunning(ctx, queueName, doc) {
		dirty = true
	}

	result := &TickResult{}
	entry := store.NextPending(doc)
	if entry == nil {
		if dirty {
			if err := p.queues.Save(ctx, queueName, doc); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	result.Processed = true
	result.EntryID = entry.ID

	_ = store.Mark(doc, entry.ID, model.EntryStatusLaunching, store.MarkFields{})
	log.Printf("[Queue] %s: entry %d PENDING -> LAUNCHING", queueName, entry.ID)

	ref, prefix, err := p.launcher.Launch(ctx, entry)
	if err != nil {
		// Entry-local failure: the rest of the queue keeps processing.
		result.Failed = true
		_ = store.Mark(doc, entry.ID, model.EntryStatusFailed, store.MarkFields{Error: err.Error()})
		log.Printf("[Queue] %s: entry %d LAUNCHING -> FAILED: %v", queueName, entry.ID, err)
	} else {
		_ = store.Mark(doc, entry.ID, model.EntryStatusRunning, store.MarkFields{
			ExecutionRef: ref,
			ResultPrefix: prefix,
		})
		log.Printf("[Queue] %s: entry %d LAUNCHING -> RUNNING (execution=%s)", queueName, entry.ID, ref)
	}

	if err := p.queues.Save(ctx, queueName, doc); err != nil {
		return nil, err
	}
	return result, nil
}

// reconcileRunning finalizes RUNNING entries whose remote execution has
// completed. The remote exit status is authoritative; verification only
// annotates.
func (p *Processor) reconcileRunning(ctx context.Context, queueName string, doc *model.QueueDocument) bool {
	changed := false

	for i := range doc.Entries {
		entry := &doc.Entries[i]
		if entry.Status != model.EntryStatusRunning || entry.ExecutionRef == "" {
			continue
		}

		exec, err := p.runner.GetExecution(ctx, entry.ExecutionRef)
		if err != nil {
			log.Printf("[Queue] %s: entry %d execution status unavailable: %v", queueName, entry.ID, err)
			continue
		}

		switch exec.State {
		case client.ExecutionStateSucceeded:
			_ = store.Mark(doc, entry.ID, model.EntryStatusSucceeded, store.MarkFields{})
			log.Printf("[Queue] %s: entry %d RUNNING -> SUCCEEDED", queueName, entry.ID)
			p.verifyEntry(ctx, queueName, entry)
			changed = true
		case client.ExecutionStateFailed:
			_ = store.Mark(doc, entry.ID, model.EntryStatusFailed, store.MarkFields{Error: "execution reported failure"})
			log.Printf("[Queue] %s: entry %d RUNNING -> FAILED (remote exit)", queueName, entry.ID)
			changed = true
		}
	}

	return changed
}

// verifyEntry records whether results look present at the expected
// location. A timeout is a warning against an already-terminal entry,
// never a status change.
func (p *Processor) verifyEntry(ctx context.Context, queueName string, entry *model.JobEntry) {
	if entry.ResultPrefix == "" {
		return
	}

	if p.scheduler != nil {
		if err := p.scheduler.ScheduleVerify(ctx, queueName, entry.ID, entry.ResultPrefix); err != nil {
			log.Printf("[Queue] %s: entry %d failed to schedule verification: %v", queueName, entry.ID, err)
		}
		return
	}

	outcome, err := p.verifier.Verify(ctx, entry.ResultPrefix)
	if err != nil {
		log.Printf("[Queue] %s: entry %d verification error: %v", queueName, entry.ID, err)
		return
	}

	entry.Verification = outcome.Note()
	if outcome.State != trainer.StateVerified {
		log.Printf("[Queue] %s: entry %d succeeded but results not confirmed under %s (%s)", queueName, entry.ID, entry.ResultPrefix, outcome.Note())
	}
}

// Run executes ticks in one of three modes: a single tick (count=1), a
// bounded number of ticks, or loop-until-empty (loop=true).
func (p *Processor) Run(ctx context.Context, queueName string, count int, loop bool, cleanup bool) (*RunSummary, error) {
	summary := &RunSummary{}

	for i := 0; loop || i < count; i++ {
		result, err := p.Tick(ctx, queueName)
		if err != nil {
			return summary, err
		}
		if !result.Processed {
			break
		}
		summary.Processed++
		if result.Failed {
			summary.Failed++
		}
	}

	if cleanup {
		if err := p.CleanupQueue(ctx, queueName); err != nil {
			return summary, err
		}
	}

	log.Printf("[Queue] %s: run complete: %d processed, %d failed", queueName, summary.Processed, summary.Failed)
	return summary, nil
}

// CleanupQueue trims old terminal entries beyond the retention count
func (p *Processor) CleanupQueue(ctx context.Context, queueName string) error {
	doc, err := p.queues.Load(ctx, queueName)
	if err != nil {
		return err
	}

	removed := TrimTerminal(doc, p.retention)
	if removed == 0 {
		return nil
	}

	log.Printf("[Queue] %s: cleanup removed %d terminal entries (retention %d)", queueName, removed, p.retention)
	return p.queues.Save(ctx, queueName, doc)
}

// TrimTerminal removes the oldest terminal entries beyond retention,
// keeping the retention most-recently-updated terminal entries.
// Non-terminal entries are never removed regardless of age.
func TrimTerminal(doc *model.QueueDocument, retention int) int {
	var terminal []model.JobEntry
	for _, e := range doc.Entries {
		if e.Status.IsTerminal() {
			terminal = append(terminal, e)
		}
	}
	if len(terminal) <= retention {
		return 0
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.After(terminal[j].UpdatedAt)
	})

	keep := make(map[int]bool, retention)
	for i := 0; i < retention; i++ {
		keep[terminal[i].ID] = true
	}

	kept := doc.Entries[:0]
	removed := 0
	for _, e := range doc.Entries {
		if e.Status.IsTerminal() && !keep[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	doc.Entries = kept
	return removed
}
