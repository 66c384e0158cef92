package trainer

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/marketsci/robynq/internal/client"
)

// ExpectedArtifacts are the files a finished training run writes under
// its result prefix
var ExpectedArtifacts = []string{
	"model_summary.json",
	"onepager.png",
	"training_log.txt",
}

// VerificationState classifies what the poll found before its deadline
type VerificationState string

const (
	StateVerified          VerificationState = "verified"
	StatePartiallyVerified VerificationState = "partial"
	StateTimedOut          VerificationState = "timed_out"
)

// VerificationOutcome is the advisory result of one verification pass.
// It never changes an entry's terminal status: the remote exit status
// stays authoritative, this only signals whether results look present
// at the expected location.
type VerificationOutcome struct {
	State   VerificationState
	Found   []string
	Missing []string
}

// Note renders the outcome as a diagnostic string for the entry
func (o *VerificationOutcome) Note() string {
	switch o.State {
	case StateVerified:
		return "verified"
	case StatePartiallyVerified:
		return fmt.Sprintf("partial: missing %s", strings.Join(o.Missing, ", "))
	default:
		return "timed out: no results at expected location"
	}
}

// Verifier polls object storage for the expected output artifacts
type Verifier struct {
	store    client.ObjectStore
	bucket   string
	interval time.Duration
	timeout  time.Duration
}

// NewVerifier creates a verifier over the output bucket
func NewVerifier(store client.ObjectStore, bucket string, interval, timeout time.Duration) *Verifier {
	return &Verifier{
		store:    store,
		bucket:   bucket,
		interval: interval,
		timeout:  timeout,
	}
}

// Verify polls the listing under resultPrefix until every expected
// artifact is present or the bounded timeout elapses
func (v *Verifier) Verify(ctx context.Context, resultPrefix string) (*VerificationOutcome, error) {
	deadline := time.Now().Add(v.timeout)
	attempt := 0
	var found, missing []string

	for {
		attempt++
		keys, err := v.store.List(ctx, v.bucket, resultPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list results under %s: %w", resultPrefix, err)
		}

		present := make(map[string]bool, len(keys))
		for _, key := range keys {
			present[path.Base(key)] = true
		}

		found = found[:0]
		missing = missing[:0]
		for _, name := range ExpectedArtifacts {
			if present[name] {
				found = append(found, name)
			} else {
				missing = append(missing, name)
			}
		}

		log.Printf("[Verifier] poll #%d (prefix=%s): %d/%d artifacts present", attempt, resultPrefix, len(found), len(ExpectedArtifacts))

		if len(missing) == 0 {
			return &VerificationOutcome{State: StateVerified, Found: found}, nil
		}

		if !time.Now().Add(v.interval).Before(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(v.interval):
		}
	}

	if len(found) > 0 {
		return &VerificationOutcome{State: StatePartiallyVerified, Found: found, Missing: missing}, nil
	}
	return &VerificationOutcome{State: StateTimedOut, Missing: missing}, nil
}
