// Package mailbox fetches unseen inbound messages for the scan cycle.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFetch marks a failure to retrieve the batch of unseen messages.
var ErrFetch = errors.New("mailbox fetch failed")

// Message is one inbound email as handed to the extractor
type Message struct {
	MessageID string
	From      string
	FromName  string
	Subject   string
	Date      time.Time
	TextBody  string
	HTMLBody  string
	// Attachments holds file names relative to the attachments directory
	Attachments []string
}

// Reader returns messages not yet seen, in mailbox order. The batch is
// finite and may be empty.
type Reader interface {
	FetchUnseen(ctx context.Context) ([]Message, error)
}

// StaticReader serves queued batches, one per call. Used by tests and the
// CLI dry-run mode.
type StaticReader struct {
	mu      sync.Mutex
	Batches [][]Message
	Err     error
}

func (r *StaticReader) FetchUnseen(ctx context.Context) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if len(r.Batches) == 0 {
		return nil, nil
	}
	batch := r.Batches[0]
	r.Batches = r.Batches[1:]
	return batch, nil
}
