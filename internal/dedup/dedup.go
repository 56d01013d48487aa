// Package dedup detects re-delivery of an already admitted message.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"order-intake/internal/mailbox"
	"order-intake/internal/store"
)

// Decision is the outcome of an admission check
type Decision int

const (
	Admit Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Reject {
		return "reject"
	}
	return "admit"
}

// Fingerprint derives the email_hash of a message. The Message-ID header
// identifies a message across re-fetches; without one the sender, date,
// subject and body are hashed instead.
func Fingerprint(msg mailbox.Message) string {
	var key string
	if id := normalizeMessageID(msg.MessageID); id != "" {
		key = "mid:" + id
	} else {
		date := ""
		if !msg.Date.IsZero() {
			date = msg.Date.UTC().Format("2006-01-02T15:04:05Z")
		}
		key = strings.Join([]string{
			"raw",
			strings.ToLower(strings.TrimSpace(msg.From)),
			date,
			strings.TrimSpace(msg.Subject),
			strings.TrimSpace(msg.TextBody),
			strings.TrimSpace(msg.HTMLBody),
		}, "\x00")
	}

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func normalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.ToLower(id)
}

// Deduplicator checks fingerprints against every non-purged order,
// active or trashed.
type Deduplicator struct {
	store store.OrderStore
}

func New(s store.OrderStore) *Deduplicator {
	return &Deduplicator{store: s}
}

// Admit returns Reject when an order with the same fingerprint exists.
// A lookup failure is returned as an error and the caller skips the message.
func (d *Deduplicator) Admit(ctx context.Context, fingerprint string) (Decision, error) {
	existing, err := d.store.FindByHash(ctx, fingerprint)
	if errors.Is(err, store.ErrNotFound) {
		return Admit, nil
	}
	if err != nil {
		return Reject, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if existing != nil {
		return Reject, nil
	}
	return Admit, nil
}
