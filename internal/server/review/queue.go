// Package review collects notifications that were acknowledged but could not
// be applied (malformed payloads, unknown buyers, unknown users) so that an
// operator can look at them later.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/logging"
)

type Reason string

const (
	ReasonMalformedEvent Reason = "malformed_event"
	ReasonUnknownBuyer   Reason = "unknown_buyer"
	ReasonUnknownUser    Reason = "unknown_user"

	// ReasonHandleSyncFailed marks a committed handle the identity provider
	// kept rejecting.
	ReasonHandleSyncFailed Reason = "handle_sync_failed"
)

// Item is one flagged notification. Payload is the raw verified body.
type Item struct {
	Source    string          `json:"source"`
	Reason    Reason          `json:"reason"`
	EventID   string          `json:"event_id,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	FlaggedAt time.Time       `json:"flagged_at"`
}

type Queue interface {
	Flag(ctx context.Context, item Item) error
}

// LogQueue only logs flagged items.
type LogQueue struct {
	logger logging.Logger
}

func NewLogQueue(l logging.Logger) *LogQueue {
	return &LogQueue{logger: l.With("module", "review")}
}

func (q *LogQueue) Flag(ctx context.Context, item Item) error {
	q.logger.Warn(ctx, "flagged for review",
		"source", item.Source,
		"reason", string(item.Reason),
		"event_id", item.EventID,
		"detail", item.Detail,
	)
	return nil
}

// Multi fans an item out to every queue and joins their errors.
type Multi []Queue

func (m Multi) Flag(ctx context.Context, item Item) error {
	var errs []error
	for _, q := range m {
		if err := q.Flag(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func stamp(item Item) Item {
	if item.FlaggedAt.IsZero() {
		item.FlaggedAt = time.Now().UTC()
	}
	return item
}
