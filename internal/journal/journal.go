package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/funnel/internal/event"
	pebblestore "github.com/rzbill/funnel/internal/storage/pebble"
	"github.com/rzbill/funnel/pkg/log"
)

const lostPrefix = "lost/"

// Record is one journaled lost event.
type Record struct {
	BatchID    string            `json:"batch_id"`
	EventID    string            `json:"event_id"`
	Payload    []byte            `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	ReportedAt time.Time         `json:"reported_at"`
	// Reason is the terminal outcome that routed the batch here
	// (deadline_exceeded, retries_exhausted, fatal).
	Reason string `json:"reason"`
}

// Journal is a pebble-backed lost-event store.
type Journal struct {
	db     *pebblestore.DB
	logger log.Logger
}

// Open opens (or creates) the journal under dataDir/journal.
func Open(dataDir string, logger log.Logger) (*Journal, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: filepath.Join(dataDir, "journal"),
		Fsync:   pebblestore.FsyncModeAlways,
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db, logger: logger.With(log.Component("journal"))}, nil
}

// RecordLost writes one record per event in the batch, atomically.
func (j *Journal) RecordLost(ctx context.Context, batch *event.Batch, outcome event.Outcome) error {
	if j == nil {
		return nil
	}
	now := time.Now()
	b := j.db.NewBatch()
	defer b.Close()
	for _, ev := range batch.Events {
		rec := Record{
			BatchID:    batch.ID,
			EventID:    ev.ID.String(),
			Payload:    ev.Payload,
			Headers:    ev.Headers,
			ReceivedAt: ev.ReceivedAt,
			ReportedAt: now,
			Reason:     outcome.String(),
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("journal: encode %s: %w", rec.EventID, err)
		}
		key := lostKey(batch.ID, rec.EventID)
		if err := b.Set(key, val, nil); err != nil {
			return fmt.Errorf("journal: set %s: %w", rec.EventID, err)
		}
	}
	if err := j.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	j.logger.Warn("lost batch journaled",
		log.Str("batch", batch.ID),
		log.Int("events", batch.Len()),
		log.Str("reason", outcome.String()),
	)
	return nil
}

// LostEvents scans every journaled record, in key order.
func (j *Journal) LostEvents(ctx context.Context) ([]Record, error) {
	if j == nil {
		return nil, nil
	}
	lo := []byte(lostPrefix)
	hi := []byte(lostPrefix + "\xff")
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("journal: iter: %w", err)
	}
	defer iter.Close()

	var out []Record
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

func lostKey(batchID, eventID string) []byte {
	return []byte(lostPrefix + batchID + "/" + eventID)
}
