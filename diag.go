package main

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/C-broderick-225/EKSR-Instrument/fardriver"
)

const (
	diagGroupName           = "instrument"
	diagHashKey             = "instrument:diag"
	diagEventStream         = "events:instrument"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "instrument"
)

// Diag mirrors frame-level counters into Redis and records notable events
// (checksum mismatches, link transitions) on a capped stream. Checksum
// mismatches do not reject frames, but they must be observable.
type Diag struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context

	lastStats fardriver.DecoderStats
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (d *Diag) Destroy() {}

// ReportDecodeStats flushes the decoder counters when they changed, and
// raises a stream event for every new checksum mismatch.
func (d *Diag) ReportDecodeStats(stats fardriver.DecoderStats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stats == d.lastStats {
		return
	}

	newMismatches := stats.ChecksumMismatches - d.lastStats.ChecksumMismatches
	d.lastStats = stats

	pipe := d.redis.Pipeline()

	pipe.HSet(d.ctx, diagHashKey, map[string]interface{}{
		"frames-received":     stats.FramesReceived,
		"frames-dropped":      stats.FramesDropped,
		"checksum-mismatches": stats.ChecksumMismatches,
	})

	if newMismatches > 0 {
		d.log.Warn("Checksum mismatches: %d new (%d total)", newMismatches, stats.ChecksumMismatches)

		pipe.XAdd(d.ctx, &redis.XAddArgs{
			Stream: diagEventStream,
			MaxLen: diagEventStreamMaxLen,
			Values: map[string]interface{}{
				"group": diagGroupName,
				"kind":  "checksum-mismatch",
				"count": stats.ChecksumMismatches,
			},
		})

		pipe.Publish(d.ctx, diagNotificationChannel, "checksum-mismatch")
	}

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Printf("Failed to report decode stats: %v", err)
	}
}

// ReportLinkEvent records a link state transition on the event stream.
func (d *Diag) ReportLinkEvent(state LinkState, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipe := d.redis.Pipeline()

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group":  diagGroupName,
			"kind":   "link",
			"state":  state.String(),
			"detail": detail,
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "link")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Printf("Failed to report link event: %v", err)
	}
}
