// Package ingest buffers speaker PCM frames and releases them to the worker
// pool in per-session batch windows.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"relay-backend/internal/config"
)

// Bus accepts frames from the gateway without blocking and emits batches when
// a session's window elapses or its frame count fills up. One session's
// traffic never delays another's window closure.
type Bus struct {
	window    time.Duration
	maxFrames int
	highWater int

	mu         sync.Mutex
	partitions map[string]*partition
	total      int
	dropped    uint64

	out chan Batch
	now func() time.Time
}

// partition holds the unemitted frames of one session in arrival order.
type partition struct {
	frames []Frame
}

// NewBus creates a bus with the given ingest settings.
func NewBus(cfg config.IngestConfig) *Bus {
	return &Bus{
		window:     cfg.BatchWindow,
		maxFrames:  cfg.BatchMaxFrames,
		highWater:  cfg.HighWaterFrames,
		partitions: make(map[string]*partition),
		out:        make(chan Batch, cfg.BatchQueueSize),
		now:        time.Now,
	}
}

// Batches is the worker pool's input. Closed after Run drains on shutdown.
func (b *Bus) Batches() <-chan Batch {
	return b.out
}

// Append enqueues a frame. Never blocks: when the worker side is saturated
// past the high-water mark, the oldest frames of the most-behind session are
// shed instead.
func (b *Bus) Append(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.partitions[f.SessionID]
	if !ok {
		p = &partition{}
		b.partitions[f.SessionID] = p
	}
	p.frames = append(p.frames, f)
	b.total++

	if len(p.frames) >= b.maxFrames {
		b.emitLocked(f.SessionID, p)
	}
	b.shedLocked()
}

// CancelSession discards any unemitted frames for a session that ended.
func (b *Bus) CancelSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.partitions[sessionID]; ok {
		b.total -= len(p.frames)
		delete(b.partitions, sessionID)
	}
}

// DroppedFrames 백프레셔로 버려진 프레임 수
func (b *Bus) DroppedFrames() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Run drives window-based emission until ctx ends, then flushes what is left
// and closes the batch channel.
func (b *Bus) Run(ctx context.Context) {
	tick := b.window / 10
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.flush()
			close(b.out)
			log.Printf("[Ingest] Bus drained and closed")
			return
		case <-ticker.C:
			b.emitDue()
		}
	}
}

func (b *Bus) emitDue() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for sessionID, p := range b.partitions {
		if len(p.frames) == 0 {
			continue
		}
		if now.Sub(p.frames[0].Timestamp) >= b.window {
			b.emitLocked(sessionID, p)
		}
	}
}

func (b *Bus) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, p := range b.partitions {
		if len(p.frames) == 0 {
			continue
		}
		b.emitLocked(sessionID, p)
		if n := len(p.frames); n > 0 {
			// Worker queue still full at shutdown; nothing will drain it.
			b.total -= n
			b.dropped += uint64(n)
			p.frames = nil
			log.Printf("[Ingest] Flush: worker queue full, dropping %d frames of session %s", n, sessionID)
		}
	}
}

// emitLocked builds a batch from the partition and hands it to the worker
// queue. A full queue leaves the frames in place; they count toward the
// high-water mark and get shed oldest-first if the workers stay behind.
func (b *Bus) emitLocked(sessionID string, p *partition) {
	first := p.frames[0]
	batch := Batch{
		SessionID:      sessionID,
		Frames:         make([][]byte, len(p.frames)),
		FirstFrameTime: first.Timestamp,
		LastFrameTime:  p.frames[len(p.frames)-1].Timestamp,
		SampleRate:     first.SampleRate,
		Channels:       first.Channels,
		Encoding:       first.Encoding,
	}
	for i, f := range p.frames {
		batch.Frames[i] = f.Data
	}

	select {
	case b.out <- batch:
		b.total -= len(p.frames)
		p.frames = p.frames[:0]
	default:
		// Worker queue full; keep buffering under the high-water mark.
	}
}

func (b *Bus) shedLocked() {
	for b.total > b.highWater {
		var worst *partition
		worstID := ""
		for id, p := range b.partitions {
			if worst == nil || len(p.frames) > len(worst.frames) {
				worst = p
				worstID = id
			}
		}
		if worst == nil || len(worst.frames) == 0 {
			return
		}
		worst.frames = worst.frames[1:]
		b.total--
		b.dropped++
		if b.dropped%100 == 1 {
			log.Printf("[Ingest] High water: dropping oldest frame of session %s (dropped=%d)", worstID, b.dropped)
		}
	}
}
