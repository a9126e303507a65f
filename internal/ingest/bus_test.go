package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/config"
)

func testCfg() config.IngestConfig {
	return config.IngestConfig{
		BatchWindow:     50 * time.Millisecond,
		BatchMaxFrames:  5,
		HighWaterFrames: 100,
		BatchQueueSize:  32,
	}
}

func frame(sessionID string, ts time.Time, payload byte) Frame {
	return Frame{
		SessionID:  sessionID,
		Data:       []byte{payload},
		Timestamp:  ts,
		SampleRate: 16000,
		Channels:   1,
		Encoding:   "pcm_s16le",
	}
}

func TestCountTrigger(t *testing.T) {
	bus := NewBus(testCfg())
	now := time.Now()

	for i := 0; i < 5; i++ {
		bus.Append(frame("sess-1", now.Add(time.Duration(i)*time.Millisecond), byte(i)))
	}

	select {
	case batch := <-bus.Batches():
		assert.Equal(t, "sess-1", batch.SessionID)
		require.Len(t, batch.Frames, 5)
		assert.Equal(t, now.UnixMilli(), batch.FirstFrameTime.UnixMilli())
		// Frames keep arrival order.
		for i, f := range batch.Frames {
			assert.Equal(t, []byte{byte(i)}, f)
		}
	default:
		t.Fatal("expected a batch after reaching the frame-count trigger")
	}
}

func TestWindowTrigger(t *testing.T) {
	bus := NewBus(testCfg())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Append(frame("sess-1", time.Now(), 1))

	select {
	case batch := <-bus.Batches():
		assert.Len(t, batch.Frames, 1)
	case <-time.After(time.Second):
		t.Fatal("window trigger did not fire")
	}
}

func TestPerSessionIsolation(t *testing.T) {
	bus := NewBus(testCfg())
	now := time.Now()

	// sess-busy has traffic but stays below both triggers.
	bus.Append(frame("sess-busy", now, 1))
	bus.Append(frame("sess-busy", now, 2))

	// sess-full hits the count trigger and is emitted alone.
	for i := 0; i < 5; i++ {
		bus.Append(frame("sess-full", now, byte(i)))
	}

	batch := <-bus.Batches()
	assert.Equal(t, "sess-full", batch.SessionID)

	select {
	case extra := <-bus.Batches():
		t.Fatalf("unexpected batch for %s", extra.SessionID)
	default:
	}
}

func TestOrderingWithinSession(t *testing.T) {
	bus := NewBus(testCfg())
	now := time.Now()

	for i := 0; i < 10; i++ {
		bus.Append(frame("sess-1", now.Add(time.Duration(i)*time.Millisecond), byte(i)))
	}

	first := <-bus.Batches()
	second := <-bus.Batches()
	assert.True(t, first.FirstFrameTime.Before(second.FirstFrameTime),
		"batches must be emitted in first-frame order")
	assert.Equal(t, []byte{0}, first.Frames[0])
	assert.Equal(t, []byte{5}, second.Frames[0])
}

func TestHighWaterShedsOldestOfMostBehind(t *testing.T) {
	cfg := testCfg()
	cfg.BatchMaxFrames = 1000 // keep the count trigger out of the way
	cfg.HighWaterFrames = 10
	cfg.BatchQueueSize = 8
	bus := NewBus(cfg)
	now := time.Now()

	bus.Append(frame("sess-light", now, 99))
	for i := 0; i < 20; i++ {
		bus.Append(frame("sess-heavy", now.Add(time.Duration(i)*time.Millisecond), byte(i)))
	}

	assert.Equal(t, uint64(11), bus.DroppedFrames())

	// The light session lost nothing.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go bus.Run(ctx)

	got := map[string]int{}
	for batch := range bus.Batches() {
		got[batch.SessionID] += len(batch.Frames)
	}
	assert.Equal(t, 1, got["sess-light"])
	// Heavy session kept the newest frames only.
	assert.Equal(t, 9, got["sess-heavy"])
}

func TestFlushCountsUndeliverableFrames(t *testing.T) {
	cfg := testCfg()
	cfg.BatchMaxFrames = 2
	cfg.BatchQueueSize = 1
	bus := NewBus(cfg)
	now := time.Now()

	// sess-a fills the one-slot worker queue.
	bus.Append(frame("sess-a", now, 1))
	bus.Append(frame("sess-a", now, 2))
	// sess-b's batch finds the queue full and stays buffered.
	bus.Append(frame("sess-b", now, 3))
	bus.Append(frame("sess-b", now, 4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)

	var got []Batch
	for batch := range bus.Batches() {
		got = append(got, batch)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "sess-a", got[0].SessionID)
	// sess-b's frames could not be delivered at shutdown and count as dropped.
	assert.Equal(t, uint64(2), bus.DroppedFrames())
}

func TestCancelSessionDiscardsFrames(t *testing.T) {
	bus := NewBus(testCfg())
	now := time.Now()

	bus.Append(frame("sess-1", now, 1))
	bus.Append(frame("sess-1", now, 2))
	bus.CancelSession("sess-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go bus.Run(ctx)

	for batch := range bus.Batches() {
		t.Fatalf("unexpected batch for cancelled session %s", batch.SessionID)
	}
}

func TestBatchPCMAndDuration(t *testing.T) {
	b := Batch{
		Frames:     [][]byte{{1, 2}, {3, 4}},
		SampleRate: 16000,
		Channels:   1,
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, b.PCM())

	// 32000 bytes of 16 kHz mono s16 is one second.
	b.Frames = [][]byte{make([]byte, 32000)}
	assert.Equal(t, int64(1000), b.DurationMillis())
}
