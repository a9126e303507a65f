package ingest

import "time"

// Frame is one PCM chunk from a speaker. Raw headerless PCM; frames of one
// session share a format.
type Frame struct {
	SessionID  string
	Data       []byte
	Timestamp  time.Time
	SampleRate int
	Channels   int
	Encoding   string
}

// Batch is a window of frames for one session, released to the worker pool
// together. Never persisted; dropped once every per-language output is out.
type Batch struct {
	SessionID      string
	Frames         [][]byte
	FirstFrameTime time.Time
	LastFrameTime  time.Time
	SampleRate     int
	Channels       int
	Encoding       string
}

// PCM concatenates the frames. Valid because frames are headerless PCM in a
// single format.
func (b *Batch) PCM() []byte {
	total := 0
	for _, f := range b.Frames {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range b.Frames {
		out = append(out, f...)
	}
	return out
}

// DurationMillis derives the batch duration from the sample count (16-bit
// samples assumed, matching the pcm_s16le wire encoding).
func (b *Batch) DurationMillis() int64 {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	bytes := 0
	for _, f := range b.Frames {
		bytes += len(f)
	}
	return int64(bytes) * 1000 / int64(b.SampleRate*b.Channels*2)
}
