// Package worker turns batched speaker audio into per-language translated
// chunks: STT, MT, TTS, blob persistence, listener notification. The speech
// services behind it are ports; production wires the AWS adapters.
package worker

import "context"

// Transcript is one STT result for a whole batch.
type Transcript struct {
	Text       string
	Confidence float64
}

// Transcriber converts a batch of PCM frames into text. Implementations
// advertise the largest audio frame they accept; the pool re-slices batch
// audio to that bound before calling Transcribe.
type Transcriber interface {
	MaxFrameBytes() int
	Transcribe(ctx context.Context, frames [][]byte, sourceLang string, sampleRate, channels int) (Transcript, error)
}

// Translator 텍스트 번역 포트
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Synthesis is one TTS result.
type Synthesis struct {
	Audio          []byte
	ContentType    string
	DurationMillis int64
}

// Synthesizer 음성 합성 포트
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (Synthesis, error)
}

// BlobStore persists translated chunks and hands out time-limited GET URLs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// Notifier delivers a payload to a set of live connections. Best effort;
// connections that are gone are skipped, not retried.
type Notifier interface {
	Notify(ctx context.Context, connectionIDs []string, payload any)
}

// TranscriptSink receives finished per-language transcripts for history.
// Optional; implementations must not block the worker.
type TranscriptSink interface {
	Append(ctx context.Context, sessionID, lang, transcript string, sequence int64)
}
