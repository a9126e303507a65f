package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"relay-backend/internal/config"
	"relay-backend/internal/ingest"
	"relay-backend/internal/model"
	"relay-backend/internal/store"
)

// Transcripts below this rune count are treated as noise ("네", "아", "um")
// and never reach translation.
const minTranscriptRunes = 2

// Pool consumes audio batches and runs the translation pipeline for each:
// one STT call per batch, then translate/synthesize/persist/notify fanned out
// per listener language. Batches for the same session are processed in the
// order the ingest bus emits them only when PoolSize is 1; listeners reorder
// by sequence number, so the pool runs fully parallel by default.
type Pool struct {
	cfg     config.WorkerConfig
	store   store.Store
	stt     Transcriber
	mt      Translator
	tts     Synthesizer
	blobs   BlobStore
	notify  Notifier
	history TranscriptSink // nil when no cache is configured

	wg sync.WaitGroup

	processed         atomic.Uint64
	droppedNoListener atomic.Uint64
	skippedShort      atomic.Uint64
}

// NewPool wires the pipeline ports together. history may be nil.
func NewPool(cfg config.WorkerConfig, st store.Store, stt Transcriber, mt Translator, tts Synthesizer, blobs BlobStore, notify Notifier, history TranscriptSink) *Pool {
	return &Pool{
		cfg:     cfg,
		store:   st,
		stt:     stt,
		mt:      mt,
		tts:     tts,
		blobs:   blobs,
		notify:  notify,
		history: history,
	}
}

// Run starts PoolSize workers draining batches and blocks until the channel
// is closed and all in-flight batches finish. The ingest bus closes the
// channel on shutdown after flushing, so Run doubles as the drain barrier.
func (p *Pool) Run(ctx context.Context, batches <-chan ingest.Batch) {
	n := p.cfg.PoolSize
	if n < 1 {
		n = 1
	}
	log.Printf("[Worker] Starting pool with %d workers", n)

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for batch := range batches {
				p.process(ctx, batch)
			}
		}(i)
	}
	p.wg.Wait()
	log.Printf("[Worker] Pool drained: processed=%d no_listeners=%d skipped_short=%d",
		p.processed.Load(), p.droppedNoListener.Load(), p.skippedShort.Load())
}

// Stats 누적 처리 카운터 (processed, no_listeners, skipped_short)
func (p *Pool) Stats() (processed, noListeners, skippedShort uint64) {
	return p.processed.Load(), p.droppedNoListener.Load(), p.skippedShort.Load()
}

func (p *Pool) process(ctx context.Context, batch ingest.Batch) {
	sess, err := p.store.GetSession(ctx, batch.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[Worker] Session lookup failed for %s: %v", batch.SessionID, err)
		}
		return
	}
	if sess.Status != model.StatusActive {
		return
	}

	// Cost filter: synthesize only languages someone is actually listening
	// to right now, not everything the session was configured with.
	targets, err := p.store.ListListenerLanguages(ctx, batch.SessionID)
	if err != nil {
		log.Printf("[Worker] Listener lookup failed for %s: %v", batch.SessionID, err)
		return
	}
	if len(targets) == 0 {
		p.droppedNoListener.Add(1)
		log.Printf("[Worker] No listeners in %s, dropping batch (saved %d configured targets)",
			batch.SessionID, len(sess.ConfiguredTargets))
		return
	}

	transcript, err := p.transcribe(ctx, &batch, sess.SourceLanguage)
	if err != nil {
		log.Printf("[Worker] STT failed for %s: %v", batch.SessionID, err)
		return
	}

	text := strings.TrimSpace(transcript.Text)
	if len([]rune(text)) < minTranscriptRunes {
		p.skippedShort.Add(1)
		return
	}

	seq := batch.FirstFrameTime.UnixMilli()
	duration := batch.DurationMillis()

	// Per-target fan-out. A failing target never takes the others down;
	// errors stay inside each closure.
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range targets {
		lang := lang
		g.Go(func() error {
			p.processTarget(gctx, sess, lang, text, seq, duration)
			return nil
		})
	}
	_ = g.Wait() // closures never return errors

	p.processed.Add(1)
}

// transcribe re-slices the batch audio to the transcriber's frame bound and
// runs one STT call under the step timeout.
func (p *Pool) transcribe(ctx context.Context, batch *ingest.Batch, sourceLang string) (Transcript, error) {
	sttCtx, cancel := context.WithTimeout(ctx, p.cfg.STTTimeout)
	defer cancel()

	pcm := batch.PCM()
	max := p.stt.MaxFrameBytes()
	if max <= 0 {
		max = len(pcm)
	}
	frames := make([][]byte, 0, len(pcm)/max+1)
	for off := 0; off < len(pcm); off += max {
		end := off + max
		if end > len(pcm) {
			end = len(pcm)
		}
		frames = append(frames, pcm[off:end])
	}

	return p.stt.Transcribe(sttCtx, frames, sourceLang, batch.SampleRate, batch.Channels)
}

func (p *Pool) processTarget(ctx context.Context, sess *model.Session, lang, text string, seq, duration int64) {
	translated := text
	if lang != sess.SourceLanguage {
		mtCtx, cancel := context.WithTimeout(ctx, p.cfg.TranslateTimeout)
		out, err := p.mt.Translate(mtCtx, text, sess.SourceLanguage, lang)
		cancel()
		if err != nil {
			log.Printf("[Worker] Translate failed for %s/%s: %v", sess.SessionID, lang, err)
			return
		}
		translated = out
	}

	ttsCtx, cancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
	synth, err := p.tts.Synthesize(ttsCtx, translated, lang)
	cancel()
	if err != nil {
		// Keep listener playback cadence with a silent chunk of the same
		// duration instead of a gap.
		log.Printf("[Worker] TTS failed for %s/%s, using placeholder: %v", sess.SessionID, lang, err)
		synth = SilencePlaceholder(duration, 16000)
	}

	ext := "mp3"
	if synth.ContentType == "audio/wav" {
		ext = "wav"
	}
	key := fmt.Sprintf("sessions/%s/translated/%s/%d.%s", sess.SessionID, lang, seq, ext)

	putCtx, cancel := context.WithTimeout(ctx, p.cfg.PersistTimeout)
	err = p.blobs.Put(putCtx, key, synth.Audio, synth.ContentType)
	cancel()
	if err != nil {
		log.Printf("[Worker] Blob put failed for %s: %v", key, err)
		return
	}

	url, err := p.blobs.PresignGet(ctx, key)
	if err != nil {
		log.Printf("[Worker] Presign failed for %s: %v", key, err)
		return
	}

	connIDs, err := p.store.LookupConnections(ctx, sess.SessionID, lang)
	if err != nil || len(connIDs) == 0 {
		return
	}

	chunkDuration := synth.DurationMillis
	if chunkDuration == 0 {
		chunkDuration = duration
	}
	payload := model.TranslatedAudio{
		Type:           "translatedAudio",
		SessionID:      sess.SessionID,
		TargetLanguage: lang,
		URL:            url,
		Timestamp:      seq,
		Duration:       chunkDuration,
		Transcript:     translated,
		SequenceNumber: seq,
	}

	notifyCtx, cancel := context.WithTimeout(ctx, p.cfg.NotifyTimeout)
	p.notify.Notify(notifyCtx, connIDs, payload)
	cancel()

	if p.history != nil {
		p.history.Append(ctx, sess.SessionID, lang, translated, seq)
	}
}
