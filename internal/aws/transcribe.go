package aws

import (
	"context"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"

	"relay-backend/internal/worker"
)

// Transcribe 언어 코드 매핑
var transcribeLanguageCodes = map[string]types.LanguageCode{
	"ko": types.LanguageCodeKoKr,
	"en": types.LanguageCodeEnUs,
	"ja": types.LanguageCodeJaJp,
	"zh": types.LanguageCodeZhCn,
	"es": types.LanguageCodeEsUs,
	"fr": types.LanguageCodeFrFr,
	"de": types.LanguageCodeDeDe,
	"it": types.LanguageCodeItIt,
	"pt": types.LanguageCodePtBr,
	"ar": types.LanguageCodeArSa,
}

const (
	// maxFrameBytes is the bound advertised to the pipeline; callers slice
	// batch audio to it before handing frames over.
	maxFrameBytes = 16 * 1024
	// audioEventBytes is ~100ms of 16kHz mono PCM per AWS recommendation
	// (50-200ms events).
	audioEventBytes = 3200
)

// Transcriber runs one streaming transcription per audio batch: open a
// stream, push the whole batch, close the input and collect the final
// segments.
type Transcriber struct {
	client *transcribestreaming.Client
}

func NewTranscriber(cfg aws.Config) *Transcriber {
	return &Transcriber{client: transcribestreaming.NewFromConfig(cfg)}
}

func (t *Transcriber) MaxFrameBytes() int { return maxFrameBytes }

func (t *Transcriber) Transcribe(ctx context.Context, frames [][]byte, sourceLang string, sampleRate, channels int) (worker.Transcript, error) {
	langCode, ok := transcribeLanguageCodes[sourceLang]
	if !ok {
		langCode = types.LanguageCodeEnUs
		log.Printf("[Transcribe] Unknown language '%s', defaulting to en-US", sourceLang)
	}

	resp, err := t.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         langCode,
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(int32(sampleRate)),
	})
	if err != nil {
		return worker.Transcript{}, err
	}

	stream := resp.GetStream()

	// Feed the audio and close the input so the service flushes its final
	// results and ends the event stream.
	sendErr := make(chan error, 1)
	go func() {
		defer close(sendErr)
		for _, frame := range frames {
			for off := 0; off < len(frame); off += audioEventBytes {
				end := off + audioEventBytes
				if end > len(frame) {
					end = len(frame)
				}
				err := stream.Send(ctx, &types.AudioStreamMemberAudioEvent{
					Value: types.AudioEvent{AudioChunk: frame[off:end]},
				})
				if err != nil {
					sendErr <- err
					return
				}
			}
		}
		if err := stream.Close(); err != nil {
			sendErr <- err
		}
	}()

	var parts []string
	var confidenceSum float64
	var confidenceN int
	for event := range stream.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || te.Value.Transcript == nil {
			continue
		}
		for _, result := range te.Value.Transcript.Results {
			// Partials are superseded by the final segment; batch mode only
			// wants finals.
			if result.IsPartial || len(result.Alternatives) == 0 {
				continue
			}
			alt := result.Alternatives[0]
			text := aws.ToString(alt.Transcript)
			if text == "" {
				continue
			}
			parts = append(parts, text)
			if len(alt.Items) > 0 && alt.Items[0].Confidence != nil {
				confidenceSum += *alt.Items[0].Confidence
				confidenceN++
			}
		}
	}

	if err := <-sendErr; err != nil {
		return worker.Transcript{}, err
	}
	if err := stream.Err(); err != nil {
		return worker.Transcript{}, err
	}

	confidence := 1.0
	if confidenceN > 0 {
		confidence = confidenceSum / float64(confidenceN)
	}
	return worker.Transcript{
		Text:       strings.Join(parts, " "),
		Confidence: confidence,
	}, nil
}
