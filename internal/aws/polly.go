package aws

import (
	"context"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"relay-backend/internal/worker"
)

// Polly 언어별 뉴럴 보이스
var pollyVoices = map[string]types.VoiceId{
	"en": types.VoiceIdJoanna,
	"ko": types.VoiceIdSeoyeon,
	"ja": types.VoiceIdTakumi,
	"zh": types.VoiceIdZhiyu,
	"es": types.VoiceIdLupe,
	"fr": types.VoiceIdLea,
	"de": types.VoiceIdVicki,
	"it": types.VoiceIdBianca,
	"pt": types.VoiceIdCamila,
	"ar": types.VoiceIdZeina,
}

// Synthesizer wraps Amazon Polly, mp3 output.
type Synthesizer struct {
	client *polly.Client
}

func NewSynthesizer(cfg aws.Config) *Synthesizer {
	return &Synthesizer{client: polly.NewFromConfig(cfg)}
}

func (c *Synthesizer) Synthesize(ctx context.Context, text, lang string) (worker.Synthesis, error) {
	voice, ok := pollyVoices[lang]
	if !ok {
		voice = types.VoiceIdJoanna
		log.Printf("[Polly] No voice for language '%s', defaulting to Joanna", lang)
	}

	engine := types.EngineNeural
	if lang == "ar" {
		// Zeina is standard-engine only.
		engine = types.EngineStandard
	}

	resp, err := c.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      voice,
		Engine:       engine,
	})
	if err != nil {
		return worker.Synthesis{}, err
	}
	defer resp.AudioStream.Close()

	audio, err := io.ReadAll(resp.AudioStream)
	if err != nil {
		return worker.Synthesis{}, err
	}

	contentType := aws.ToString(resp.ContentType)
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	// Chunk duration is known from the source batch; Polly does not report
	// one for mp3, so leave it to the caller.
	return worker.Synthesis{Audio: audio, ContentType: contentType}, nil
}
