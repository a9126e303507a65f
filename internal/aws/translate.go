package aws

import (
	"context"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

// Translator wraps Amazon Translate. It doubles as the capability oracle for
// the language validator.
type Translator struct {
	client *translate.Client
}

func NewTranslator(cfg aws.Config) *Translator {
	return &Translator{client: translate.NewFromConfig(cfg)}
}

// Translate translates text from source to target language.
func (c *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == targetLang || text == "" {
		return text, nil
	}

	output, err := c.client.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               aws.String(text),
		SourceLanguageCode: aws.String(sourceLang),
		TargetLanguageCode: aws.String(targetLang),
	})
	if err != nil {
		log.Printf("[Translate] ❌ Error translating from %s to %s: %v", sourceLang, targetLang, err)
		return "", err
	}
	return aws.ToString(output.TranslatedText), nil
}

// SupportedLanguages lists what the pipeline can actually serve: targets are
// everything Translate speaks, sources are the subset Transcribe can also
// hear.
func (c *Translator) SupportedLanguages(ctx context.Context) (sources, targets []string, err error) {
	var next *string
	for {
		out, err := c.client.ListLanguages(ctx, &translate.ListLanguagesInput{NextToken: next})
		if err != nil {
			return nil, nil, err
		}
		for _, lang := range out.Languages {
			code := aws.ToString(lang.LanguageCode)
			if code == "" || code == "auto" {
				continue
			}
			targets = append(targets, code)
			if _, ok := transcribeLanguageCodes[code]; ok {
				sources = append(sources, code)
			}
		}
		if out.NextToken == nil {
			break
		}
		next = out.NextToken
	}
	return sources, targets, nil
}
