package gateway

import (
	"context"
	"fmt"
	"strings"

	"cardgen-go/internal/credential"
	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/upstream"

	"github.com/tidwall/gjson"
)

const connectionPrompt = "Say 'Hello' in one word."

// Word is a term to translate together with its disambiguating context.
type Word struct {
	Text    string
	Context string
}

// Sentence is a generated example sentence.
type Sentence struct {
	TranslatedSentence       string `json:"translated_sentence"`
	TranslatedConjugatedWord string `json:"translated_conjugated_word"`
	EnglishSentence          string `json:"english_sentence"`
	EnglishWord              string `json:"english_word"`
}

func translationConfig() upstream.GenerationConfig {
	return upstream.GenerationConfig{Temperature: 0.3, MaxOutputTokens: 256, TopP: 0.8, TopK: 40}
}

func (g *Gateway) imageConfig() upstream.GenerationConfig {
	return upstream.GenerationConfig{Model: g.opts.CreativeModel, Temperature: 0.8, MaxOutputTokens: 1024, TopP: 0.95, TopK: 60}
}

// Translate returns the translation of word into lang, using definition to
// pick the intended meaning.
func (g *Gateway) Translate(ctx context.Context, word, definition, lang string) (string, error) {
	out, err := g.GenerateText(ctx, translationPrompt(word, definition, lang), translationConfig(),
		RetryOptions{Kind: credential.KindTranslation, Count: 1})
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\"' \n"), nil
}

// TranslateBatch translates several words in one request. The result is
// keyed by the lowercased word; words the model skipped are absent.
func (g *Gateway) TranslateBatch(ctx context.Context, words []Word, lang string) (map[string]string, error) {
	out := make(map[string]string, len(words))
	if len(words) == 0 {
		return out, nil
	}
	cfg := translationConfig()
	cfg.MaxOutputTokens = 256 * len(words)
	doc, err := g.GenerateJSON(ctx, batchTranslationPrompt(words, lang), batchTranslationSchema, cfg,
		RetryOptions{Kind: credential.KindTranslation, Count: len(words)})
	if err != nil {
		return nil, err
	}
	for _, entry := range doc.Get("translations").Array() {
		w := strings.TrimSpace(entry.Get("word").String())
		tr := strings.TrimSpace(entry.Get("translation").String())
		if w == "" || tr == "" {
			continue
		}
		out[strings.ToLower(w)] = tr
	}
	if len(out) == 0 {
		return nil, &apperrors.ClassifiedError{
			Kind:     apperrors.KindMalformedResponse,
			Message:  "batch translation response contained no translations",
			Attempts: 1,
		}
	}
	return out, nil
}

// ComposeSentence generates an example sentence using word in lang.
// difficulty is one of the Difficulty constants; anything else means Normal.
func (g *Gateway) ComposeSentence(ctx context.Context, word, lang, difficulty string) (Sentence, error) {
	doc, err := g.GenerateJSON(ctx, sentencePrompt(word, lang, difficulty), sentenceSchema, JSONConfig(),
		RetryOptions{Kind: credential.KindSentence, Count: 1})
	if err != nil {
		return Sentence{}, err
	}
	s := Sentence{
		TranslatedSentence:       strings.TrimSpace(doc.Get("translated_sentence").String()),
		TranslatedConjugatedWord: strings.TrimSpace(doc.Get("translated_conjugated_word").String()),
		EnglishSentence:          strings.TrimSpace(doc.Get("english_sentence").String()),
		EnglishWord:              strings.TrimSpace(doc.Get("english_word").String()),
	}
	if s.TranslatedSentence == "" {
		return Sentence{}, &apperrors.ClassifiedError{
			Kind:     apperrors.KindMalformedResponse,
			Message:  "sentence response missing translated_sentence",
			Attempts: 1,
		}
	}
	if s.EnglishWord == "" {
		s.EnglishWord = word
	}
	return s, nil
}

// BuildImagePrompt asks the creative model for a scene description of word.
func (g *Gateway) BuildImagePrompt(ctx context.Context, word, style, instructions string) (string, error) {
	return g.GenerateText(ctx, imagePrompt(word, style, instructions), g.imageConfig(),
		RetryOptions{Kind: credential.KindImage, Count: 1})
}

// BuildImagePrompts produces scene descriptions for several words in one
// request. Keys are the words as given; words the model skipped are absent.
func (g *Gateway) BuildImagePrompts(ctx context.Context, words []string, masterPrompt, style string) (map[string]string, error) {
	out := make(map[string]string, len(words))
	if len(words) == 0 {
		return out, nil
	}
	doc, err := g.GenerateJSON(ctx, batchImagePrompt(words, masterPrompt, style), batchImageSchema, g.imageConfig(),
		RetryOptions{Kind: credential.KindImage, Count: len(words)})
	if err != nil {
		return nil, err
	}
	prompts := doc.Get("prompts")
	lower := make(map[string]string)
	prompts.ForEach(func(k, v gjson.Result) bool {
		lower[strings.ToLower(strings.TrimSpace(k.String()))] = strings.TrimSpace(v.String())
		return true
	})
	for _, w := range words {
		if p := lower[strings.ToLower(strings.TrimSpace(w))]; p != "" {
			out[w] = p
		}
	}
	return out, nil
}

// TestConnection sends a trivial prompt with apiKey, or with the current
// credential when apiKey is empty. It does not touch credential statistics.
func (g *Gateway) TestConnection(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		key, ok := g.creds.Current()
		if !ok {
			return &apperrors.ClassifiedError{
				Kind:    apperrors.KindInvalidCredential,
				Message: "no API key configured",
				Err:     apperrors.ErrExhausted,
			}
		}
		apiKey = key
	}
	cfg := upstream.GenerationConfig{Model: g.opts.Model, Temperature: 0, MaxOutputTokens: 16}
	text, err := g.gen.Generate(ctx, apiKey, connectionPrompt, cfg)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyResponse
	}
	if err != nil {
		ce := apperrors.Wrap(err, 1)
		ce.Message = credential.SanitizeReason(err.Error())
		return fmt.Errorf("connection test with %s failed: %w", credential.Mask(apiKey), ce)
	}
	return nil
}
