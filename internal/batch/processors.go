package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cardgen-go/internal/config"
	"cardgen-go/internal/gateway"
	"cardgen-go/internal/notes"
)

// Translator is the part of the generation gateway translation runs use.
type Translator interface {
	Translate(ctx context.Context, word, definition, lang string) (string, error)
	TranslateBatch(ctx context.Context, words []gateway.Word, lang string) (map[string]string, error)
}

// SentenceComposer is the part of the generation gateway sentence runs use.
type SentenceComposer interface {
	ComposeSentence(ctx context.Context, word, lang, difficulty string) (gateway.Sentence, error)
}

// ImagePrompter is the part of the generation gateway image runs use.
type ImagePrompter interface {
	BuildImagePrompt(ctx context.Context, word, style, instructions string) (string, error)
	BuildImagePrompts(ctx context.Context, words []string, masterPrompt, style string) (map[string]string, error)
}

// readWord returns the plain text of field, failing when it is empty.
func readWord(ctx context.Context, store notes.Store, id, field string) (string, error) {
	raw, err := store.Field(ctx, id, field)
	if err != nil {
		return "", err
	}
	word := plainText(raw)
	if word == "" {
		return "", fmt.Errorf("field %q is empty", field)
	}
	return word, nil
}

// optionalField reads a field that notes may lack.
func optionalField(ctx context.Context, store notes.Store, id, field string) (string, bool, error) {
	if field == "" {
		return "", false, nil
	}
	raw, err := store.Field(ctx, id, field)
	if errors.Is(err, notes.ErrFieldNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

// TranslationProcessor fills the destination field with a translation of
// the source field, using the context field to disambiguate.
type TranslationProcessor struct {
	Notes notes.Store
	Gen   Translator
	Cfg   config.TranslationConfig
	// Size is the number of words per request.
	Size int
}

func (p *TranslationProcessor) Operation() string { return OpTranslation }
func (p *TranslationProcessor) BatchSize() int    { return p.Size }

func (p *TranslationProcessor) Process(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))
	var (
		words []gateway.Word
		index []int
	)
	for i, id := range ids {
		word, err := readWord(ctx, p.Notes, id, p.Cfg.SourceField)
		if err != nil {
			results[i].Err = err
			continue
		}
		if p.Cfg.SkipExisting {
			existing, _, err := optionalField(ctx, p.Notes, id, p.Cfg.DestinationField)
			if err != nil {
				results[i].Err = err
				continue
			}
			if plainText(existing) != "" {
				results[i].Skipped = true
				continue
			}
		}
		definition, _, err := optionalField(ctx, p.Notes, id, p.Cfg.ContextField)
		if err != nil {
			results[i].Err = err
			continue
		}
		words = append(words, gateway.Word{Text: word, Context: plainText(definition)})
		index = append(index, i)
	}

	switch len(words) {
	case 0:
	case 1:
		tr, err := p.Gen.Translate(ctx, words[0].Text, words[0].Context, p.Cfg.TargetLanguage)
		p.fill(results, index[0], tr, err)
	default:
		got, err := p.Gen.TranslateBatch(ctx, words, p.Cfg.TargetLanguage)
		for n, w := range words {
			if err != nil {
				results[index[n]].Err = err
				continue
			}
			tr, ok := got[strings.ToLower(w.Text)]
			if !ok {
				results[index[n]].Err = fmt.Errorf("no translation returned for %q", w.Text)
				continue
			}
			p.fill(results, index[n], tr, nil)
		}
	}
	return results
}

func (p *TranslationProcessor) fill(results []Result, i int, translation string, err error) {
	if err != nil {
		results[i].Err = err
		return
	}
	results[i].Fields = map[string]string{p.Cfg.DestinationField: translation}
}

// SentenceProcessor writes an example sentence, and its English rendering
// when the note has a translation field.
type SentenceProcessor struct {
	Notes    notes.Store
	Gen      SentenceComposer
	Cfg      config.SentenceConfig
	Language string
}

func (p *SentenceProcessor) Operation() string { return OpSentence }
func (p *SentenceProcessor) BatchSize() int    { return 1 }

func (p *SentenceProcessor) Process(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))
	for i, id := range ids {
		results[i] = p.one(ctx, id)
	}
	return results
}

func (p *SentenceProcessor) one(ctx context.Context, id string) Result {
	word, err := readWord(ctx, p.Notes, id, p.Cfg.ExpressionField)
	if err != nil {
		return Result{Err: err}
	}
	_, hasTranslation, err := optionalField(ctx, p.Notes, id, p.Cfg.TranslationField)
	if err != nil {
		return Result{Err: err}
	}
	s, err := p.Gen.ComposeSentence(ctx, word, p.Language, p.Cfg.Difficulty)
	if err != nil {
		return Result{Err: err}
	}

	sentence, english := s.TranslatedSentence, s.EnglishSentence
	if p.Cfg.HighlightWord {
		conj := s.TranslatedConjugatedWord
		if conj == "" {
			conj = word
		}
		sentence = highlight(sentence, conj)
		english = highlight(english, s.EnglishWord)
	}
	fields := map[string]string{p.Cfg.SentenceField: sentence}
	if hasTranslation {
		fields[p.Cfg.TranslationField] = english
	}
	return Result{Fields: fields}
}

// ImagePromptProcessor writes an image generation prompt for the word field.
type ImagePromptProcessor struct {
	Notes notes.Store
	Gen   ImagePrompter
	Cfg   config.ImageConfig
	// Size is the number of words per request.
	Size int
}

func (p *ImagePromptProcessor) Operation() string { return OpImage }
func (p *ImagePromptProcessor) BatchSize() int    { return p.Size }

func (p *ImagePromptProcessor) Process(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))
	var (
		words []string
		index []int
	)
	for i, id := range ids {
		word, err := readWord(ctx, p.Notes, id, p.Cfg.WordField)
		if err != nil {
			results[i].Err = err
			continue
		}
		words = append(words, word)
		index = append(index, i)
	}

	switch len(words) {
	case 0:
	case 1:
		prompt, err := p.Gen.BuildImagePrompt(ctx, words[0], p.Cfg.StylePreset, p.Cfg.MasterPrompt)
		p.fill(results, index[0], prompt, err)
	default:
		got, err := p.Gen.BuildImagePrompts(ctx, words, p.Cfg.MasterPrompt, p.Cfg.StylePreset)
		for n, w := range words {
			if err != nil {
				results[index[n]].Err = err
				continue
			}
			prompt, ok := got[w]
			if !ok {
				results[index[n]].Err = fmt.Errorf("no image prompt returned for %q", w)
				continue
			}
			p.fill(results, index[n], prompt, nil)
		}
	}
	return results
}

func (p *ImagePromptProcessor) fill(results []Result, i int, prompt string, err error) {
	if err != nil {
		results[i].Err = err
		return
	}
	results[i].Fields = map[string]string{p.Cfg.PromptField: prompt}
}
