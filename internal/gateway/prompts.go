package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// Difficulty levels accepted by ComposeSentence.
const (
	DifficultyBeginner = "Beginner"
	DifficultyNormal   = "Normal"
	DifficultyComplex  = "Complex"
)

const translationSystemPrompt = `You are an expert vocabulary translator specializing in context-aware translation.

Translate vocabulary words accurately using the definition to pick the intended meaning.
Keep translations concise and natural in the target language.

Return ONLY the translation. No explanations, no alternatives.`

const sentenceSystemPrompt = `You are an expert language teacher creating example sentences for vocabulary learning.

Create natural, memorable sentences that clearly demonstrate how the word is used.`

const sentenceSchema = `{
  "translated_sentence": "sentence in the target language",
  "translated_conjugated_word": "the word as it appears in the sentence",
  "english_sentence": "English translation of the sentence",
  "english_word": "the English word"
}`

type sentenceSpec struct {
	length, grammar, vocab string
}

var sentenceSpecs = map[string]sentenceSpec{
	DifficultyBeginner: {"5-8 words", "simple present tense, basic structure", "common, everyday words"},
	DifficultyNormal:   {"8-12 words", "varied tenses, natural structure", "natural vocabulary mix"},
	DifficultyComplex:  {"12-18 words", "complex structures, varied tenses", "sophisticated, nuanced vocabulary"},
}

// StylePresets maps an image style name to the art direction given to the model.
var StylePresets = map[string]string{
	"anime": "Beautiful anime style with vibrant colors, high-quality digital art, clean line art.\n" +
		"If a person is needed, use a cute young female anime character.",
	"realistic": "Photorealistic style with natural lighting and detailed textures.\n" +
		"High-quality photography aesthetic with professional composition.",
	"watercolor": "Soft watercolor painting style with gentle colors and artistic brush strokes.\n" +
		"Dreamy, ethereal quality with beautiful color blending.",
	"minimalist": "Clean, minimalist design with simple shapes and limited color palette.\n" +
		"Modern, elegant aesthetic with clear focal point.",
	"cartoon": "Bright, cheerful cartoon style with bold colors and friendly characters.\n" +
		"Fun, approachable aesthetic suitable for all ages.",
}

// DefaultStyle is used when an unknown style is requested.
const DefaultStyle = "anime"

// StyleNames lists the known presets in stable order.
func StyleNames() []string {
	names := make([]string, 0, len(StylePresets))
	for n := range StylePresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func styleText(style string) string {
	if s, ok := StylePresets[strings.ToLower(strings.TrimSpace(style))]; ok {
		return s
	}
	return StylePresets[DefaultStyle]
}

func translationPrompt(word, definition, lang string) string {
	return fmt.Sprintf(`%s

Translate the following word to %s.

Word: %s
Context/Definition: %s

Use natural, everyday language.

Translation:`, translationSystemPrompt, lang, word, definition)
}

func batchTranslationPrompt(words []Word, lang string) string {
	var list strings.Builder
	for i, w := range words {
		fmt.Fprintf(&list, "%d. %s", i+1, w.Text)
		if w.Context != "" {
			fmt.Fprintf(&list, " (context: %s)", w.Context)
		}
		list.WriteByte('\n')
	}
	return fmt.Sprintf(`%s

Translate each of the following words to %s, using its context to choose the meaning.

%s
Return one entry per word, keeping the word exactly as given.`, translationSystemPrompt, lang, list.String())
}

const batchTranslationSchema = `{"translations": [{"word": "original word", "translation": "translation"}]}`

func sentencePrompt(word, lang, difficulty string) string {
	spec, ok := sentenceSpecs[difficulty]
	if !ok {
		difficulty = DifficultyNormal
		spec = sentenceSpecs[difficulty]
	}
	return fmt.Sprintf(`%s

Create an example sentence for vocabulary learning.

Target Word: %s
Language: %s
Difficulty: %s

Requirements:
- Sentence length: %s
- Grammar: %s
- Vocabulary: %s

Create a sentence that naturally uses %q and clearly demonstrates its meaning.`,
		sentenceSystemPrompt, word, lang, difficulty, spec.length, spec.grammar, spec.vocab, word)
}

func imagePrompt(word, style, instructions string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Create a detailed scene description for an image that visually represents the word: %q

Style Requirements:
%s

Scene Requirements:
- Focus on a single main subject that clearly represents %q
- Make it educational and memorable for language learning
- No text, letters, or watermarks in the image
- Emotionally positive or neutral tone`, word, styleText(style), word)
	if instructions != "" {
		b.WriteString("\n\nAdditional Instructions:\n")
		b.WriteString(instructions)
	}
	fmt.Fprintf(&b, "\n\nReturn ONLY the scene description for: %s", word)
	return b.String()
}

func batchImagePrompt(words []string, masterPrompt, style string) string {
	var b strings.Builder
	b.WriteString("Generate a vivid, visually descriptive image prompt for each of these vocabulary words:\n\n")
	for _, w := range words {
		b.WriteString("- ")
		b.WriteString(w)
		b.WriteByte('\n')
	}
	b.WriteString("\nStyle:\n")
	b.WriteString(styleText(style))
	if masterPrompt != "" {
		b.WriteString("\n\nInstructions applied to every word:\n")
		b.WriteString(masterPrompt)
	}
	return b.String()
}

const batchImageSchema = `{"prompts": {"word1": "image prompt for word1", "word2": "image prompt for word2"}}`
