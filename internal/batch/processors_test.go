package batch

import (
	"context"
	"errors"
	"testing"

	"cardgen-go/internal/config"
	"cardgen-go/internal/gateway"
	"cardgen-go/internal/notes"
	"cardgen-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	translations map[string]string
	batchErr     error
	singleCalls  int
	batchCalls   int
	sentence     gateway.Sentence
	prompts      map[string]string
	lastStyle    string
}

func (f *fakeGateway) Translate(_ context.Context, word, _, _ string) (string, error) {
	f.singleCalls++
	if tr, ok := f.translations[word]; ok {
		return tr, nil
	}
	return "", errors.New("429 quota exceeded")
}

func (f *fakeGateway) TranslateBatch(_ context.Context, words []gateway.Word, _ string) (map[string]string, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make(map[string]string)
	for _, w := range words {
		if tr, ok := f.translations[w.Text]; ok {
			out[w.Text] = tr
		}
	}
	return out, nil
}

func (f *fakeGateway) ComposeSentence(context.Context, string, string, string) (gateway.Sentence, error) {
	return f.sentence, nil
}

func (f *fakeGateway) BuildImagePrompt(_ context.Context, word, style, _ string) (string, error) {
	f.singleCalls++
	f.lastStyle = style
	return f.prompts[word], nil
}

func (f *fakeGateway) BuildImagePrompts(_ context.Context, words []string, _, style string) (map[string]string, error) {
	f.batchCalls++
	f.lastStyle = style
	out := make(map[string]string)
	for _, w := range words {
		if p, ok := f.prompts[w]; ok {
			out[w] = p
		}
	}
	return out, nil
}

func noteStore(t *testing.T, ns ...notes.Note) *notes.DocumentStore {
	t.Helper()
	ctx := context.Background()
	docs, err := storage.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)
	s, err := notes.NewDocumentStore(ctx, docs, "")
	require.NoError(t, err)
	for _, n := range ns {
		require.NoError(t, s.Put(ctx, n))
	}
	return s
}

var translationCfg = config.TranslationConfig{
	TargetLanguage:   "Spanish",
	SourceField:      "Word",
	ContextField:     "Definition",
	DestinationField: "Translation",
	SkipExisting:     true,
}

func TestTranslationProcessorBatch(t *testing.T) {
	store := noteStore(t,
		notes.Note{ID: "1", Fields: map[string]string{"Word": "<b>dog</b>", "Definition": "animal", "Translation": ""}},
		notes.Note{ID: "2", Fields: map[string]string{"Word": "cat", "Translation": "gato"}},
		notes.Note{ID: "3", Fields: map[string]string{"Word": "bird", "Translation": ""}},
		notes.Note{ID: "4", Fields: map[string]string{"Word": "  ", "Translation": ""}},
		notes.Note{ID: "5", Fields: map[string]string{"Word": "fish", "Translation": ""}},
	)
	gen := &fakeGateway{translations: map[string]string{"dog": "perro", "fish": "pez"}}
	p := &TranslationProcessor{Notes: store, Gen: gen, Cfg: translationCfg, Size: 5}

	res := p.Process(context.Background(), []string{"1", "2", "3", "4", "5"})
	require.Len(t, res, 5)
	assert.Equal(t, map[string]string{"Translation": "perro"}, res[0].Fields)
	assert.True(t, res[1].Skipped)
	assert.ErrorContains(t, res[2].Err, `no translation returned for "bird"`)
	assert.ErrorContains(t, res[3].Err, "is empty")
	assert.Equal(t, "pez", res[4].Fields["Translation"])
	assert.Equal(t, 1, gen.batchCalls)
	assert.Zero(t, gen.singleCalls)
}

func TestTranslationProcessorSingleAndBatchError(t *testing.T) {
	store := noteStore(t,
		notes.Note{ID: "1", Fields: map[string]string{"Word": "dog", "Translation": ""}},
		notes.Note{ID: "2", Fields: map[string]string{"Word": "cat", "Translation": ""}},
	)
	gen := &fakeGateway{translations: map[string]string{"dog": "perro"}, batchErr: errors.New("timeout")}
	p := &TranslationProcessor{Notes: store, Gen: gen, Cfg: translationCfg, Size: 1}

	res := p.Process(context.Background(), []string{"1"})
	assert.Equal(t, "perro", res[0].Fields["Translation"])
	assert.Equal(t, 1, gen.singleCalls)

	res = p.Process(context.Background(), []string{"1", "2"})
	assert.EqualError(t, res[0].Err, "timeout")
	assert.EqualError(t, res[1].Err, "timeout")

	res = p.Process(context.Background(), []string{"9"})
	assert.ErrorIs(t, res[0].Err, notes.ErrNoteNotFound)
}

func TestSentenceProcessorHighlights(t *testing.T) {
	store := noteStore(t,
		notes.Note{ID: "1", Fields: map[string]string{"Expression": "correr", "Sentence": "", "SentenceEnglish": ""}},
		notes.Note{ID: "2", Fields: map[string]string{"Expression": "correr", "Sentence": ""}},
	)
	gen := &fakeGateway{sentence: gateway.Sentence{
		TranslatedSentence:       "Yo corro cada mañana.",
		TranslatedConjugatedWord: "corro",
		EnglishSentence:          "I run every morning.",
		EnglishWord:              "run",
	}}
	p := &SentenceProcessor{
		Notes:    store,
		Gen:      gen,
		Language: "Spanish",
		Cfg: config.SentenceConfig{
			ExpressionField:  "Expression",
			SentenceField:    "Sentence",
			TranslationField: "SentenceEnglish",
			Difficulty:       "Normal",
			HighlightWord:    true,
		},
	}

	res := p.Process(context.Background(), []string{"1", "2"})
	require.NoError(t, res[0].Err)
	assert.Equal(t, map[string]string{
		"Sentence":        "Yo <b>corro</b> cada mañana.",
		"SentenceEnglish": "I <b>run</b> every morning.",
	}, res[0].Fields)
	assert.Equal(t, map[string]string{"Sentence": "Yo <b>corro</b> cada mañana."}, res[1].Fields)
}

func TestImagePromptProcessor(t *testing.T) {
	store := noteStore(t,
		notes.Note{ID: "1", Fields: map[string]string{"Word": "apple", "Prompt": ""}},
		notes.Note{ID: "2", Fields: map[string]string{"Word": "sun", "Prompt": ""}},
	)
	gen := &fakeGateway{prompts: map[string]string{"apple": "a red apple"}}
	p := &ImagePromptProcessor{Notes: store, Gen: gen, Size: 5, Cfg: config.ImageConfig{
		WordField: "Word", PromptField: "Prompt", StylePreset: "watercolor",
	}}

	res := p.Process(context.Background(), []string{"1", "2"})
	assert.Equal(t, "a red apple", res[0].Fields["Prompt"])
	assert.ErrorContains(t, res[1].Err, `no image prompt returned for "sun"`)
	assert.Equal(t, "watercolor", gen.lastStyle)

	res = p.Process(context.Background(), []string{"1"})
	assert.Equal(t, "a red apple", res[0].Fields["Prompt"])
	assert.Equal(t, 1, gen.singleCalls)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "dog & cat", plainText("<div><b>dog</b> &amp;<br/> cat</div>"))
	assert.Equal(t, "x", plainText("<style>p{}</style>x<script>alert(1)</script>"))
	assert.Equal(t, "", plainText(""))
}

func TestHighlightIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, "<b>Run</b> and <b>run</b>", highlight("Run and run", "run"))
	assert.Equal(t, "a.b", highlight("a.b", ""))
	assert.Equal(t, "1 <b>+</b> 1", highlight("1 + 1", "+"))
}
