package gateway

import (
	"context"
	"regexp"
	"strings"

	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/upstream"

	"github.com/tidwall/gjson"
)

const (
	jsonInstruction = "\n\nRespond with valid JSON only. No markdown formatting."
	jsonMIMEType    = "application/json"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	flatObject = regexp.MustCompile(`\{[^{}]*\}`)
)

// JSONConfig is the sampling profile used for structured answers.
func JSONConfig() upstream.GenerationConfig {
	return upstream.GenerationConfig{Temperature: 0.3, MaxOutputTokens: 512, ResponseMIMEType: jsonMIMEType}
}

// GenerateJSON asks for a JSON answer and returns the extracted document.
// schemaHint, when set, is appended to the prompt as the expected shape.
// The request always asks for an application/json response; answers
// wrapped in markdown fences or surrounded by prose are still tolerated.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt, schemaHint string, cfg upstream.GenerationConfig, ro RetryOptions) (gjson.Result, error) {
	cfg.ResponseMIMEType = jsonMIMEType
	var b strings.Builder
	b.WriteString(prompt)
	if schemaHint != "" {
		b.WriteString("\n\nExpected JSON format:\n")
		b.WriteString(schemaHint)
	}
	b.WriteString(jsonInstruction)

	text, err := g.GenerateText(ctx, b.String(), cfg, ro)
	if err != nil {
		return gjson.Result{}, err
	}
	doc, ok := extractJSON(text)
	if !ok {
		preview := text
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return gjson.Result{}, &apperrors.ClassifiedError{
			Kind:     apperrors.KindMalformedResponse,
			Message:  "failed to parse JSON response: " + preview,
			Attempts: 1,
		}
	}
	return gjson.Parse(doc), nil
}

// extractJSON finds the JSON document in a model answer: the whole text,
// a fenced block, the outermost braces, then the first flat object.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if isDocument(text) {
		return text, true
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if c := strings.TrimSpace(m[1]); isDocument(c) {
			return c, true
		}
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if c := text[start : end+1]; isDocument(c) {
			return c, true
		}
	}
	if c := flatObject.FindString(text); c != "" && isDocument(c) {
		return c, true
	}
	return "", false
}

func isDocument(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return gjson.Valid(s)
}
