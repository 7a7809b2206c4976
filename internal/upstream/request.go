package upstream

import "context"

// GenerationConfig 描述一次生成调用的采样参数。
type GenerationConfig struct {
	// Model 为空时由 Generator 使用其默认模型。
	Model            string
	Temperature      float64
	MaxOutputTokens  int
	TopP             float64
	TopK             int
	ResponseMIMEType string
}

// Generator is the opaque text generation capability. Implementations return
// an error for transport failures, non-2xx responses and blocked content; an
// empty string is a valid (if unhelpful) answer.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string, cfg GenerationConfig) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, apiKey, prompt string, cfg GenerationConfig) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, apiKey, prompt string, cfg GenerationConfig) (string, error) {
	return f(ctx, apiKey, prompt, cfg)
}
