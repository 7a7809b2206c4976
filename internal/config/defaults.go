package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultListenAddr       = "127.0.0.1:8765"
	DefaultStorageBackend   = "file"
	DefaultRedisPrefix      = "cardgen:"
	DefaultMongoDatabase    = "cardgen"
	DefaultGitBranch        = "main"
	DefaultMaxKeys          = 15
	DefaultCooldownHours    = 24
	DefaultFailureThreshold = 5

	DefaultEndpoint          = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel             = "gemini-2.5-flash"
	DefaultCreativeModel     = "gemini-1.5-pro"
	DefaultRequestTimeoutSec = 60
	DefaultRetryMax          = 3
	DefaultRetryBackoffSec   = 2.0

	DefaultTranslationDelaySec = 8.0
	DefaultTranslationBatch    = 5
	DefaultSentenceDelaySec    = 2.0
	DefaultImageDelaySec       = 3.0
	DefaultImageBatch          = 5
	DefaultPauseSliceMs        = 100
	MaxPauseSliceMs            = 500

	DefaultTargetLanguage = "Korean"
	DefaultDifficulty     = "Normal"
	DefaultStylePreset    = "anime"
)

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".cardgen")
	}
	return ".cardgen"
}

func boolPtr(v bool) *bool { return &v }

func (cm *ConfigManager) defaultConfig() *FileConfig {
	fc := &FileConfig{}
	applyDefaults(fc)
	return fc
}

// applyDefaults fills zero values with defaults. It is applied after every load.
func applyDefaults(fc *FileConfig) {
	if fc.ListenAddr == "" {
		fc.ListenAddr = DefaultListenAddr
	}
	if fc.StorageBackend == "" {
		fc.StorageBackend = DefaultStorageBackend
	}
	if fc.DataDir == "" {
		fc.DataDir = defaultDataDir()
	}
	if fc.RedisPrefix == "" {
		fc.RedisPrefix = DefaultRedisPrefix
	}
	if fc.MongoDatabase == "" {
		fc.MongoDatabase = DefaultMongoDatabase
	}
	if fc.GitBranch == "" {
		fc.GitBranch = DefaultGitBranch
	}
	if fc.InstallDir == "" {
		fc.InstallDir = fc.DataDir
	}
	if fc.MaxKeys <= 0 {
		fc.MaxKeys = DefaultMaxKeys
	}
	if fc.CooldownHours <= 0 {
		fc.CooldownHours = DefaultCooldownHours
	}
	if fc.FailureThreshold <= 0 {
		fc.FailureThreshold = DefaultFailureThreshold
	}
	if fc.RotationEnabled == nil {
		fc.RotationEnabled = boolPtr(true)
	}

	if fc.Endpoint == "" {
		fc.Endpoint = DefaultEndpoint
	}
	if fc.Model == "" {
		fc.Model = DefaultModel
	}
	if fc.CreativeModel == "" {
		fc.CreativeModel = DefaultCreativeModel
	}
	if fc.RequestTimeoutSec <= 0 {
		fc.RequestTimeoutSec = DefaultRequestTimeoutSec
	}
	if fc.RetryMax <= 0 {
		fc.RetryMax = DefaultRetryMax
	}
	if fc.RetryBackoffSec <= 0 {
		fc.RetryBackoffSec = DefaultRetryBackoffSec
	}

	if fc.TranslationDelaySec <= 0 {
		fc.TranslationDelaySec = DefaultTranslationDelaySec
	}
	if fc.TranslationBatch <= 0 {
		fc.TranslationBatch = DefaultTranslationBatch
	}
	if fc.SentenceDelaySec <= 0 {
		fc.SentenceDelaySec = DefaultSentenceDelaySec
	}
	if fc.ImageDelaySec <= 0 {
		fc.ImageDelaySec = DefaultImageDelaySec
	}
	if fc.ImageBatch <= 0 {
		fc.ImageBatch = DefaultImageBatch
	}
	if fc.PauseSliceMs <= 0 {
		fc.PauseSliceMs = DefaultPauseSliceMs
	}
	if fc.PauseSliceMs > MaxPauseSliceMs {
		fc.PauseSliceMs = MaxPauseSliceMs
	}

	if fc.TargetLanguage == "" {
		fc.TargetLanguage = DefaultTargetLanguage
	}
	if fc.SourceField == "" {
		fc.SourceField = "Word"
	}
	if fc.ContextField == "" {
		fc.ContextField = "Definition"
	}
	if fc.DestinationField == "" {
		fc.DestinationField = "Translation"
	}
	if fc.SkipExisting == nil {
		fc.SkipExisting = boolPtr(true)
	}

	if fc.ExpressionField == "" {
		fc.ExpressionField = "Word"
	}
	if fc.SentenceField == "" {
		fc.SentenceField = "Sentence"
	}
	if fc.SentenceTranslationField == "" {
		fc.SentenceTranslationField = "SentenceTranslation"
	}
	if fc.Difficulty == "" {
		fc.Difficulty = DefaultDifficulty
	}
	if fc.HighlightWord == nil {
		fc.HighlightWord = boolPtr(true)
	}

	if fc.ImageWordField == "" {
		fc.ImageWordField = "Word"
	}
	if fc.ImagePromptField == "" {
		fc.ImagePromptField = "ImagePrompt"
	}
	if fc.StylePreset == "" {
		fc.StylePreset = DefaultStylePreset
	}

	if fc.NotesFile == "" {
		fc.NotesFile = filepath.Join(fc.DataDir, "notes.json")
	}
}
