package config

import (
	"strings"
	"time"
)

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func derefBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// fileConfigToConfig converts FileConfig to Config.
func fileConfigToConfig(fc *FileConfig) *Config {
	keys := make([]string, 0, len(fc.APIKeys))
	for _, k := range fc.APIKeys {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}

	return &Config{
		Server: ServerConfig{
			ListenAddr:      fc.ListenAddr,
			ManagementKey:   fc.ManagementKey,
			AllowRemote:     fc.AllowRemote,
			AllowedNetworks: fc.AllowIPs,
		},
		Logging: LoggingConfig{
			Debug:   fc.Debug,
			LogFile: fc.LogFile,
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(strings.TrimSpace(fc.StorageBackend)),
			DataDir:        fc.DataDir,
			RedisAddr:      fc.RedisAddr,
			RedisPassword:  fc.RedisPassword,
			RedisDB:        fc.RedisDB,
			RedisPrefix:    fc.RedisPrefix,
			PostgresDSN:    fc.PostgresDSN,
			MongoURI:       fc.MongoDBURI,
			MongoDatabase:  fc.MongoDatabase,
			GitRemoteURL:   fc.GitRemoteURL,
			GitBranch:      fc.GitBranch,
			GitUsername:    fc.GitUsername,
			GitPassword:    fc.GitPassword,
			GitAuthorName:  fc.GitAuthorName,
			GitAuthorEmail: fc.GitAuthorEmail,
		},
		Credentials: CredentialConfig{
			InstallDir:       fc.InstallDir,
			Keys:             keys,
			LegacyKey:        strings.TrimSpace(fc.LegacyAPIKey),
			MaxKeys:          fc.MaxKeys,
			Cooldown:         time.Duration(fc.CooldownHours) * time.Hour,
			FailureThreshold: fc.FailureThreshold,
			RotationEnabled:  derefBool(fc.RotationEnabled, true),
		},
		Generation: GenerationConfig{
			Endpoint:          strings.TrimRight(fc.Endpoint, "/"),
			Model:             fc.Model,
			CreativeModel:     fc.CreativeModel,
			RequestTimeout:    time.Duration(fc.RequestTimeoutSec) * time.Second,
			RetryMax:          fc.RetryMax,
			RetryBackoff:      secondsToDuration(fc.RetryBackoffSec),
			RequestsPerMinute: fc.RequestsPerMinute,
			ProxyURL:          fc.ProxyURL,
		},
		Batch: BatchConfig{
			TranslationDelay: secondsToDuration(fc.TranslationDelaySec),
			TranslationBatch: fc.TranslationBatch,
			SentenceDelay:    secondsToDuration(fc.SentenceDelaySec),
			ImageDelay:       secondsToDuration(fc.ImageDelaySec),
			ImageBatch:       fc.ImageBatch,
			PauseSlice:       time.Duration(fc.PauseSliceMs) * time.Millisecond,
		},
		Translation: TranslationConfig{
			TargetLanguage:   fc.TargetLanguage,
			SourceField:      fc.SourceField,
			ContextField:     fc.ContextField,
			DestinationField: fc.DestinationField,
			SkipExisting:     derefBool(fc.SkipExisting, true),
		},
		Sentence: SentenceConfig{
			ExpressionField:  fc.ExpressionField,
			SentenceField:    fc.SentenceField,
			TranslationField: fc.SentenceTranslationField,
			Difficulty:       fc.Difficulty,
			HighlightWord:    derefBool(fc.HighlightWord, true),
		},
		Image: ImageConfig{
			WordField:    fc.ImageWordField,
			PromptField:  fc.ImagePromptField,
			StylePreset:  fc.StylePreset,
			MasterPrompt: fc.MasterPrompt,
		},
		NotesFile: fc.NotesFile,
	}
}
