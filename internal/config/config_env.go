package config

// mergeEnvVars applies CARDGEN_* environment overrides on top of the loaded file.
func (cm *ConfigManager) mergeEnvVars() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.config == nil {
		cm.config = cm.defaultConfig()
	}
	applyEnv(cm.config)
	applyDefaults(cm.config)
}

func applyEnv(fc *FileConfig) {
	setStringFromEnv("CARDGEN_LISTEN_ADDR", func(v string) { fc.ListenAddr = v })
	setStringFromEnv("CARDGEN_MANAGEMENT_KEY", func(v string) { fc.ManagementKey = v })
	setToggleFromEnv("CARDGEN_MANAGEMENT_ALLOW_REMOTE", func(v bool) { fc.AllowRemote = v })
	setStringFromEnv("CARDGEN_MANAGEMENT_ALLOW_IPS", func(v string) { fc.AllowIPs = splitAndTrim(v, ",") })
	setToggleFromEnv("CARDGEN_DEBUG", func(v bool) { fc.Debug = v })
	setStringFromEnv("CARDGEN_LOG_FILE", func(v string) { fc.LogFile = v })

	setStringFromEnv("CARDGEN_STORAGE_BACKEND", func(v string) { fc.StorageBackend = v })
	setStringFromEnv("CARDGEN_DATA_DIR", func(v string) { fc.DataDir = v })
	setStringFromEnv("CARDGEN_REDIS_ADDR", func(v string) { fc.RedisAddr = v })
	setStringFromEnv("CARDGEN_REDIS_PASSWORD", func(v string) { fc.RedisPassword = v })
	setIntFromEnv("CARDGEN_REDIS_DB", func(v int) { fc.RedisDB = v })
	setStringFromEnv("CARDGEN_REDIS_PREFIX", func(v string) { fc.RedisPrefix = v })
	setStringFromEnv("CARDGEN_POSTGRES_DSN", func(v string) { fc.PostgresDSN = v })
	setStringFromEnv("CARDGEN_MONGODB_URI", func(v string) { fc.MongoDBURI = v })
	setStringFromEnv("CARDGEN_MONGODB_DATABASE", func(v string) { fc.MongoDatabase = v })
	setStringFromEnv("CARDGEN_GIT_REMOTE_URL", func(v string) { fc.GitRemoteURL = v })
	setStringFromEnv("CARDGEN_GIT_BRANCH", func(v string) { fc.GitBranch = v })
	setStringFromEnv("CARDGEN_GIT_USERNAME", func(v string) { fc.GitUsername = v })
	setStringFromEnv("CARDGEN_GIT_PASSWORD", func(v string) { fc.GitPassword = v })

	setStringFromEnv("CARDGEN_INSTALL_DIR", func(v string) { fc.InstallDir = v })
	setStringFromEnv("CARDGEN_API_KEYS", func(v string) { fc.APIKeys = splitAndTrim(v, ",") })
	setStringFromEnv("GEMINI_API_KEY", func(v string) { fc.LegacyAPIKey = v })
	setIntFromEnv("CARDGEN_MAX_KEYS", func(v int) { fc.MaxKeys = v })
	setIntFromEnv("CARDGEN_COOLDOWN_HOURS", func(v int) { fc.CooldownHours = v })
	setIntFromEnv("CARDGEN_FAILURE_THRESHOLD", func(v int) { fc.FailureThreshold = v })
	setToggleFromEnv("CARDGEN_ROTATION_ENABLED", func(v bool) { fc.RotationEnabled = boolPtr(v) })

	setStringFromEnv("CARDGEN_ENDPOINT", func(v string) { fc.Endpoint = v })
	setStringFromEnv("CARDGEN_MODEL", func(v string) { fc.Model = v })
	setStringFromEnv("CARDGEN_CREATIVE_MODEL", func(v string) { fc.CreativeModel = v })
	setIntFromEnv("CARDGEN_REQUEST_TIMEOUT_SEC", func(v int) { fc.RequestTimeoutSec = v })
	setIntFromEnv("CARDGEN_RETRY_MAX", func(v int) { fc.RetryMax = v })
	setFloatFromEnv("CARDGEN_RETRY_BACKOFF_SEC", func(v float64) { fc.RetryBackoffSec = v })
	setIntFromEnv("CARDGEN_REQUESTS_PER_MINUTE", func(v int) { fc.RequestsPerMinute = v })
	setStringFromEnv("CARDGEN_PROXY_URL", func(v string) { fc.ProxyURL = v })

	setFloatFromEnv("CARDGEN_TRANSLATION_DELAY_SEC", func(v float64) { fc.TranslationDelaySec = v })
	setFloatFromEnv("CARDGEN_SENTENCE_DELAY_SEC", func(v float64) { fc.SentenceDelaySec = v })
	setFloatFromEnv("CARDGEN_IMAGE_DELAY_SEC", func(v float64) { fc.ImageDelaySec = v })
	setStringFromEnv("CARDGEN_TARGET_LANGUAGE", func(v string) { fc.TargetLanguage = v })
	setStringFromEnv("CARDGEN_NOTES_FILE", func(v string) { fc.NotesFile = v })
}
