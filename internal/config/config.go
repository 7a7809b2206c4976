package config

import "time"

// ServerConfig 服务器和管理接口配置
type ServerConfig struct {
	ListenAddr    string
	ManagementKey string
	// AllowRemote opens the management API to non-loopback clients,
	// optionally restricted to AllowedNetworks (IPs or CIDRs).
	AllowRemote     bool
	AllowedNetworks []string
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Debug   bool
	LogFile string
}

// StorageConfig 存储后端配置
type StorageConfig struct {
	Backend        string // file, redis, postgres, mongodb, git
	DataDir        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	PostgresDSN    string
	MongoURI       string
	MongoDatabase  string
	GitRemoteURL   string
	GitBranch      string
	GitUsername    string
	GitPassword    string
	GitAuthorName  string
	GitAuthorEmail string
}

// CredentialConfig controls the API key pool.
type CredentialConfig struct {
	InstallDir       string
	Keys             []string
	LegacyKey        string
	MaxKeys          int
	Cooldown         time.Duration
	FailureThreshold int
	RotationEnabled  bool
}

// GenerationConfig controls upstream requests and the retry policy.
type GenerationConfig struct {
	Endpoint          string
	Model             string
	CreativeModel     string
	RequestTimeout    time.Duration
	RetryMax          int
	RetryBackoff      time.Duration
	RequestsPerMinute int
	ProxyURL          string
}

// BatchConfig holds pacing for each bulk operation.
type BatchConfig struct {
	TranslationDelay time.Duration
	TranslationBatch int
	SentenceDelay    time.Duration
	ImageDelay       time.Duration
	ImageBatch       int
	PauseSlice       time.Duration
}

// TranslationConfig names the note fields used by translation runs.
type TranslationConfig struct {
	TargetLanguage   string
	SourceField      string
	ContextField     string
	DestinationField string
	SkipExisting     bool
}

// SentenceConfig names the note fields used by sentence runs.
type SentenceConfig struct {
	ExpressionField  string
	SentenceField    string
	TranslationField string
	Difficulty       string
	HighlightWord    bool
}

// ImageConfig names the note fields used by image prompt runs.
type ImageConfig struct {
	WordField    string
	PromptField  string
	StylePreset  string
	MasterPrompt string
}

// Config is the resolved runtime configuration.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Storage     StorageConfig
	Credentials CredentialConfig
	Generation  GenerationConfig
	Batch       BatchConfig
	Translation TranslationConfig
	Sentence    SentenceConfig
	Image       ImageConfig
	NotesFile   string
}

// Load resolves configuration from the given path (or the default search
// locations when empty) and environment overrides. It does not start a watcher.
func Load(path string) (*Config, error) {
	cm, err := newConfigManager(path, false)
	if err != nil {
		return nil, err
	}
	return cm.Config(), nil
}
