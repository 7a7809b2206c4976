package config

// FileConfig mirrors the on-disk configuration (YAML or JSON).
type FileConfig struct {
	// Server
	ListenAddr    string   `yaml:"listen_addr" json:"listen_addr"`
	ManagementKey string   `yaml:"management_key" json:"management_key"`
	AllowRemote   bool     `yaml:"management_allow_remote" json:"management_allow_remote"`
	AllowIPs      []string `yaml:"management_allow_ips" json:"management_allow_ips"`
	Debug         bool     `yaml:"debug" json:"debug"`
	LogFile       string   `yaml:"log_file" json:"log_file"`

	// Storage
	StorageBackend string `yaml:"storage_backend" json:"storage_backend"`
	DataDir        string `yaml:"data_dir" json:"data_dir"`
	RedisAddr      string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword  string `yaml:"redis_password" json:"redis_password"`
	RedisDB        int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix" json:"redis_prefix"`
	PostgresDSN    string `yaml:"postgres_dsn" json:"postgres_dsn"`
	MongoDBURI     string `yaml:"mongodb_uri" json:"mongodb_uri"`
	MongoDatabase  string `yaml:"mongodb_database" json:"mongodb_database"`
	GitRemoteURL   string `yaml:"git_remote_url" json:"git_remote_url"`
	GitBranch      string `yaml:"git_branch" json:"git_branch"`
	GitUsername    string `yaml:"git_username" json:"git_username"`
	GitPassword    string `yaml:"git_password" json:"git_password"`
	GitAuthorName  string `yaml:"git_author_name" json:"git_author_name"`
	GitAuthorEmail string `yaml:"git_author_email" json:"git_author_email"`

	// Credentials
	InstallDir       string   `yaml:"install_dir" json:"install_dir"`
	APIKeys          []string `yaml:"api_keys" json:"api_keys"`
	LegacyAPIKey     string   `yaml:"api_key" json:"api_key"`
	MaxKeys          int      `yaml:"max_keys" json:"max_keys"`
	CooldownHours    int      `yaml:"cooldown_hours" json:"cooldown_hours"`
	FailureThreshold int      `yaml:"consecutive_failure_threshold" json:"consecutive_failure_threshold"`
	RotationEnabled  *bool    `yaml:"rotation_enabled" json:"rotation_enabled"`

	// Generation
	Endpoint          string  `yaml:"endpoint" json:"endpoint"`
	Model             string  `yaml:"model" json:"model"`
	CreativeModel     string  `yaml:"creative_model" json:"creative_model"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec" json:"request_timeout_sec"`
	RetryMax          int     `yaml:"retry_max" json:"retry_max"`
	RetryBackoffSec   float64 `yaml:"retry_backoff_sec" json:"retry_backoff_sec"`
	RequestsPerMinute int     `yaml:"requests_per_minute" json:"requests_per_minute"`
	ProxyURL          string  `yaml:"proxy_url" json:"proxy_url"`

	// Batch pacing
	TranslationDelaySec float64 `yaml:"translation_delay_sec" json:"translation_delay_sec"`
	TranslationBatch    int     `yaml:"translation_batch_size" json:"translation_batch_size"`
	SentenceDelaySec    float64 `yaml:"sentence_delay_sec" json:"sentence_delay_sec"`
	ImageDelaySec       float64 `yaml:"image_delay_sec" json:"image_delay_sec"`
	ImageBatch          int     `yaml:"image_batch_size" json:"image_batch_size"`
	PauseSliceMs        int     `yaml:"pause_slice_ms" json:"pause_slice_ms"`

	// Translation fields
	TargetLanguage   string `yaml:"target_language" json:"target_language"`
	SourceField      string `yaml:"source_field" json:"source_field"`
	ContextField     string `yaml:"context_field" json:"context_field"`
	DestinationField string `yaml:"destination_field" json:"destination_field"`
	SkipExisting     *bool  `yaml:"skip_existing" json:"skip_existing"`

	// Sentence fields
	ExpressionField          string `yaml:"expression_field" json:"expression_field"`
	SentenceField            string `yaml:"sentence_field" json:"sentence_field"`
	SentenceTranslationField string `yaml:"sentence_translation_field" json:"sentence_translation_field"`
	Difficulty               string `yaml:"difficulty" json:"difficulty"`
	HighlightWord            *bool  `yaml:"highlight_word" json:"highlight_word"`

	// Image fields
	ImageWordField   string `yaml:"image_word_field" json:"image_word_field"`
	ImagePromptField string `yaml:"image_prompt_field" json:"image_prompt_field"`
	StylePreset      string `yaml:"style_preset" json:"style_preset"`
	MasterPrompt     string `yaml:"master_prompt" json:"master_prompt"`

	// Notes (standalone host)
	NotesFile string `yaml:"notes_file" json:"notes_file"`
}
