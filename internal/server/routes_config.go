package server

import (
	"net/http"

	"cardgen-go/internal/config"

	"github.com/gin-gonic/gin"
)

type validationView struct {
	Valid    bool         `json:"valid"`
	Errors   []fieldIssue `json:"errors,omitempty"`
	Warnings []fieldIssue `json:"warnings,omitempty"`
}

// fieldIssue drops the offending value, which may be a DSN or proxy URL.
type fieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func issues(in []config.ValidationError) []fieldIssue {
	out := make([]fieldIssue, 0, len(in))
	for _, e := range in {
		out = append(out, fieldIssue{Field: e.Field, Message: e.Message})
	}
	return out
}

// settingsView is the redacted configuration shown to the management UI.
// Secrets are reported only as "set or not".
type settingsView struct {
	StorageBackend   string           `json:"storage_backend"`
	NotesFile        string           `json:"notes_file,omitempty"`
	ManagementKeySet bool             `json:"management_key_set"`
	AllowRemote      bool             `json:"management_allow_remote"`
	Model            string           `json:"model"`
	CreativeModel    string           `json:"creative_model"`
	RetryMax         int              `json:"retry_max"`
	RetryBackoffMS   int64            `json:"retry_backoff_ms"`
	ProxySet         bool             `json:"proxy_set"`
	MaxKeys          int              `json:"max_keys"`
	CooldownHours    float64          `json:"cooldown_hours"`
	FailureThreshold int              `json:"consecutive_failure_threshold"`
	RotationEnabled  bool             `json:"rotation_enabled"`
	TargetLanguage   string           `json:"target_language"`
	DelaysMS         map[string]int64 `json:"delays_ms"`
	Validation       validationView   `json:"validation"`
}

func newSettingsView(cfg *config.Config) settingsView {
	res := cfg.Validate()
	return settingsView{
		StorageBackend:   cfg.Storage.Backend,
		NotesFile:        cfg.NotesFile,
		ManagementKeySet: cfg.Server.ManagementKey != "",
		AllowRemote:      cfg.Server.AllowRemote,
		Model:            cfg.Generation.Model,
		CreativeModel:    cfg.Generation.CreativeModel,
		RetryMax:         cfg.Generation.RetryMax,
		RetryBackoffMS:   cfg.Generation.RetryBackoff.Milliseconds(),
		ProxySet:         cfg.Generation.ProxyURL != "",
		MaxKeys:          cfg.Credentials.MaxKeys,
		CooldownHours:    cfg.Credentials.Cooldown.Hours(),
		FailureThreshold: cfg.Credentials.FailureThreshold,
		RotationEnabled:  cfg.Credentials.RotationEnabled,
		TargetLanguage:   cfg.Translation.TargetLanguage,
		DelaysMS: map[string]int64{
			"translation":  cfg.Batch.TranslationDelay.Milliseconds(),
			"sentence":     cfg.Batch.SentenceDelay.Milliseconds(),
			"image_prompt": cfg.Batch.ImageDelay.Milliseconds(),
		},
		Validation: validationView{Valid: res.Valid, Errors: issues(res.Errors), Warnings: issues(res.Warnings)},
	}
}

func (h *handlers) getSettings(c *gin.Context) {
	cfg := h.cfg
	if h.deps.Settings != nil {
		cfg = h.deps.Settings()
	}
	c.JSON(http.StatusOK, newSettingsView(cfg))
}
