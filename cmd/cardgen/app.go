package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"cardgen-go/internal/batch"
	"cardgen-go/internal/config"
	"cardgen-go/internal/credential"
	"cardgen-go/internal/events"
	"cardgen-go/internal/gateway"
	"cardgen-go/internal/notes"
	"cardgen-go/internal/progress"
	"cardgen-go/internal/runtime"
	"cardgen-go/internal/storage"
	"cardgen-go/internal/upstream/gemini"

	log "github.com/sirupsen/logrus"
)

// app holds the long-lived services behind the admin API.
type app struct {
	creds   *credential.Manager
	gateway *gateway.Gateway
	orch    *batch.Orchestrator
	tasks   *runtime.TaskManager
	notes   storage.DocumentStore
}

func buildApp(ctx context.Context, cfg *config.Config, docs storage.DocumentStore, hub *events.Hub) (*app, error) {
	creds := credential.NewManager(ctx, credential.Options{
		Store:            credential.NewStore(docs, cfg.Credentials.InstallDir),
		MaxCredentials:   cfg.Credentials.MaxKeys,
		Cooldown:         cfg.Credentials.Cooldown,
		FailureThreshold: cfg.Credentials.FailureThreshold,
		DisableRotation:  !cfg.Credentials.RotationEnabled,
		Publisher:        hub,
	})
	if n := creds.MigrateLegacy(cfg.Credentials.LegacyKey, cfg.Credentials.Keys); n > 0 {
		log.WithField("imported", n).Info("imported API keys from configuration")
	}
	if creds.Count() == 0 {
		log.Warn("no API key configured; add one through the management API")
	}

	client := gemini.New(gemini.Options{
		Endpoint: cfg.Generation.Endpoint,
		Model:    cfg.Generation.Model,
		Timeout:  cfg.Generation.RequestTimeout,
		ProxyURL: cfg.Generation.ProxyURL,
	})
	gw := gateway.New(client, creds, gateway.Options{
		Model:             cfg.Generation.Model,
		CreativeModel:     cfg.Generation.CreativeModel,
		MaxRetries:        cfg.Generation.RetryMax,
		Backoff:           cfg.Generation.RetryBackoff,
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
	})

	noteDocs, noteName, err := openNotes(cfg, docs)
	if err != nil {
		return nil, err
	}
	ns, err := notes.NewDocumentStore(ctx, noteDocs, noteName)
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}

	tasks := runtime.NewTaskManager(ctx)
	orch := batch.New(batch.Options{
		Notes:      ns,
		Tasks:      tasks,
		Publisher:  hub,
		PauseSlice: cfg.Batch.PauseSlice,
	})
	orch.Register(&batch.TranslationProcessor{
		Notes: ns,
		Gen:   gw,
		Cfg:   cfg.Translation,
		Size:  cfg.Batch.TranslationBatch,
	}, progress.NewTracker(ctx, docs, batch.OpTranslation), cfg.Batch.TranslationDelay)
	orch.Register(&batch.SentenceProcessor{
		Notes:    ns,
		Gen:      gw,
		Cfg:      cfg.Sentence,
		Language: cfg.Translation.TargetLanguage,
	}, progress.NewTracker(ctx, docs, batch.OpSentence), cfg.Batch.SentenceDelay)
	orch.Register(&batch.ImagePromptProcessor{
		Notes: ns,
		Gen:   gw,
		Cfg:   cfg.Image,
		Size:  cfg.Batch.ImageBatch,
	}, progress.NewTracker(ctx, docs, batch.OpImage), cfg.Batch.ImageDelay)

	a := &app{creds: creds, gateway: gw, orch: orch, tasks: tasks}
	if noteDocs != docs {
		a.notes = noteDocs
	}
	return a, nil
}

// openNotes returns where the note collection lives: a standalone JSON file
// when notes_file is set, otherwise the shared document store.
func openNotes(cfg *config.Config, docs storage.DocumentStore) (storage.DocumentStore, string, error) {
	if strings.TrimSpace(cfg.NotesFile) == "" {
		return docs, notes.DefaultDocumentName, nil
	}
	dir, file := filepath.Split(cfg.NotesFile)
	if dir == "" {
		dir = "."
	}
	fs, err := storage.NewFileDocumentStore(dir)
	if err != nil {
		return nil, "", fmt.Errorf("open notes directory: %w", err)
	}
	return fs, strings.TrimSuffix(file, filepath.Ext(file)), nil
}

// stop cancels running batches through their task contexts and waits for
// them to settle; interrupted items stay pending for the next resume.
func (a *app) stop(ctx context.Context) {
	if err := a.tasks.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("batch tasks did not stop before the shutdown deadline")
	}
	if a.notes != nil {
		_ = a.notes.Close()
	}
}
