package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"cardgen-go/internal/config"

	log "github.com/sirupsen/logrus"
)

// NewFromConfig builds and initialises the configured document store.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (DocumentStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "file"
	}
	entry := log.WithField("backend", backend)

	switch backend {
	case "file":
		return NewFileDocumentStore(cfg.DataDir)
	case "redis":
		rs := NewRedisDocumentStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := rs.Initialize(ctx); err != nil {
			_ = rs.Close()
			return nil, err
		}
		entry.WithField("addr", cfg.RedisAddr).Info("document store ready")
		return rs, nil
	case "postgres":
		ps, err := NewPostgresDocumentStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := ps.Initialize(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		entry.Info("document store ready")
		return ps, nil
	case "mongodb":
		ms := NewMongoDocumentStore(cfg.MongoURI, cfg.MongoDatabase)
		if err := ms.Initialize(ctx); err != nil {
			return nil, err
		}
		entry.WithField("database", cfg.MongoDatabase).Info("document store ready")
		return ms, nil
	case "git":
		gs := NewGitDocumentStore(GitOptions{
			Path:        filepath.Join(expandPath(cfg.DataDir), "git"),
			RemoteURL:   cfg.GitRemoteURL,
			Branch:      cfg.GitBranch,
			Username:    cfg.GitUsername,
			Password:    cfg.GitPassword,
			AuthorName:  cfg.GitAuthorName,
			AuthorEmail: cfg.GitAuthorEmail,
		})
		if err := gs.Initialize(ctx); err != nil {
			return nil, err
		}
		entry.Info("document store ready")
		return gs, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
