package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cardgen-go/internal/migrations"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const defaultPGTimeout = 5 * time.Second

// PostgresDocumentStore keeps documents in the documents table (see migrations).
type PostgresDocumentStore struct {
	db *sql.DB
}

// NewPostgresDocumentStore opens and pings the database.
func NewPostgresDocumentStore(ctx context.Context, dsn string) (*PostgresDocumentStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := WithStorageTimeout(ctx, defaultPGTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info("Connected to PostgreSQL document store")
	return &PostgresDocumentStore{db: db}, nil
}

// Initialize applies schema migrations.
func (p *PostgresDocumentStore) Initialize(context.Context) error {
	if err := migrations.PostgresUp(p.db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("PostgreSQL migrations applied")
	return nil
}

func (p *PostgresDocumentStore) queryColumn(ctx context.Context, column, name string) ([]byte, error) {
	ctx, cancel := WithStorageTimeout(ctx, defaultPGTimeout)
	defer cancel()

	var data []byte
	err := p.db.QueryRowContext(ctx, "SELECT "+column+" FROM documents WHERE name = $1", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{Key: name}
		}
		return nil, fmt.Errorf("failed to load document %s: %w", name, err)
	}
	if data == nil {
		return nil, &ErrNotFound{Key: name}
	}
	return data, nil
}

func (p *PostgresDocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	return p.queryColumn(ctx, "data", name)
}

func (p *PostgresDocumentStore) LoadBackup(ctx context.Context, name string) ([]byte, error) {
	return p.queryColumn(ctx, "backup", name)
}

// Save upserts the row; the backup column receives the same bytes.
func (p *PostgresDocumentStore) Save(ctx context.Context, name string, data []byte) error {
	ctx, cancel := WithStorageTimeout(ctx, defaultPGTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
INSERT INTO documents (name, data, backup, updated_at)
VALUES ($1, $2, $2, NOW())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, backup = EXCLUDED.backup, updated_at = NOW()`,
		name, data)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}

func (p *PostgresDocumentStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := WithStorageTimeout(ctx, defaultPGTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, "DELETE FROM documents WHERE name = $1", name)
	return err
}

func (p *PostgresDocumentStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := WithStorageTimeout(ctx, defaultPGTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, "SELECT name FROM documents WHERE starts_with(name, $1) ORDER BY name", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (p *PostgresDocumentStore) Health(ctx context.Context) error {
	ctx, cancel := WithStorageTimeout(ctx, defaultPGTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *PostgresDocumentStore) Close() error {
	return p.db.Close()
}
