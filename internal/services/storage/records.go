package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/migrations"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// RecordStore persists handled interactions for dashboards
type RecordStore interface {
	Record(ctx context.Context, in models.Interaction) error
	Recent(ctx context.Context, chatID int64, limit int) ([]models.Interaction, error)
	Maintain(ctx context.Context) error
	Close() error
}

type interactionRow struct {
	ID        string `db:"id"`
	ChatID    int64  `db:"chat_id"`
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	Text      string `db:"text"`
	Reply     string `db:"reply"`
	Intent    string `db:"intent"`
	Persona   string `db:"persona"`
	State     string `db:"state"`
	LatencyMS int64  `db:"latency_ms"`
	CreatedAt int64  `db:"created_at"`
}

func toRow(in models.Interaction) interactionRow {
	return interactionRow{
		ID:        in.ID,
		ChatID:    in.ChatID,
		UserID:    in.UserID,
		Username:  in.Username,
		Text:      in.Text,
		Reply:     in.Reply,
		Intent:    string(in.Intent),
		Persona:   in.Persona,
		State:     in.State,
		LatencyMS: in.Latency.Milliseconds(),
		CreatedAt: in.CreatedAt.UnixMilli(),
	}
}

func (r interactionRow) model() models.Interaction {
	return models.Interaction{
		ID:        r.ID,
		ChatID:    r.ChatID,
		UserID:    r.UserID,
		Username:  r.Username,
		Text:      r.Text,
		Reply:     r.Reply,
		Intent:    models.IntentKind(r.Intent),
		Persona:   r.Persona,
		State:     r.State,
		Latency:   time.Duration(r.LatencyMS) * time.Millisecond,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// SQLiteRecords stores interactions in a SQLite file
type SQLiteRecords struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteRecords opens the database at path and applies the embedded migrations
func NewSQLiteRecords(path string, logger *logrus.Logger) (*SQLiteRecords, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create records directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to records database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyMigrations(db.DB); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close records database after migration failure")
		}
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.WithField("path", path).Info("Interaction records ready")
	return &SQLiteRecords{db: db, logger: logger}, nil
}

func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create embed source driver: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *SQLiteRecords) Record(ctx context.Context, in models.Interaction) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO interactions (id, chat_id, user_id, username, text, reply, intent, persona, state, latency_ms, created_at)
		VALUES (:id, :chat_id, :user_id, :username, :text, :reply, :intent, :persona, :state, :latency_ms, :created_at)`,
		toRow(in))
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

func (s *SQLiteRecords) Recent(ctx context.Context, chatID int64, limit int) ([]models.Interaction, error) {
	var rows []interactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, chat_id, user_id, username, text, reply, intent, persona, state, latency_ms, created_at
		FROM interactions WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	out := make([]models.Interaction, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// Maintain refreshes planner statistics
func (s *SQLiteRecords) Maintain(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize records database: %w", err)
	}
	return nil
}

func (s *SQLiteRecords) Close() error {
	return s.db.Close()
}
