package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
)

// Storage interface defines storage operations
type Storage interface {
	// History operations. Turns are ordered oldest first.
	GetHistory(ctx context.Context, userID int64) ([]models.HistoryTurn, error)
	AppendHistory(ctx context.Context, userID int64, turn models.HistoryTurn, capacity int) error
	AttachReply(ctx context.Context, userID int64, reply string) error
	ClearHistory(ctx context.Context, userID int64) error

	// Profile operations. A missing profile is returned as nil, nil.
	GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error

	// Persona state per scope; scope 0 holds the global selection
	GetPersona(ctx context.Context, scope int64) (string, error)
	SetPersona(ctx context.Context, scope int64, name string) error
	ListPersonas(ctx context.Context) (map[int64]string, error)

	// User stats operations
	GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	IncrementUserStats(ctx context.Context, userID int64, replied bool) error

	// Cleanup drops expired entries for backends that do not expire on their own
	Cleanup(ctx context.Context) error
	Close() error
}

// Manager manages different storage backends
type Manager struct {
	storage Storage
	records RecordStore
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, metrics *middleware.Metrics, logger *logrus.Logger) (*Manager, error) {
	manager := &Manager{
		metrics: metrics,
		logger:  logger,
	}

	switch cfg.Storage.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		manager.storage = redisStorage
	case "memory":
		manager.storage = NewMemoryStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Storage.Records.Enabled {
		records, err := NewSQLiteRecords(cfg.Storage.Records.Path, logger)
		if err != nil {
			_ = manager.storage.Close()
			return nil, err
		}
		manager.records = records
	}

	return manager, nil
}

// NewManagerWith wraps an existing backend
func NewManagerWith(storage Storage, records RecordStore, metrics *middleware.Metrics, logger *logrus.Logger) *Manager {
	return &Manager{storage: storage, records: records, metrics: metrics, logger: logger}
}

func (m *Manager) observe(op string, start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordStorageOperation(op, status, time.Since(start))
}

func (m *Manager) GetHistory(ctx context.Context, userID int64) (turns []models.HistoryTurn, err error) {
	defer func(start time.Time) { m.observe("get_history", start, err) }(time.Now())
	return m.storage.GetHistory(ctx, userID)
}

func (m *Manager) AppendHistory(ctx context.Context, userID int64, turn models.HistoryTurn, capacity int) (err error) {
	defer func(start time.Time) { m.observe("append_history", start, err) }(time.Now())
	return m.storage.AppendHistory(ctx, userID, turn, capacity)
}

func (m *Manager) AttachReply(ctx context.Context, userID int64, reply string) (err error) {
	defer func(start time.Time) { m.observe("attach_reply", start, err) }(time.Now())
	return m.storage.AttachReply(ctx, userID, reply)
}

func (m *Manager) ClearHistory(ctx context.Context, userID int64) (err error) {
	defer func(start time.Time) { m.observe("clear_history", start, err) }(time.Now())
	return m.storage.ClearHistory(ctx, userID)
}

func (m *Manager) GetProfile(ctx context.Context, userID int64) (p *models.UserProfile, err error) {
	defer func(start time.Time) { m.observe("get_profile", start, err) }(time.Now())
	return m.storage.GetProfile(ctx, userID)
}

func (m *Manager) SaveProfile(ctx context.Context, profile *models.UserProfile) (err error) {
	defer func(start time.Time) { m.observe("save_profile", start, err) }(time.Now())
	return m.storage.SaveProfile(ctx, profile)
}

func (m *Manager) GetPersona(ctx context.Context, scope int64) (string, error) {
	return m.storage.GetPersona(ctx, scope)
}

func (m *Manager) SetPersona(ctx context.Context, scope int64, name string) (err error) {
	defer func(start time.Time) { m.observe("set_persona", start, err) }(time.Now())
	return m.storage.SetPersona(ctx, scope, name)
}

func (m *Manager) ListPersonas(ctx context.Context) (map[int64]string, error) {
	return m.storage.ListPersonas(ctx)
}

func (m *Manager) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	return m.storage.GetUserStats(ctx, userID)
}

func (m *Manager) IncrementUserStats(ctx context.Context, userID int64, replied bool) (err error) {
	defer func(start time.Time) { m.observe("increment_stats", start, err) }(time.Now())
	return m.storage.IncrementUserStats(ctx, userID, replied)
}

// Record persists a handled interaction when a record store is configured
func (m *Manager) Record(ctx context.Context, in models.Interaction) (err error) {
	if m.records == nil {
		return nil
	}
	defer func(start time.Time) { m.observe("record_interaction", start, err) }(time.Now())
	return m.records.Record(ctx, in)
}

// RecentInteractions lists the latest records of a chat, newest first
func (m *Manager) RecentInteractions(ctx context.Context, chatID int64, limit int) ([]models.Interaction, error) {
	if m.records == nil {
		return nil, nil
	}
	return m.records.Recent(ctx, chatID, limit)
}

// Cleanup runs backend and record-store maintenance
func (m *Manager) Cleanup(ctx context.Context) error {
	if err := m.storage.Cleanup(ctx); err != nil {
		return err
	}
	if m.records != nil {
		return m.records.Maintain(ctx)
	}
	return nil
}

// Close releases the backend and the record store
func (m *Manager) Close() error {
	var firstErr error
	if m.records != nil {
		firstErr = m.records.Close()
	}
	if err := m.storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func historyKey(userID int64) string { return fmt.Sprintf("history:%d", userID) }
func profileKey(userID int64) string { return fmt.Sprintf("profile:%d", userID) }
func personaKey(scope int64) string  { return fmt.Sprintf("persona:%d", scope) }
func statsKey(userID int64) string   { return fmt.Sprintf("user_stats:%d", userID) }
