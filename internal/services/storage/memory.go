package storage

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements storage using in-memory cache
type MemoryStorage struct {
	mu        sync.Mutex
	histories *cache.Cache
	profiles  *cache.Cache
	personas  *cache.Cache
	userStats *cache.Cache
	logger    *logrus.Logger
}

func NewMemoryStorage(cfg *config.Config, logger *logrus.Logger) *MemoryStorage {
	ttl := cfg.Storage.TTL
	if ttl <= 0 {
		ttl = cfg.Storage.Memory.DefaultExpiration
	}
	return &MemoryStorage{
		histories: cache.New(ttl, cfg.Storage.Memory.CleanupInterval),
		profiles:  cache.New(ttl, cfg.Storage.Memory.CleanupInterval),
		personas:  cache.New(cache.NoExpiration, cache.NoExpiration),
		userStats: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger:    logger,
	}
}

func (m *MemoryStorage) GetHistory(ctx context.Context, userID int64) ([]models.HistoryTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if val, found := m.histories.Get(historyKey(userID)); found {
		turns := val.([]models.HistoryTurn)
		return append([]models.HistoryTurn(nil), turns...), nil
	}
	return nil, nil
}

func (m *MemoryStorage) AppendHistory(ctx context.Context, userID int64, turn models.HistoryTurn, capacity int) error {
	if capacity < 1 {
		capacity = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := historyKey(userID)
	var turns []models.HistoryTurn
	if val, found := m.histories.Get(key); found {
		turns = val.([]models.HistoryTurn)
	}
	next := make([]models.HistoryTurn, 0, capacity)
	if over := len(turns) + 1 - capacity; over > 0 {
		turns = turns[over:]
	}
	next = append(next, turns...)
	next = append(next, turn)
	m.histories.SetDefault(key, next)
	return nil
}

func (m *MemoryStorage) AttachReply(ctx context.Context, userID int64, reply string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := historyKey(userID)
	val, found := m.histories.Get(key)
	if !found {
		return nil
	}
	turns := append([]models.HistoryTurn(nil), val.([]models.HistoryTurn)...)
	if len(turns) == 0 || turns[len(turns)-1].Reply != "" {
		return nil
	}
	turns[len(turns)-1].Reply = reply
	m.histories.SetDefault(key, turns)
	return nil
}

func (m *MemoryStorage) ClearHistory(ctx context.Context, userID int64) error {
	m.histories.Delete(historyKey(userID))
	return nil
}

func (m *MemoryStorage) GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	if val, found := m.profiles.Get(profileKey(userID)); found {
		p := val.(models.UserProfile)
		p.Interests = append([]string(nil), p.Interests...)
		return &p, nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	p := *profile
	p.Interests = append([]string(nil), profile.Interests...)
	m.profiles.SetDefault(profileKey(profile.UserID), p)
	return nil
}

func (m *MemoryStorage) GetPersona(ctx context.Context, scope int64) (string, error) {
	if val, found := m.personas.Get(personaKey(scope)); found {
		return val.(string), nil
	}
	return "", nil
}

func (m *MemoryStorage) SetPersona(ctx context.Context, scope int64, name string) error {
	m.personas.Set(personaKey(scope), name, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) ListPersonas(ctx context.Context) (map[int64]string, error) {
	out := make(map[int64]string)
	for key, item := range m.personas.Items() {
		scope, err := strconv.ParseInt(strings.TrimPrefix(key, "persona:"), 10, 64)
		if err != nil {
			continue
		}
		out[scope] = item.Object.(string)
	}
	return out, nil
}

func (m *MemoryStorage) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	if val, found := m.userStats.Get(statsKey(userID)); found {
		stats := val.(models.UserStats)
		return &stats, nil
	}
	return &models.UserStats{UserID: userID}, nil
}

func (m *MemoryStorage) IncrementUserStats(ctx context.Context, userID int64, replied bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, _ := m.GetUserStats(ctx, userID)
	stats.TotalMessages++
	if replied {
		stats.TotalReplies++
	}
	stats.LastActive = time.Now().UTC()
	m.userStats.Set(statsKey(userID), *stats, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) Cleanup(ctx context.Context) error {
	m.histories.DeleteExpired()
	m.profiles.DeleteExpired()
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
