package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
)

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, cfg.Storage.TTL, logger), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl, logger: logger}
}

func (r *RedisStorage) GetHistory(ctx context.Context, userID int64) ([]models.HistoryTurn, error) {
	raw, err := r.client.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]models.HistoryTurn, 0, len(raw))
	for _, item := range raw {
		var turn models.HistoryTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Warn("Skipping corrupt history turn")
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *RedisStorage) AppendHistory(ctx context.Context, userID int64, turn models.HistoryTurn, capacity int) error {
	if capacity < 1 {
		capacity = 1
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := historyKey(userID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-capacity), -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *RedisStorage) AttachReply(ctx context.Context, userID int64, reply string) error {
	key := historyKey(userID)
	last, err := r.client.LIndex(ctx, key, -1).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	var turn models.HistoryTurn
	if err := json.Unmarshal([]byte(last), &turn); err != nil {
		return err
	}
	if turn.Reply != "" {
		return nil
	}
	turn.Reply = reply
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return r.client.LSet(ctx, key, -1, data).Err()
}

func (r *RedisStorage) ClearHistory(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, historyKey(userID)).Err()
}

func (r *RedisStorage) GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	data, err := r.client.Get(ctx, profileKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profile models.UserProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *RedisStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, profileKey(profile.UserID), data, r.ttl).Err()
}

func (r *RedisStorage) GetPersona(ctx context.Context, scope int64) (string, error) {
	name, err := r.client.Get(ctx, personaKey(scope)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return name, err
}

func (r *RedisStorage) SetPersona(ctx context.Context, scope int64, name string) error {
	return r.client.Set(ctx, personaKey(scope), name, 0).Err() // No expiration for persona selection
}

func (r *RedisStorage) ListPersonas(ctx context.Context) (map[int64]string, error) {
	out := make(map[int64]string)
	iter := r.client.Scan(ctx, 0, "persona:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		scope, err := strconv.ParseInt(strings.TrimPrefix(key, "persona:"), 10, 64)
		if err != nil {
			continue
		}
		name, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		out[scope] = name
	}
	return out, iter.Err()
}

func (r *RedisStorage) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	fields, err := r.client.HGetAll(ctx, statsKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	stats := &models.UserStats{UserID: userID}
	stats.TotalMessages, _ = strconv.Atoi(fields["total_messages"])
	stats.TotalReplies, _ = strconv.Atoi(fields["total_replies"])
	if ts, err := strconv.ParseInt(fields["last_active"], 10, 64); err == nil {
		stats.LastActive = time.Unix(ts, 0).UTC()
	}
	return stats, nil
}

func (r *RedisStorage) IncrementUserStats(ctx context.Context, userID int64, replied bool) error {
	key := statsKey(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "total_messages", 1)
		if replied {
			pipe.HIncrBy(ctx, key, "total_replies", 1)
		}
		pipe.HSet(ctx, key, "last_active", time.Now().Unix())
		return nil
	})
	return err
}

func (r *RedisStorage) Cleanup(ctx context.Context) error {
	// Redis handles expiration automatically
	return nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
