package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/andmosc/stockbook/config"
	"github.com/andmosc/stockbook/internal/model"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

var ErrNotFound = errors.New("session not found")

type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func (s *RedisSession) Set(ctx context.Context, sessionID string, session model.Session) error {
	sessionJson, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.redis.Set(ctx, sessionKeyPrefix+sessionID, sessionJson, s.cfg.SessionExpiration).Err()
}

func (s *RedisSession) Get(ctx context.Context, sessionID string) (model.Session, error) {
	res, err := s.redis.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, err
	}

	session := model.Session{}
	if err := json.Unmarshal([]byte(res), &session); err != nil {
		return model.Session{}, err
	}

	return session, nil
}

func (s *RedisSession) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
