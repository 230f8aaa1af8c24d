package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/newsdesk/analytics-back/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisReadGuardConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Window    time.Duration
}

// RedisReadGuard suppresses repeat reads by the same identified reader across API
// instances by claiming a short-lived key before the wrapped repository records the read.
type RedisReadGuard struct {
	AnalyticsRepository

	client    *redis.Client
	keyPrefix string
	window    time.Duration
	logger    *log.Logger
}

func NewRedisReadGuard(
	ctx context.Context,
	next AnalyticsRepository,
	cfg RedisReadGuardConfig,
	logger *log.Logger,
) (*RedisReadGuard, error) {
	if next == nil {
		return nil, errors.New("wrapped repository is required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "analytics:read"
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultReadDedupWindow
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisReadGuard{
		AnalyticsRepository: next,
		client:              client,
		keyPrefix:           cfg.KeyPrefix,
		window:              cfg.Window,
		logger:              logger,
	}, nil
}

func (g *RedisReadGuard) Close() error {
	return g.client.Close()
}

// RecordReadEvent claims the reader key first. Anonymous reads skip the guard. If Redis is
// unavailable the wrapped repository's own suppression policy decides.
func (g *RedisReadGuard) RecordReadEvent(
	ctx context.Context,
	articleID string,
	readerID *string,
) (*domain.ReadEvent, error) {
	if readerID == nil {
		return g.AnalyticsRepository.RecordReadEvent(ctx, articleID, nil)
	}

	key := g.readerKey(articleID, *readerID)
	claimed, err := g.client.SetNX(ctx, key, 1, g.window).Result()
	if err != nil {
		if g.logger != nil {
			g.logger.Printf("read guard unavailable article_id=%s err=%v", articleID, err)
		}
		return g.AnalyticsRepository.RecordReadEvent(ctx, articleID, readerID)
	}
	if !claimed {
		return nil, nil
	}

	event, err := g.AnalyticsRepository.RecordReadEvent(ctx, articleID, readerID)
	if err != nil {
		// The read was never stored; release the claim so a retry inside the window counts.
		if delErr := g.client.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil && g.logger != nil {
			g.logger.Printf("read guard release failed article_id=%s err=%v", articleID, delErr)
		}
		return nil, err
	}
	return event, nil
}

func (g *RedisReadGuard) readerKey(articleID, readerID string) string {
	return g.keyPrefix + ":" + articleID + ":" + readerID
}
