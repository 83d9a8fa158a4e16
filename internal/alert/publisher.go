package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sup/internal/domain"
)

// RedisFeed keeps the latest low-stock alerts of every owner in a capped
// Redis list, newest first.
type RedisFeed struct {
	rdb  *redis.Client
	size int
}

func NewRedisFeed(rdb *redis.Client, size int) *RedisFeed {
	return &RedisFeed{rdb: rdb, size: size}
}

func FeedKey(ownerID int) string {
	return fmt.Sprintf("stock:alerts:%d", ownerID)
}

func (f *RedisFeed) Publish(ctx context.Context, alert domain.StockAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding stock alert: %w", err)
	}

	key := FeedKey(alert.OwnerID)
	pipe := f.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(f.size-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing stock alert: %w", err)
	}
	return nil
}

func (f *RedisFeed) Recent(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error) {
	raw, err := f.rdb.LRange(ctx, FeedKey(ownerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading stock alerts: %w", err)
	}

	alerts := make([]domain.StockAlert, 0, len(raw))
	for _, item := range raw {
		var a domain.StockAlert
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("decoding stock alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// NopFeed is used when Redis is disabled.
type NopFeed struct{}

func (NopFeed) Publish(context.Context, domain.StockAlert) error { return nil }

func (NopFeed) Recent(context.Context, int, int) ([]domain.StockAlert, error) {
	return []domain.StockAlert{}, nil
}
