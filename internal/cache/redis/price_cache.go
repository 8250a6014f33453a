package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wattsim/wattsim/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each product's
// clearing price is stored as a hash at key "price:{marketID}:{productKey}"
// with fields "price" and "ts" (Unix nanosecond timestamp). Entries expire
// after priceTTL so stale windows age out on their own.
type PriceCache struct {
	rdb *redis.Client
}

const priceTTL = 7 * 24 * time.Hour

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID, productKey string) string {
	return "price:" + marketID + ":" + productKey
}

// SetPrice stores the latest clearing price and timestamp for a product.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID, productKey string, price float64, ts time.Time) error {
	key := priceKey(marketID, productKey)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", marketID, productKey, err)
	}
	return nil
}

// GetPrice retrieves the latest clearing price and timestamp for a product.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID, productKey string) (float64, time.Time, error) {
	key := priceKey(marketID, productKey)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s/%s: %w", marketID, productKey, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s/%s: %w", marketID, productKey, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s/%s: %w", marketID, productKey, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
