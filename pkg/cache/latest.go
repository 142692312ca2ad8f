package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"liyu1981.xyz/crib-monitor-service/pkg/iot"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

const keyPrefix = "crib:latest:"

func deviceKey(deviceID string) string { return keyPrefix + "device:" + deviceID }

func allKey() string { return keyPrefix + "all" }

// LatestCache keeps the newest reading per device and overall in Redis. Each key is a
// sorted set scored by reading time and trimmed to its top member, so a late write of
// an older reading never replaces a newer one.
type LatestCache struct{ rdb *redis.Client }

func NewLatestCache(rdb *redis.Client) *LatestCache { return &LatestCache{rdb: rdb} }

func (c *LatestCache) Put(ctx context.Context, reading models.Reading) error {
	b, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	member := redis.Z{Score: float64(reading.Timestamp.UnixMilli()), Member: string(b)}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range []string{deviceKey(reading.DeviceID), allKey()} {
			pipe.ZAdd(ctx, key, member)
			pipe.ZRemRangeByRank(ctx, key, 0, -2)
			pipe.Expire(ctx, key, models.RetentionWindow)
		}
		return nil
	})
	return err
}

// Latest returns iot.ErrNotFound when nothing is cached for deviceID ("" for any device).
func (c *LatestCache) Latest(ctx context.Context, deviceID string) (*models.Reading, error) {
	key := allKey()
	if deviceID != "" {
		key = deviceKey(deviceID)
	}

	members, err := c.rdb.ZRevRange(ctx, key, 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, iot.ErrNotFound
	}

	var reading models.Reading
	if err := json.Unmarshal([]byte(members[0]), &reading); err != nil {
		return nil, fmt.Errorf("decode cached reading: %w", err)
	}
	return &reading, nil
}

func (c *LatestCache) Evict(ctx context.Context, deviceID string) error {
	return c.rdb.Del(ctx, deviceKey(deviceID), allKey()).Err()
}
