package cache

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/gallery-service/internal/utils/response"
)

// CacheStats represents dedup cache statistics
type CacheStats struct {
	RedisConnected   bool     `json:"redis_connected"`
	FingerprintCount int      `json:"fingerprint_count"`
	FingerprintKeys  []string `json:"fingerprint_keys_sample"`
	KeyCount         int64    `json:"total_keys"`
}

const sampleSize = 10

// CollectStats counts cached fingerprints with SCAN so Redis is never blocked
func CollectStats(ctx context.Context, redisClient *redis.Client) CacheStats {
	stats := CacheStats{RedisConnected: true}

	if err := redisClient.Ping(ctx).Err(); err != nil {
		stats.RedisConnected = false
		return stats
	}

	iter := redisClient.Scan(ctx, 0, FingerprintPattern, 100).Iterator()
	for iter.Next(ctx) {
		stats.FingerprintCount++
		if len(stats.FingerprintKeys) < sampleSize {
			stats.FingerprintKeys = append(stats.FingerprintKeys, iter.Val())
		}
	}

	if size, err := redisClient.DBSize(ctx).Result(); err == nil {
		stats.KeyCount = size
	}

	return stats
}

// GetCacheStats returns dedup cache statistics
// @Summary Dedup cache statistics
// @Description Report Redis connectivity and the number of cached fingerprints
// @Tags cache
// @Produce json
// @Success 200 {object} response.Response "Cache stats retrieved"
// @Router /cache/stats [get]
func GetCacheStats(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stats := CollectStats(ctx, redisClient)
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
	}
}
