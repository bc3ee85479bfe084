// Package taxonomy resolves campaign/adset/ad names to entity IDs using
// a locally cached copy of the store's ad-account taxonomy.
package taxonomy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
)

// Resolver resolves UTM names against the taxonomy index, filling only
// the IDs still missing in known. Resolution is best-effort: a stale,
// partial or unreachable index leaves fields unresolved, never errors.
type Resolver interface {
	ResolveEntityIDsFromUTMs(ctx context.Context, storeID, utmCampaign, utmMedium, utmContent string, known domain.EntityIDs) domain.EntityIDs
}

// Taxonomy levels. Meta URL tagging conventionally carries the campaign
// name in utm_campaign, the ad set name in utm_medium and the ad name in
// utm_content.
const (
	levelCampaigns = "campaigns"
	levelAdSets    = "adsets"
	levelAds       = "ads"
)

// Config holds Redis connection configuration for the index.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// Index is a Redis-backed taxonomy cache. Names are stored per store and
// level in hashes mapping normalized name to entity ID, refreshed by the
// ad-platform sync outside this engine and expired by TTL.
type Index struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewIndex creates a Redis-backed taxonomy index.
func NewIndex(cfg Config, log *zap.Logger) (*Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	return &Index{client: client, ttl: ttl, log: log}, nil
}

func indexKey(storeID, level string) string {
	return fmt.Sprintf("taxonomy:%s:%s", storeID, level)
}

// NormalizeName canonicalizes an entity name for lookup: trimmed,
// lowercased, runs of whitespace collapsed to single underscores. URL
// tagging tools apply the same folding when building utm values.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

// Put stores one name-to-ID mapping and refreshes the level's TTL.
func (i *Index) Put(ctx context.Context, storeID, level, name, entityID string) error {
	key := indexKey(storeID, level)
	if err := i.client.HSet(ctx, key, NormalizeName(name), entityID).Err(); err != nil {
		return fmt.Errorf("failed to store taxonomy entry: %w", err)
	}
	if err := i.client.Expire(ctx, key, i.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set taxonomy ttl: %w", err)
	}
	return nil
}

// ResolveEntityIDsFromUTMs fills the missing entity IDs from utm names.
// Already-known IDs are never overwritten; lookup misses and Redis
// failures leave fields empty.
func (i *Index) ResolveEntityIDsFromUTMs(ctx context.Context, storeID, utmCampaign, utmMedium, utmContent string, known domain.EntityIDs) domain.EntityIDs {
	resolved := known

	if resolved.CampaignID == "" && utmCampaign != "" {
		resolved.CampaignID = i.lookup(ctx, storeID, levelCampaigns, utmCampaign)
	}
	if resolved.AdSetID == "" && utmMedium != "" {
		resolved.AdSetID = i.lookup(ctx, storeID, levelAdSets, utmMedium)
	}
	if resolved.AdID == "" && utmContent != "" {
		resolved.AdID = i.lookup(ctx, storeID, levelAds, utmContent)
	}

	return resolved
}

func (i *Index) lookup(ctx context.Context, storeID, level, name string) string {
	val, err := i.client.HGet(ctx, indexKey(storeID, level), NormalizeName(name)).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		i.log.Warn("Taxonomy lookup failed",
			zap.Error(err),
			zap.String("store_id", storeID),
			zap.String("level", level))
		return ""
	}
	return val
}

// Ping checks the Redis connection.
func (i *Index) Ping(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (i *Index) Close() error {
	return i.client.Close()
}
