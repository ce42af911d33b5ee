// Package cache implements the hierarchical influencer cache on Redis.
//
// Records are addressed by (city, platform, handle): one Redis hash per
// record, a per-partition set indexing the sanitized handles, and a
// per-city set enumerating the platforms seen for that city. Writes go
// through a MULTI/EXEC pipeline so a page of records lands atomically,
// and HSET gives field-level merge semantics: fields another writer set
// on a record survive a re-ingest that does not mention them.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/influencer"
)

// Store is the Redis-backed influencer cache.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}
}

// Upsert writes every record into the (city, platform) partition in one
// atomic batch. It returns false with no error when there is nothing to
// do (zero records, or a missing city/platform). A failed batch leaves
// the partition untouched.
func (s *Store) Upsert(ctx context.Context, city, platform string, records []influencer.Influencer) (bool, error) {
	if city == "" || platform == "" || len(records) == 0 {
		return false, nil
	}
	city = influencer.PartitionCity(city)
	platform = influencer.PartitionPlatform(platform)

	pipe := s.client.TxPipeline()
	for _, rec := range records {
		pipe.HSet(ctx, recordKey(city, platform, rec.Handle), recordFields(rec))
		pipe.SAdd(ctx, indexKey(city, platform), influencer.SanitizeHandle(rec.Handle))
	}
	pipe.SAdd(ctx, platformsKey(city), platform)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("cache upsert %s/%s: %w", city, platform, err)
	}

	s.logger.Debug("cache partition updated",
		zap.String("city", city),
		zap.String("platform", platform),
		zap.Int("records", len(records)),
	)
	return true, nil
}

// ReadPartition returns every record in the (city, platform) partition,
// in unspecified order. A partition that does not exist yields an empty
// slice, not an error.
func (s *Store) ReadPartition(ctx context.Context, city, platform string) ([]influencer.Influencer, error) {
	city = influencer.PartitionCity(city)
	platform = influencer.PartitionPlatform(platform)

	handles, err := s.client.SMembers(ctx, indexKey(city, platform)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache index %s/%s: %w", city, platform, err)
	}
	if len(handles) == 0 {
		return []influencer.Influencer{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(handles))
	for i, handle := range handles {
		cmds[i] = pipe.HGetAll(ctx, keyPrefixRecord+city+":"+platform+":"+handle)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache read %s/%s: %w", city, platform, err)
	}

	records := make([]influencer.Influencer, 0, len(handles))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			// Index entries can outlive their record hash; skip holes.
			continue
		}
		records = append(records, recordFromFields(fields))
	}
	return records, nil
}

// ListPlatforms enumerates the platforms cached under a city, sorted for
// stable output. An unknown city yields an empty slice.
func (s *Store) ListPlatforms(ctx context.Context, city string) ([]string, error) {
	city = influencer.PartitionCity(city)
	platforms, err := s.client.SMembers(ctx, platformsKey(city)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache platforms %s: %w", city, err)
	}
	sort.Strings(platforms)
	return platforms, nil
}

// recordFields flattens a record into the hash field map stored in Redis.
func recordFields(rec influencer.Influencer) map[string]any {
	return map[string]any{
		"id":             rec.ID,
		"handle":         rec.Handle,
		"platform":       rec.Platform,
		"followers":      strconv.FormatInt(rec.Followers, 10),
		"engagementRate": strconv.FormatFloat(rec.EngagementRate, 'f', -1, 64),
		"bio":            rec.Bio,
		"city":           rec.City,
		"country":        rec.Country,
		"category":       rec.Category,
	}
}

// recordFromFields rebuilds a record from a stored hash. Unparseable
// numeric fields come back as zero rather than failing the whole read.
func recordFromFields(fields map[string]string) influencer.Influencer {
	followers, _ := strconv.ParseInt(fields["followers"], 10, 64)
	engagement, _ := strconv.ParseFloat(fields["engagementRate"], 64)
	return influencer.Influencer{
		ID:             fields["id"],
		Handle:         fields["handle"],
		Platform:       fields["platform"],
		Followers:      followers,
		EngagementRate: engagement,
		Bio:            fields["bio"],
		City:           fields["city"],
		Country:        fields["country"],
		Category:       fields["category"],
	}
}
