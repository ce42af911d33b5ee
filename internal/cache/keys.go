package cache

import "github.com/finderhq/influencer-finder/internal/influencer"

const (
	// keyPrefixRecord is the prefix for one influencer record hash.
	keyPrefixRecord = "influencer:rec:"
	// keyPrefixIndex is the prefix for a partition's handle index set.
	keyPrefixIndex = "influencer:idx:"
	// keyPrefixPlatforms is the prefix for a city's platform set.
	keyPrefixPlatforms = "influencer:platforms:"
)

// recordKey returns the Redis key for one influencer record. City and
// platform are assumed to be partition-normalized already; the handle is
// sanitized here so "New York"/"new york" searches land on one record.
func recordKey(city, platform, handle string) string {
	return keyPrefixRecord + city + ":" + platform + ":" + influencer.SanitizeHandle(handle)
}

// indexKey returns the key of the set holding a partition's sanitized handles.
func indexKey(city, platform string) string {
	return keyPrefixIndex + city + ":" + platform
}

// platformsKey returns the key of the set holding a city's known platforms.
func platformsKey(city string) string {
	return keyPrefixPlatforms + city
}
