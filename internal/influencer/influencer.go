// Package influencer defines the core types shared across the discovery
// client, the cache store, and the search orchestrator.
package influencer

import (
	"regexp"
	"strings"
)

// Sentinel filter values meaning "do not filter on this dimension".
// They match what the search form sends verbatim.
const (
	AnyCity     = "Any City"
	AnyPlatform = "any"
)

// Influencer is the canonical record for one external creator profile.
// It is built by normalizing a single element of a discovery page and is
// what gets persisted into the cache partition for the search filters
// that produced it.
type Influencer struct {
	// ID is stable across refreshes: the external handle link when the
	// API provides one, otherwise the platform/handle composite.
	ID             string  `json:"id"`
	Handle         string  `json:"handle"`
	Platform       string  `json:"platform"`
	Followers      int64   `json:"followers"`
	EngagementRate float64 `json:"engagementRate"`
	Bio            string  `json:"bio"`
	City           string  `json:"city"`
	Country        string  `json:"country"`
	Category       string  `json:"category"`
}

// Filter is the transient search input. Zero values and the Any*
// sentinels both mean "unfiltered" for their dimension.
type Filter struct {
	City     string
	Category string
	Platform string
	Bio      string
	Page     int
}

// HasCity reports whether the filter names a concrete city.
func (f Filter) HasCity() bool {
	return f.City != "" && f.City != AnyCity
}

// HasPlatform reports whether the filter names a concrete platform.
func (f Filter) HasPlatform() bool {
	return f.Platform != "" && f.Platform != AnyPlatform
}

// Page is one normalized page of discovery results.
type Page struct {
	Records    []Influencer
	TotalPages int
	Number     int
}

var handleSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeHandle converts a handle into a path-safe cache sub-key.
// Every character outside [A-Za-z0-9_] is replaced with an underscore.
func SanitizeHandle(handle string) string {
	return handleSanitizer.ReplaceAllString(handle, "_")
}

// PartitionCity normalizes a city name for use as a partition key.
func PartitionCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// PartitionPlatform normalizes a platform name for use as a partition key.
func PartitionPlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// Dedupe collapses records sharing an ID down to one, keeping the
// record from the LAST occurrence while preserving first-seen order.
// Records with an empty ID are kept as-is; there is nothing to key on.
func Dedupe(records []Influencer) []Influencer {
	if len(records) < 2 {
		return records
	}
	out := make([]Influencer, 0, len(records))
	index := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			out = append(out, rec)
			continue
		}
		if i, seen := index[rec.ID]; seen {
			out[i] = rec
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}
