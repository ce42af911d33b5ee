// Package export renders influencer partitions as downloadable reports.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/finderhq/influencer-finder/internal/influencer"
)

var csvHeader = []string{
	"id", "handle", "platform", "followers", "engagement_rate",
	"bio", "city", "country", "category",
}

// CSV renders the records as a CSV document with a header row.
func CSV(records []influencer.Influencer) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.Handle,
			rec.Platform,
			strconv.FormatInt(rec.Followers, 10),
			strconv.FormatFloat(rec.EngagementRate, 'f', -1, 64),
			rec.Bio,
			rec.City,
			rec.Country,
			rec.Category,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectName builds the archive path for an exported partition.
func ObjectName(city, platform string, unixSeconds int64) string {
	return fmt.Sprintf("exports/%s/%s/%d.csv",
		influencer.PartitionCity(city), influencer.PartitionPlatform(platform), unixSeconds)
}
