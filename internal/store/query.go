package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// EarthRadiusKm is the mean Earth radius used for distance queries.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// captureBounds converts a YYYY-MM-DD day range into half-open bounds over
// the EXIF text layout, which sorts lexically in time order.
func captureBounds(start, end string) (lo, hi string, err error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return "", "", fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return "", "", fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return "", "", fmt.Errorf("end date %s is before start date %s", end, start)
	}
	const layout = "2006:01:02 15:04:05"
	return s.Format(layout), e.AddDate(0, 0, 1).Format(layout), nil
}

type ranked struct {
	rec  *ImageRecord
	dist float64
}

// filterNear keeps records with GPS within radiusKm, nearest first.
func filterNear(recs []*ImageRecord, lat, lon, radiusKm float64) []*ImageRecord {
	var hits []ranked
	for _, r := range recs {
		if r.GPS == nil {
			continue
		}
		d := HaversineKm(lat, lon, r.GPS.Latitude, r.GPS.Longitude)
		if d <= radiusKm {
			hits = append(hits, ranked{rec: r, dist: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]*ImageRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}

// summarize groups CreatedAt timestamps by UTC day, newest day first.
func summarize(createdAt []int64) []DaySummary {
	counts := make(map[string]int)
	for _, ts := range createdAt {
		counts[time.Unix(0, ts).UTC().Format(time.DateOnly)]++
	}
	out := make([]DaySummary, 0, len(counts))
	for d, n := range counts {
		out = append(out, DaySummary{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Date, out[j].Date) > 0 })
	return out
}
