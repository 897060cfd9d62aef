package krawl

import (
	"fmt"
	"math"
	"time"
)

// CompletionStats summarizes a finished run for the completion screen.
type CompletionStats struct {
	TotalTimeMinutes      int       `json:"total_time_minutes"`
	TotalDistanceMeters   float64   `json:"total_distance_meters"`
	StopsVisited          int       `json:"stops_visited"`
	TotalStops            int       `json:"total_stops"`
	CompletionDate        time.Time `json:"completion_date"`
	AvgTimePerStopMinutes int       `json:"average_time_per_stop_minutes"`
	AvgDistancePerStopM   float64   `json:"average_distance_per_stop_meters"`
}

func calculateCompletionStats(startedAt, endedAt time.Time, totalDistanceM float64, visited, total int) *CompletionStats {
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	minutes := int(math.Round(endedAt.Sub(startedAt).Minutes()))

	stats := &CompletionStats{
		TotalTimeMinutes:    minutes,
		TotalDistanceMeters: totalDistanceM,
		StopsVisited:        visited,
		TotalStops:          total,
		CompletionDate:      endedAt,
	}
	if visited > 0 {
		stats.AvgTimePerStopMinutes = int(math.Round(float64(minutes) / float64(visited)))
		stats.AvgDistancePerStopM = math.Round(totalDistanceM/float64(visited)*10) / 10
	}
	return stats
}

// FormatDuration renders minutes as "45m", "2h" or "1h 30m".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remaining := minutes % 60
	if remaining == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, remaining)
}

// FormatDistance renders meters as "350 m" or "1.2 km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
