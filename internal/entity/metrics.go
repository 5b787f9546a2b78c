package entity

import "time"

const (
	// MetricsWindow is the length of the trailing window reported in LinkMetrics.Last7Days.
	MetricsWindow = 7 * 24 * time.Hour
	// RecentConnectionsLimit bounds LinkMetrics.RecentConnections.
	RecentConnectionsLimit = 10
)

// LinkMetrics is the engagement summary of one tracking link.
// All values are final and need no further aggregation.
type LinkMetrics struct {
	TotalConnections     int64
	TotalActiveListeners int64
	TotalTracksPlayed    int64
	TotalMinutesListened float64
	TotalSuperListeners  int64
	Last7Days            WindowMetrics
	RecentConnections    []ConnectionSummary
}

// WindowMetrics is the trailing-window slice of LinkMetrics.
type WindowMetrics struct {
	NewConnections  int64
	ActiveListeners int64
	TracksPlayed    int64
	SuperListeners  int64
}

// ConnectionSummary holds the display fields of a recent connection.
type ConnectionSummary struct {
	ID          int64
	ListenerID  string
	DisplayName *string
	CreatedAt   time.Time
}

// ZeroLinkMetrics returns metrics with every counter at zero and no recent connections.
func ZeroLinkMetrics() *LinkMetrics {
	return &LinkMetrics{
		RecentConnections: []ConnectionSummary{},
	}
}

// LinkOverview is one entry of the owner's dashboard.
type LinkOverview struct {
	Link    TrackingLink
	Clicks  int64
	Metrics LinkMetrics
}
