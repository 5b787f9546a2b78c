package http

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// createLinkRequest is the body of a tracking link creation request.
type createLinkRequest struct {
	PlaylistURL string  `json:"playlist_url" validate:"required,max=512"`
	Title       *string `json:"title,omitempty" validate:"omitempty,max=200"`
}

type playlistResponse struct {
	ID         int64   `json:"id"`
	SpotifyID  string  `json:"spotify_id"`
	Name       string  `json:"name"`
	OwnerName  string  `json:"owner_name"`
	ImageURL   *string `json:"image_url"`
	SnapshotID *string `json:"snapshot_id"`
	URL        string  `json:"url"`
}

func toPlaylistResponse(p *entity.Playlist) playlistResponse {
	return playlistResponse{
		ID:         p.ID,
		SpotifyID:  p.SpotifyID,
		Name:       p.Name,
		OwnerName:  p.OwnerName,
		ImageURL:   p.ImageURL,
		SnapshotID: p.SnapshotID,
		URL:        p.WebURL(),
	}
}

type linkResponse struct {
	ID        int64            `json:"id"`
	Slug      string           `json:"slug"`
	Title     *string          `json:"title"`
	IsActive  bool             `json:"is_active"`
	CreatedAt time.Time        `json:"created_at"`
	Playlist  playlistResponse `json:"playlist"`
}

func toLinkResponse(l *entity.TrackingLink) linkResponse {
	return linkResponse{
		ID:        l.ID,
		Slug:      l.Slug,
		Title:     l.Title,
		IsActive:  l.IsActive,
		CreatedAt: l.CreatedAt,
		Playlist:  toPlaylistResponse(&l.Playlist),
	}
}

type createLinkResponse struct {
	Link linkResponse `json:"link"`
	URL  string       `json:"url"`
}

type windowMetricsResponse struct {
	NewConnections  int64 `json:"new_connections"`
	ActiveListeners int64 `json:"active_listeners"`
	TracksPlayed    int64 `json:"tracks_played"`
	SuperListeners  int64 `json:"super_listeners"`
}

type connectionResponse struct {
	ID          int64     `json:"id"`
	ListenerID  string    `json:"listener_id"`
	DisplayName *string   `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type metricsResponse struct {
	TotalConnections     int64                 `json:"total_connections"`
	TotalActiveListeners int64                 `json:"total_active_listeners"`
	TotalTracksPlayed    int64                 `json:"total_tracks_played"`
	TotalMinutesListened float64               `json:"total_minutes_listened"`
	TotalSuperListeners  int64                 `json:"total_super_listeners"`
	Last7Days            windowMetricsResponse `json:"last_7_days"`
	RecentConnections    []connectionResponse  `json:"recent_connections"`
}

func toMetricsResponse(m *entity.LinkMetrics) metricsResponse {
	recent := make([]connectionResponse, 0, len(m.RecentConnections))
	for _, c := range m.RecentConnections {
		recent = append(recent, connectionResponse(c))
	}

	return metricsResponse{
		TotalConnections:     m.TotalConnections,
		TotalActiveListeners: m.TotalActiveListeners,
		TotalTracksPlayed:    m.TotalTracksPlayed,
		TotalMinutesListened: m.TotalMinutesListened,
		TotalSuperListeners:  m.TotalSuperListeners,
		Last7Days:            windowMetricsResponse(m.Last7Days),
		RecentConnections:    recent,
	}
}

type overviewResponse struct {
	Link    linkResponse    `json:"link"`
	URL     string          `json:"url"`
	Clicks  int64           `json:"clicks"`
	Metrics metricsResponse `json:"metrics"`
}

type previewResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	OwnerName  string  `json:"owner_name"`
	ImageURL   *string `json:"image_url"`
	TrackCount int     `json:"track_count"`
	URL        string  `json:"url"`
	SnapshotID *string `json:"snapshot_id,omitempty"`
	Limited    bool    `json:"limited"`
	Note       string  `json:"note,omitempty"`
}

func toPreviewResponse(p *entity.PlaylistPreview) previewResponse {
	resp := previewResponse{
		ID:         p.ID,
		Name:       p.Name,
		OwnerName:  p.OwnerName,
		ImageURL:   p.ImageURL,
		TrackCount: p.TrackCount,
		URL:        p.URL,
		SnapshotID: p.SnapshotID,
		Limited:    p.Limited,
	}

	if p.Limited {
		resp.Note = "preview limited, playlist details could not be fetched"
	}

	return resp
}

type healthChecks struct {
	Database string `json:"database"`
	Config   string `json:"config"`
}

type healthResponse struct {
	Status        string       `json:"status"`
	Timestamp     time.Time    `json:"timestamp"`
	Checks        healthChecks `json:"checks"`
	MissingConfig []string     `json:"missing_config,omitempty"`
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response.
type errorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []validationError `json:"errors,omitempty"`
}

// Predefined error responses for common scenarios.
var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
	}

	invalidPlaylistResponse = errorResponse{
		Status:  statusError,
		Message: "invalid playlist url or id",
	}

	invalidLinkIDResponse = errorResponse{
		Status:  statusError,
		Message: "invalid link id",
	}

	linkNotFoundResponse = errorResponse{
		Status:  statusError,
		Message: "tracking link not found",
	}

	storeUnavailableResponse = errorResponse{
		Status:  statusError,
		Message: "storage unavailable",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
	}
)

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "max":
		return "value is too long"
	default:
		return "invalid value"
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Errors:  getValidationErrors(err),
	}
}
