// Package entity defines the entities and errors used in the application.
// It covers cached playlist metadata, tracking links, the raw engagement
// events recorded against them and the metrics derived from those events.
package entity

import (
	"fmt"
	"time"
)

const (
	// PlaceholderOwnerName is stored when the music service could not be reached on playlist creation.
	PlaceholderOwnerName = "Spotify User"

	playlistWebURL = "https://open.spotify.com/playlist/%s"
)

// Playlist is the cached display metadata of an external playlist.
type Playlist struct {
	ID         int64     // ID is the unique identifier of the playlist in the database.
	SpotifyID  string    // SpotifyID is the external identifier, unique across playlists.
	Name       string    // Name is the display name.
	OwnerName  string    // OwnerName is the display name of the playlist owner.
	ImageURL   *string   // ImageURL is the cover image, if any.
	SnapshotID *string   // SnapshotID is the version marker reported by the music service.
	CreatedAt  time.Time // CreatedAt is the timestamp when the playlist was first referenced.
	UpdatedAt  time.Time // UpdatedAt is the timestamp when the metadata was last refreshed.
}

// WebURL returns the public page of the playlist on the music service.
func (p *Playlist) WebURL() string {
	return PlaylistWebURL(p.SpotifyID)
}

// PlaylistWebURL returns the public page of the playlist with the given external id.
func PlaylistWebURL(spotifyID string) string {
	return fmt.Sprintf(playlistWebURL, spotifyID)
}

// PlaylistFields holds the values used to create or refresh a playlist record.
type PlaylistFields struct {
	SpotifyID  string
	Name       string
	OwnerName  string
	ImageURL   *string
	SnapshotID *string
}

// PlaceholderPlaylistFields returns the fields stored when metadata could not be fetched.
func PlaceholderPlaylistFields(spotifyID string) PlaylistFields {
	return PlaylistFields{
		SpotifyID: spotifyID,
		Name:      PlaceholderPlaylistName(spotifyID),
		OwnerName: PlaceholderOwnerName,
	}
}

// PlaceholderPlaylistName derives a synthetic display name from the external id.
func PlaceholderPlaylistName(spotifyID string) string {
	return "Playlist " + spotifyID
}

// PlaylistMetadata is the playlist description returned by the music service.
type PlaylistMetadata struct {
	ID         string
	Name       string
	OwnerName  string
	Images     []string
	SnapshotID string
}

// Fields converts fetched metadata into playlist record fields.
// The first image is used as the cover.
func (m *PlaylistMetadata) Fields() PlaylistFields {
	f := PlaylistFields{
		SpotifyID: m.ID,
		Name:      m.Name,
		OwnerName: m.OwnerName,
	}

	if len(m.Images) > 0 && m.Images[0] != "" {
		img := m.Images[0]
		f.ImageURL = &img
	}

	if m.SnapshotID != "" {
		snapshot := m.SnapshotID
		f.SnapshotID = &snapshot
	}

	return f
}

// Track is a single entry of a playlist track listing.
type Track struct {
	ID         string
	Name       string
	Artists    []string
	DurationMs int64
}

// PlaylistPreview describes a playlist before a tracking link is created for it.
type PlaylistPreview struct {
	ID         string
	Name       string
	OwnerName  string
	ImageURL   *string
	TrackCount int
	URL        string
	SnapshotID *string
	Limited    bool // Limited is set when the preview was built from placeholder data.
}
