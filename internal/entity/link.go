package entity

import "time"

// TrackingLink is the shareable short link pointing at a playlist.
type TrackingLink struct {
	ID         int64     // ID is the unique identifier of the link in the database.
	Slug       string    // Slug is the generated short identifier, unique across links.
	Title      *string   // Title is an optional custom title.
	IsActive   bool      // IsActive is cleared when the link is deactivated.
	PlaylistID int64     // PlaylistID references the playlist the link points at.
	Playlist   Playlist  // Playlist is populated when the link is loaded together with its playlist.
	CreatedAt  time.Time // CreatedAt is the timestamp when the link was created.
}

// TrackingLinkFields holds the values used to create a tracking link.
type TrackingLinkFields struct {
	Slug       string
	Title      *string
	PlaylistID int64
}

// Connection records a listener linking their account to a tracking link.
type Connection struct {
	ID          int64
	LinkID      int64
	ListenerID  string // ListenerID correlates the connection with the listener's play events.
	DisplayName *string
	CreatedAt   time.Time
}

// Click records a tracking link being opened.
type Click struct {
	ID        int64
	LinkID    int64
	CreatedAt time.Time
}

// PlayEvent records a listener playing one track.
type PlayEvent struct {
	ID           int64
	ConnectionID int64
	TrackID      string
	PlayedAt     time.Time
	DurationMs   int64
}
