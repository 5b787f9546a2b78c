// Package postgres implements the relational store behind the tracking links:
// playlist and link records on the write side and the connection, click and
// play event reads the metrics aggregation needs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/pkg/postgres"
)

type playlistDB struct {
	ID         int64     `db:"id"`
	SpotifyID  string    `db:"spotify_id"`
	Name       string    `db:"name"`
	OwnerName  string    `db:"owner_name"`
	ImageURL   *string   `db:"image_url"`
	SnapshotID *string   `db:"snapshot_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (p *playlistDB) toEntity() *entity.Playlist {
	return &entity.Playlist{
		ID:         p.ID,
		SpotifyID:  p.SpotifyID,
		Name:       p.Name,
		OwnerName:  p.OwnerName,
		ImageURL:   p.ImageURL,
		SnapshotID: p.SnapshotID,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type linkDB struct {
	ID         int64      `db:"id"`
	Slug       string     `db:"slug"`
	Title      *string    `db:"title"`
	IsActive   bool       `db:"is_active"`
	PlaylistID int64      `db:"playlist_id"`
	CreatedAt  time.Time  `db:"created_at"`
	Playlist   playlistDB `db:"playlist"`
}

func (l *linkDB) toEntity() *entity.TrackingLink {
	return &entity.TrackingLink{
		ID:         l.ID,
		Slug:       l.Slug,
		Title:      l.Title,
		IsActive:   l.IsActive,
		PlaylistID: l.PlaylistID,
		Playlist:   *l.Playlist.toEntity(),
		CreatedAt:  l.CreatedAt,
	}
}

type connectionDB struct {
	ID          int64     `db:"id"`
	LinkID      int64     `db:"link_id"`
	ListenerID  string    `db:"listener_id"`
	DisplayName *string   `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
}

func (c *connectionDB) toEntity() entity.Connection {
	return entity.Connection{
		ID:          c.ID,
		LinkID:      c.LinkID,
		ListenerID:  c.ListenerID,
		DisplayName: c.DisplayName,
		CreatedAt:   c.CreatedAt,
	}
}

type playEventDB struct {
	ID           int64     `db:"id"`
	ConnectionID int64     `db:"connection_id"`
	TrackID      string    `db:"track_id"`
	PlayedAt     time.Time `db:"played_at"`
	DurationMs   int64     `db:"duration_ms"`
}

func (e *playEventDB) toEntity() entity.PlayEvent {
	return entity.PlayEvent{
		ID:           e.ID,
		ConnectionID: e.ConnectionID,
		TrackID:      e.TrackID,
		PlayedAt:     e.PlayedAt,
		DurationMs:   e.DurationMs,
	}
}

type clickDB struct {
	ID        int64     `db:"id"`
	LinkID    int64     `db:"link_id"`
	CreatedAt time.Time `db:"created_at"`
}

// selectLinks loads links joined with their playlist; callers append the WHERE clause.
const selectLinks = `SELECT l.id, l.slug, l.title, l.is_active, l.playlist_id, l.created_at,
	p.id AS "playlist.id", p.spotify_id AS "playlist.spotify_id", p.name AS "playlist.name",
	p.owner_name AS "playlist.owner_name", p.image_url AS "playlist.image_url",
	p.snapshot_id AS "playlist.snapshot_id", p.created_at AS "playlist.created_at",
	p.updated_at AS "playlist.updated_at"
	FROM tracking_links l
	JOIN playlists p ON p.id = l.playlist_id`

// Repository is the store accessor. It holds the pool handle it was given;
// every call acquires a pooled connection for its own duration only.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// storeError marks err as a persistence failure while keeping the cause inspectable.
func storeError(op, msg string, err error) error {
	return fmt.Errorf("%s: %s: %w: %w", op, msg, entity.ErrStoreUnavailable, err)
}

func (r *Repository) Ping(ctx context.Context) error {
	const op = "adapter.repository.postgres.Repository.Ping"

	if err := r.db.PingContext(ctx); err != nil {
		return storeError(op, "failed to ping database", err)
	}

	return nil
}

func (r *Repository) FindPlaylistByExternalID(ctx context.Context, spotifyID string) (*entity.Playlist, error) {
	const op = "adapter.repository.postgres.Repository.FindPlaylistByExternalID"
	const query = `SELECT * FROM playlists WHERE spotify_id = $1`

	var p playlistDB

	if err := r.db.GetContext(ctx, &p, query, spotifyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrPlaylistNotFound)
		}

		return nil, storeError(op, "failed to get row from playlists table", err)
	}

	return p.toEntity(), nil
}

func (r *Repository) CreatePlaylist(ctx context.Context, f entity.PlaylistFields) (*entity.Playlist, error) {
	const op = "adapter.repository.postgres.Repository.CreatePlaylist"
	const query = `INSERT INTO playlists(spotify_id, name, owner_name, image_url, snapshot_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	var p playlistDB

	if err := r.db.GetContext(ctx, &p, query, f.SpotifyID, f.Name, f.OwnerName, f.ImageURL, f.SnapshotID); err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrConflict)
		}

		return nil, storeError(op, "failed to insert into playlists table", err)
	}

	return p.toEntity(), nil
}

func (r *Repository) UpdatePlaylist(ctx context.Context, f entity.PlaylistFields) (*entity.Playlist, error) {
	const op = "adapter.repository.postgres.Repository.UpdatePlaylist"
	const query = `UPDATE playlists
		SET name = $1, owner_name = $2, image_url = $3, snapshot_id = $4, updated_at = NOW()
		WHERE spotify_id = $5
		RETURNING *`

	var p playlistDB

	if err := r.db.GetContext(ctx, &p, query, f.Name, f.OwnerName, f.ImageURL, f.SnapshotID, f.SpotifyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrPlaylistNotFound)
		}

		return nil, storeError(op, "failed to update playlists table row", err)
	}

	return p.toEntity(), nil
}

func (r *Repository) CreateTrackingLink(ctx context.Context, f entity.TrackingLinkFields) (*entity.TrackingLink, error) {
	const op = "adapter.repository.postgres.Repository.CreateTrackingLink"
	const query = `WITH inserted AS (
			INSERT INTO tracking_links(slug, title, playlist_id)
			VALUES ($1, $2, $3)
			RETURNING *
		)
		SELECT l.id, l.slug, l.title, l.is_active, l.playlist_id, l.created_at,
			p.id AS "playlist.id", p.spotify_id AS "playlist.spotify_id", p.name AS "playlist.name",
			p.owner_name AS "playlist.owner_name", p.image_url AS "playlist.image_url",
			p.snapshot_id AS "playlist.snapshot_id", p.created_at AS "playlist.created_at",
			p.updated_at AS "playlist.updated_at"
		FROM inserted l
		JOIN playlists p ON p.id = l.playlist_id`

	var l linkDB

	if err := r.db.GetContext(ctx, &l, query, f.Slug, f.Title, f.PlaylistID); err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrSlugExists)
		}

		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrPlaylistNotFound)
		}

		return nil, storeError(op, "failed to insert into tracking_links table", err)
	}

	return l.toEntity(), nil
}

func (r *Repository) FindTrackingLinkBySlug(ctx context.Context, slug string) (*entity.TrackingLink, error) {
	const op = "adapter.repository.postgres.Repository.FindTrackingLinkBySlug"
	const query = selectLinks + ` WHERE l.slug = $1`

	var l linkDB

	if err := r.db.GetContext(ctx, &l, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, storeError(op, "failed to get row from tracking_links table", err)
	}

	return l.toEntity(), nil
}

func (r *Repository) FindTrackingLinkByID(ctx context.Context, id int64) (*entity.TrackingLink, error) {
	const op = "adapter.repository.postgres.Repository.FindTrackingLinkByID"
	const query = selectLinks + ` WHERE l.id = $1`

	var l linkDB

	if err := r.db.GetContext(ctx, &l, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, storeError(op, "failed to get row from tracking_links table", err)
	}

	return l.toEntity(), nil
}

func (r *Repository) ListActiveLinks(ctx context.Context) ([]entity.TrackingLink, error) {
	const op = "adapter.repository.postgres.Repository.ListActiveLinks"
	const query = selectLinks + ` WHERE l.is_active ORDER BY l.created_at DESC, l.id DESC`

	var rows []linkDB

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storeError(op, "failed to select from tracking_links table", err)
	}

	return toLinks(rows), nil
}

func (r *Repository) ListLinksByIDs(ctx context.Context, ids []int64) ([]entity.TrackingLink, error) {
	const op = "adapter.repository.postgres.Repository.ListLinksByIDs"

	if len(ids) == 0 {
		return []entity.TrackingLink{}, nil
	}

	const query = selectLinks + ` WHERE l.id = ANY($1) ORDER BY l.created_at DESC, l.id DESC`

	var rows []linkDB

	// ids are bound as a single array parameter.
	if err := r.db.SelectContext(ctx, &rows, query, ids); err != nil {
		return nil, storeError(op, "failed to select from tracking_links table", err)
	}

	return toLinks(rows), nil
}

func toLinks(rows []linkDB) []entity.TrackingLink {
	links := make([]entity.TrackingLink, 0, len(rows))
	for i := range rows {
		links = append(links, *rows[i].toEntity())
	}

	return links
}

func (r *Repository) DeactivateLink(ctx context.Context, slug string) error {
	const op = "adapter.repository.postgres.Repository.DeactivateLink"
	const query = `UPDATE tracking_links SET is_active = FALSE WHERE slug = $1`

	res, err := r.db.ExecContext(ctx, query, slug)
	if err != nil {
		return storeError(op, "failed to update tracking_links table row", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return storeError(op, "failed to get number of affected rows", err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}

func (r *Repository) CreateClick(ctx context.Context, linkID int64) (*entity.Click, error) {
	const op = "adapter.repository.postgres.Repository.CreateClick"
	const query = `INSERT INTO clicks(link_id) VALUES ($1) RETURNING *`

	var c clickDB

	if err := r.db.GetContext(ctx, &c, query, linkID); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, storeError(op, "failed to insert into clicks table", err)
	}

	return &entity.Click{ID: c.ID, LinkID: c.LinkID, CreatedAt: c.CreatedAt}, nil
}

func (r *Repository) CountClicks(ctx context.Context, linkID int64) (int64, error) {
	const op = "adapter.repository.postgres.Repository.CountClicks"
	const query = `SELECT COUNT(*) FROM clicks WHERE link_id = $1`

	var n int64

	if err := r.db.GetContext(ctx, &n, query, linkID); err != nil {
		return 0, storeError(op, "failed to count clicks", err)
	}

	return n, nil
}

func (r *Repository) ListConnections(ctx context.Context, linkID int64) ([]entity.Connection, error) {
	const op = "adapter.repository.postgres.Repository.ListConnections"
	const query = `SELECT * FROM connections WHERE link_id = $1 ORDER BY created_at DESC, id DESC`

	var rows []connectionDB

	if err := r.db.SelectContext(ctx, &rows, query, linkID); err != nil {
		return nil, storeError(op, "failed to select from connections table", err)
	}

	conns := make([]entity.Connection, 0, len(rows))
	for i := range rows {
		conns = append(conns, rows[i].toEntity())
	}

	return conns, nil
}

func (r *Repository) ListPlayEvents(ctx context.Context, connectionIDs []int64) ([]entity.PlayEvent, error) {
	const op = "adapter.repository.postgres.Repository.ListPlayEvents"

	if len(connectionIDs) == 0 {
		return []entity.PlayEvent{}, nil
	}

	const query = `SELECT * FROM play_events WHERE connection_id = ANY($1) ORDER BY played_at, id`

	var rows []playEventDB

	if err := r.db.SelectContext(ctx, &rows, query, connectionIDs); err != nil {
		return nil, storeError(op, "failed to select from play_events table", err)
	}

	events := make([]entity.PlayEvent, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toEntity())
	}

	return events, nil
}
