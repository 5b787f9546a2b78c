// Package usecase holds the application logic: tracking link creation and
// resolution, playlist previews and the engagement metrics derived from the
// recorded events.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/internal/metrics"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultSlugLength     = 8
	DefaultSlugMaxRetries = 10
)

var (
	playlistURLRe = regexp.MustCompile(`playlist/([a-zA-Z0-9]+)`)
	playlistIDRe  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// ParsePlaylistRef extracts the playlist id from a playlist URL or accepts a bare id.
func ParsePlaylistRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	if strings.Contains(ref, "playlist/") {
		m := playlistURLRe.FindStringSubmatch(ref)
		if m == nil {
			return "", fmt.Errorf("%w: %q", entity.ErrInvalidPlaylistRef, ref)
		}
		return m[1], nil
	}

	if !playlistIDRe.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", entity.ErrInvalidPlaylistRef, ref)
	}

	return ref, nil
}

type linkStore interface {
	FindPlaylistByExternalID(ctx context.Context, spotifyID string) (*entity.Playlist, error)
	CreatePlaylist(ctx context.Context, f entity.PlaylistFields) (*entity.Playlist, error)
	UpdatePlaylist(ctx context.Context, f entity.PlaylistFields) (*entity.Playlist, error)
	CreateTrackingLink(ctx context.Context, f entity.TrackingLinkFields) (*entity.TrackingLink, error)
	FindTrackingLinkBySlug(ctx context.Context, slug string) (*entity.TrackingLink, error)
	FindTrackingLinkByID(ctx context.Context, id int64) (*entity.TrackingLink, error)
	DeactivateLink(ctx context.Context, slug string) error
	CreateClick(ctx context.Context, linkID int64) (*entity.Click, error)
}

type playlistFetcher interface {
	FetchPlaylist(ctx context.Context, playlistID string) (*entity.PlaylistMetadata, error)
	FetchPlaylistTracks(ctx context.Context, playlistID string) ([]entity.Track, error)
}

type LinkConfig struct {
	BaseURL        string
	SlugLength     int
	SlugMaxRetries int
}

type LinkUseCase struct {
	store          linkStore
	music          playlistFetcher
	logger         *slog.Logger
	baseURL        string
	slugLength     int
	slugMaxRetries int
}

func NewLinkUseCase(store linkStore, music playlistFetcher, logger *slog.Logger, cfg LinkConfig) *LinkUseCase {
	if cfg.SlugLength <= 0 {
		cfg.SlugLength = DefaultSlugLength
	}
	if cfg.SlugMaxRetries <= 0 {
		cfg.SlugMaxRetries = DefaultSlugMaxRetries
	}

	return &LinkUseCase{
		store:          store,
		music:          music,
		logger:         logger,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		slugLength:     cfg.SlugLength,
		slugMaxRetries: cfg.SlugMaxRetries,
	}
}

// ShortURL returns the public address of the link with the given slug.
func (uc *LinkUseCase) ShortURL(slug string) string {
	return uc.baseURL + "/" + slug
}

// CreateLink creates a tracking link for the referenced playlist. The playlist
// record is created on first reference, from placeholder values when the music
// service cannot be reached.
func (uc *LinkUseCase) CreateLink(ctx context.Context, playlistRef string, title *string) (*entity.TrackingLink, error) {
	const op = "usecase.LinkUseCase.CreateLink"

	playlistID, err := ParsePlaylistRef(playlistRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	playlist, err := uc.ensurePlaylist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if title != nil && strings.TrimSpace(*title) == "" {
		title = nil
	}

	for range uc.slugMaxRetries {
		slug, err := gonanoid.New(uc.slugLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate slug: %w", op, err)
		}

		link, err := uc.store.CreateTrackingLink(ctx, entity.TrackingLinkFields{
			Slug:       slug,
			Title:      title,
			PlaylistID: playlist.ID,
		})
		if err != nil {
			if errors.Is(err, entity.ErrSlugExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create tracking link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, entity.ErrSlugExhausted)
}

func (uc *LinkUseCase) ensurePlaylist(ctx context.Context, playlistID string) (*entity.Playlist, error) {
	playlist, err := uc.store.FindPlaylistByExternalID(ctx, playlistID)
	if err == nil {
		return playlist, nil
	}
	if !errors.Is(err, entity.ErrPlaylistNotFound) {
		return nil, fmt.Errorf("failed to find playlist: %w", err)
	}

	playlist, err = uc.store.CreatePlaylist(ctx, uc.playlistFields(ctx, playlistID))
	if err == nil {
		return playlist, nil
	}
	if !errors.Is(err, entity.ErrConflict) {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	// A concurrent creation stored the playlist first.
	playlist, err = uc.store.FindPlaylistByExternalID(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to find playlist after conflict: %w", err)
	}

	return playlist, nil
}

// playlistFields fetches the playlist metadata, degrading to placeholder
// values on any music service failure.
func (uc *LinkUseCase) playlistFields(ctx context.Context, playlistID string) entity.PlaylistFields {
	meta, err := uc.music.FetchPlaylist(ctx, playlistID)
	if err != nil {
		uc.fallback(ctx, playlistID, err)
		return entity.PlaceholderPlaylistFields(playlistID)
	}

	return meta.Fields()
}

func (uc *LinkUseCase) fallback(ctx context.Context, playlistID string, err error) {
	metrics.PlaylistFallbacks.Inc()
	uc.logger.WarnContext(ctx, "music service unavailable, using placeholder playlist",
		slog.String("playlist_id", playlistID),
		slog.String("error", err.Error()),
	)
}

// PreviewPlaylist describes a playlist before a link is created for it. When
// the music service fails the preview is built from placeholder values and
// marked as limited. A stored playlist whose snapshot changed is refreshed.
func (uc *LinkUseCase) PreviewPlaylist(ctx context.Context, playlistRef string) (*entity.PlaylistPreview, error) {
	const op = "usecase.LinkUseCase.PreviewPlaylist"

	playlistID, err := ParsePlaylistRef(playlistRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	meta, err := uc.music.FetchPlaylist(ctx, playlistID)
	if err != nil {
		uc.fallback(ctx, playlistID, err)
		return placeholderPreview(playlistID), nil
	}

	tracks, err := uc.music.FetchPlaylistTracks(ctx, playlistID)
	if err != nil {
		uc.fallback(ctx, playlistID, err)
		return placeholderPreview(playlistID), nil
	}

	fields := meta.Fields()
	uc.refreshPlaylist(ctx, fields)

	return &entity.PlaylistPreview{
		ID:         playlistID,
		Name:       fields.Name,
		OwnerName:  fields.OwnerName,
		ImageURL:   fields.ImageURL,
		TrackCount: len(tracks),
		URL:        entity.PlaylistWebURL(playlistID),
		SnapshotID: fields.SnapshotID,
	}, nil
}

func placeholderPreview(playlistID string) *entity.PlaylistPreview {
	return &entity.PlaylistPreview{
		ID:        playlistID,
		Name:      entity.PlaceholderPlaylistName(playlistID),
		OwnerName: entity.PlaceholderOwnerName,
		URL:       entity.PlaylistWebURL(playlistID),
		Limited:   true,
	}
}

// refreshPlaylist updates a stored playlist when the fetched snapshot differs.
// Failures are logged only; the preview does not depend on the stored record.
func (uc *LinkUseCase) refreshPlaylist(ctx context.Context, fields entity.PlaylistFields) {
	stored, err := uc.store.FindPlaylistByExternalID(ctx, fields.SpotifyID)
	if err != nil {
		if !errors.Is(err, entity.ErrPlaylistNotFound) {
			uc.logger.WarnContext(ctx, "failed to look up stored playlist",
				slog.String("playlist_id", fields.SpotifyID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if fields.SnapshotID == nil || (stored.SnapshotID != nil && *stored.SnapshotID == *fields.SnapshotID) {
		return
	}

	if _, err := uc.store.UpdatePlaylist(ctx, fields); err != nil {
		uc.logger.WarnContext(ctx, "failed to refresh stored playlist",
			slog.String("playlist_id", fields.SpotifyID),
			slog.String("error", err.Error()),
		)
	}
}

// ResolveLink returns the active link with the given slug and records a click on it.
func (uc *LinkUseCase) ResolveLink(ctx context.Context, slug string) (*entity.TrackingLink, error) {
	const op = "usecase.LinkUseCase.ResolveLink"

	link, err := uc.store.FindTrackingLinkBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to find tracking link: %w", op, err)
	}

	if !link.IsActive {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	if _, err := uc.store.CreateClick(ctx, link.ID); err != nil {
		return nil, fmt.Errorf("%s: failed to record click: %w", op, err)
	}

	return link, nil
}

// FindLink returns a tracking link by id, active or not.
func (uc *LinkUseCase) FindLink(ctx context.Context, id int64) (*entity.TrackingLink, error) {
	const op = "usecase.LinkUseCase.FindLink"

	link, err := uc.store.FindTrackingLinkByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get tracking link: %w", op, err)
	}

	return link, nil
}

func (uc *LinkUseCase) DeactivateLink(ctx context.Context, slug string) error {
	const op = "usecase.LinkUseCase.DeactivateLink"

	if err := uc.store.DeactivateLink(ctx, slug); err != nil {
		return fmt.Errorf("%s: failed to deactivate tracking link: %w", op, err)
	}

	return nil
}
