package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/internal/metrics"
)

const (
	tracksPageSize = 100
	// maxTrackPages stops a listing whose next links never run out.
	maxTrackPages     = 1000
	maxPreallocTracks = 10000
)

type playlistResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	SnapshotID string `json:"snapshot_id"`
}

func (r *playlistResponse) toEntity() *entity.PlaylistMetadata {
	images := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		images = append(images, img.URL)
	}

	return &entity.PlaylistMetadata{
		ID:         r.ID,
		Name:       r.Name,
		OwnerName:  r.Owner.DisplayName,
		Images:     images,
		SnapshotID: r.SnapshotID,
	}
}

type tracksPage struct {
	Items []struct {
		Track *struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			DurationMs int64  `json:"duration_ms"`
			Artists    []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"track"`
	} `json:"items"`
	Next  *string `json:"next"`
	Total int     `json:"total"`
}

// PlaylistMetadata fetches the display metadata of a playlist with a single call.
func (c *Client) PlaylistMetadata(ctx context.Context, playlistID string, token Token) (*entity.PlaylistMetadata, error) {
	const op = "spotify.Client.PlaylistMetadata"

	endpoint := c.apiURL + "/playlists/" + url.PathEscape(playlistID)

	var resp playlistResponse
	if err := c.get(ctx, "playlist", endpoint, token, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resp.toEntity(), nil
}

// AllPlaylistTracks pages through the whole track listing of a playlist.
// A failure on any page discards the tracks collected so far.
func (c *Client) AllPlaylistTracks(ctx context.Context, playlistID string, token Token) ([]entity.Track, error) {
	const op = "spotify.Client.AllPlaylistTracks"

	query := url.Values{}
	query.Set("limit", strconv.Itoa(tracksPageSize))
	query.Set("offset", "0")
	next := c.apiURL + "/playlists/" + url.PathEscape(playlistID) + "/tracks?" + query.Encode()

	var tracks []entity.Track

	for page := 0; next != ""; page++ {
		if page == maxTrackPages {
			return nil, fmt.Errorf("%s: %w: listing exceeded %d pages", op, entity.ErrUnavailable, maxTrackPages)
		}

		if err := c.sameOrigin(next); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var resp tracksPage
		if err := c.get(ctx, "playlist_tracks", next, token, &resp); err != nil {
			return nil, fmt.Errorf("%s: page %d: %w", op, page, err)
		}

		if tracks == nil {
			tracks = make([]entity.Track, 0, max(0, min(resp.Total, maxPreallocTracks)))
		}

		for _, item := range resp.Items {
			// Tracks removed from the catalog come back as null.
			if item.Track == nil {
				continue
			}

			artists := make([]string, 0, len(item.Track.Artists))
			for _, a := range item.Track.Artists {
				artists = append(artists, a.Name)
			}

			tracks = append(tracks, entity.Track{
				ID:         item.Track.ID,
				Name:       item.Track.Name,
				Artists:    artists,
				DurationMs: item.Track.DurationMs,
			})
		}

		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}

	if tracks == nil {
		tracks = []entity.Track{}
	}

	return tracks, nil
}

// sameOrigin keeps pagination from sending the bearer token to another host.
func (c *Client) sameOrigin(rawURL string) error {
	base, err := url.Parse(c.apiURL)
	if err != nil {
		return fmt.Errorf("%w: invalid api url: %w", entity.ErrUnavailable, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid page url: %w", entity.ErrUnavailable, err)
	}

	if u.Scheme != base.Scheme || u.Host != base.Host {
		return fmt.Errorf("%w: page url %q leaves api host", entity.ErrUnavailable, rawURL)
	}

	return nil
}

// get performs one API call through the limiter and the circuit breaker and
// decodes a 200 response into out.
func (c *Client) get(ctx context.Context, endpoint, rawURL string, token Token, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.MusicAPIRequests.WithLabelValues(endpoint, "unavailable").Inc()
			return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
		}
	}

	_, err := c.cb.Execute(func() (struct{}, error) {
		return struct{}{}, c.do(ctx, rawURL, token, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
	}

	metrics.MusicAPIRequests.WithLabelValues(endpoint, outcome(err)).Inc()

	return err
}

func (c *Client) do(ctx context.Context, rawURL string, token Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", entity.ErrUnavailable, err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %w", entity.ErrUnavailable, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return entity.ErrPlaylistNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return &entity.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return fmt.Errorf("%w: unexpected status %d", entity.ErrUnavailable, resp.StatusCode)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, entity.ErrPlaylistNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrRateLimited):
		return "rate_limited"
	default:
		return "unavailable"
	}
}

// FetchPlaylist obtains a token and fetches playlist metadata with it.
func (c *Client) FetchPlaylist(ctx context.Context, playlistID string) (*entity.PlaylistMetadata, error) {
	const op = "spotify.Client.FetchPlaylist"

	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	meta, err := c.PlaylistMetadata(ctx, playlistID, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return meta, nil
}

// FetchPlaylistTracks obtains a token and lists every track of the playlist with it.
func (c *Client) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]entity.Track, error) {
	const op = "spotify.Client.FetchPlaylistTracks"

	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tracks, err := c.AllPlaylistTracks(ctx, playlistID, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tracks, nil
}
