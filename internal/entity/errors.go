package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPlaylistNotFound is returned when a playlist does not exist, either in the store
	// or on the music service (private playlists are reported the same way).
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrLinkNotFound is returned when a tracking link with the given slug or id cannot be found.
	ErrLinkNotFound = errors.New("tracking link not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrSlugExists is returned when a tracking link is created with a slug that is already taken.
	ErrSlugExists = fmt.Errorf("slug exists: %w", ErrConflict)
	// ErrSlugExhausted is returned when no free slug was found within the retry bound.
	ErrSlugExhausted = errors.New("slug generation retries exhausted")
	// ErrStoreUnavailable is returned when the persistence layer cannot serve a request.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrRateLimited is returned when the music service throttles the client.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable is returned on transport errors, timeouts and 5xx responses from the music service.
	ErrUnavailable = errors.New("music service unavailable")
	// ErrInvalidPlaylistRef is returned when a playlist URL or id cannot be parsed.
	ErrInvalidPlaylistRef = errors.New("invalid playlist reference")
)

// RateLimitError carries the retry hint of a throttled music service response.
// It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
