package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindPlaylistByExternalID(ctx context.Context, spotifyID string) (*entity.Playlist, error) {
	args := m.Called(ctx, spotifyID)
	p, _ := args.Get(0).(*entity.Playlist)
	return p, args.Error(1)
}

func (m *mockStore) CreatePlaylist(ctx context.Context, f entity.PlaylistFields) (*entity.Playlist, error) {
	args := m.Called(ctx, f)
	p, _ := args.Get(0).(*entity.Playlist)
	return p, args.Error(1)
}

func (m *mockStore) UpdatePlaylist(ctx context.Context, f entity.PlaylistFields) (*entity.Playlist, error) {
	args := m.Called(ctx, f)
	p, _ := args.Get(0).(*entity.Playlist)
	return p, args.Error(1)
}

func (m *mockStore) CreateTrackingLink(ctx context.Context, f entity.TrackingLinkFields) (*entity.TrackingLink, error) {
	args := m.Called(ctx, f)
	l, _ := args.Get(0).(*entity.TrackingLink)
	return l, args.Error(1)
}

func (m *mockStore) FindTrackingLinkBySlug(ctx context.Context, slug string) (*entity.TrackingLink, error) {
	args := m.Called(ctx, slug)
	l, _ := args.Get(0).(*entity.TrackingLink)
	return l, args.Error(1)
}

func (m *mockStore) FindTrackingLinkByID(ctx context.Context, id int64) (*entity.TrackingLink, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*entity.TrackingLink)
	return l, args.Error(1)
}

func (m *mockStore) DeactivateLink(ctx context.Context, slug string) error {
	return m.Called(ctx, slug).Error(0)
}

func (m *mockStore) CreateClick(ctx context.Context, linkID int64) (*entity.Click, error) {
	args := m.Called(ctx, linkID)
	c, _ := args.Get(0).(*entity.Click)
	return c, args.Error(1)
}

func (m *mockStore) ListActiveLinks(ctx context.Context) ([]entity.TrackingLink, error) {
	args := m.Called(ctx)
	l, _ := args.Get(0).([]entity.TrackingLink)
	return l, args.Error(1)
}

func (m *mockStore) ListLinksByIDs(ctx context.Context, ids []int64) ([]entity.TrackingLink, error) {
	args := m.Called(ctx, ids)
	l, _ := args.Get(0).([]entity.TrackingLink)
	return l, args.Error(1)
}

func (m *mockStore) CountClicks(ctx context.Context, linkID int64) (int64, error) {
	args := m.Called(ctx, linkID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListConnections(ctx context.Context, linkID int64) ([]entity.Connection, error) {
	args := m.Called(ctx, linkID)
	c, _ := args.Get(0).([]entity.Connection)
	return c, args.Error(1)
}

func (m *mockStore) ListPlayEvents(ctx context.Context, connectionIDs []int64) ([]entity.PlayEvent, error) {
	args := m.Called(ctx, connectionIDs)
	e, _ := args.Get(0).([]entity.PlayEvent)
	return e, args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchPlaylist(ctx context.Context, playlistID string) (*entity.PlaylistMetadata, error) {
	args := m.Called(ctx, playlistID)
	p, _ := args.Get(0).(*entity.PlaylistMetadata)
	return p, args.Error(1)
}

func (m *mockFetcher) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]entity.Track, error) {
	args := m.Called(ctx, playlistID)
	t, _ := args.Get(0).([]entity.Track)
	return t, args.Error(1)
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) ComputeMetrics(ctx context.Context, linkID int64) (*entity.LinkMetrics, error) {
	args := m.Called(ctx, linkID)
	lm, _ := args.Get(0).(*entity.LinkMetrics)
	return lm, args.Error(1)
}
