package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
)

type RepositoryTestSuite struct {
	suite.Suite
	errUnknown      error
	errAffectedRows error
	playlistColumns []string
	linkColumns     []string
	connColumns     []string
	eventColumns    []string
	mock            sqlmock.Sqlmock
	repo            *Repository
}

func (suite *RepositoryTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
	suite.errAffectedRows = errors.New("affected rows error")
	suite.playlistColumns = []string{"id", "spotify_id", "name", "owner_name", "image_url", "snapshot_id", "created_at", "updated_at"}
	suite.linkColumns = []string{
		"id", "slug", "title", "is_active", "playlist_id", "created_at",
		"playlist.id", "playlist.spotify_id", "playlist.name", "playlist.owner_name",
		"playlist.image_url", "playlist.snapshot_id", "playlist.created_at", "playlist.updated_at",
	}
	suite.connColumns = []string{"id", "link_id", "listener_id", "display_name", "created_at"}
	suite.eventColumns = []string{"id", "connection_id", "track_id", "played_at", "duration_ms"}
}

// int64SliceConverter lets []int64 arguments through as the pgx driver does.
type int64SliceConverter struct{}

func (int64SliceConverter) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]int64); ok {
		return ids, nil
	}

	return driver.DefaultParameterConverter.ConvertValue(v)
}

func (suite *RepositoryTestSuite) SetupSubTest() {
	mockDB, mock, err := sqlmock.New(
		sqlmock.MonitorPingsOption(true),
		sqlmock.ValueConverterOption(int64SliceConverter{}),
	)
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}
	suite.T().Cleanup(func() {
		mockDB.Close()
	})

	db := sqlx.NewDb(mockDB, "sqlmock")

	suite.mock = mock
	suite.repo = NewRepository(db)
}

func (suite *RepositoryTestSuite) TearDownSubTest() {
	suite.NoError(suite.mock.ExpectationsWereMet())
}

func (suite *RepositoryTestSuite) linkRow(rows *sqlmock.Rows, id int64, slug string, active bool, createdAt time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, slug, nil, active, 7, createdAt,
		7, "37i9dQZF1DXcBWIGoYBM5M", "Today's Top Hits", "Spotify", nil, "snap", time.Time{}, time.Time{},
	)
}

func (suite *RepositoryTestSuite) TestPing() {
	suite.Run("database unreachable", func() {
		suite.mock.ExpectPing().WillReturnError(suite.errUnknown)

		err := suite.repo.Ping(context.Background())

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.ErrorIs(err, suite.errUnknown)
	})

	suite.Run("success", func() {
		suite.mock.ExpectPing()

		suite.NoError(suite.repo.Ping(context.Background()))
	})
}

func (suite *RepositoryTestSuite) TestFindPlaylistByExternalID() {
	suite.Run("playlist not found", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM playlists`).
			WithArgs("abc").
			WillReturnError(sql.ErrNoRows)

		p, err := suite.repo.FindPlaylistByExternalID(context.Background(), "abc")

		suite.ErrorIs(err, entity.ErrPlaylistNotFound)
		suite.NotErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(p)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM playlists`).
			WithArgs("abc").
			WillReturnError(suite.errUnknown)

		p, err := suite.repo.FindPlaylistByExternalID(context.Background(), "abc")

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(p)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.playlistColumns).
			AddRow(1, "abc", "Focus", "alice", "https://img/1", "snap-1", time.Time{}, time.Time{})

		suite.mock.ExpectQuery(`SELECT (.+) FROM playlists`).
			WithArgs("abc").
			WillReturnRows(rows)

		p, err := suite.repo.FindPlaylistByExternalID(context.Background(), "abc")

		suite.NoError(err)
		suite.Equal(int64(1), p.ID)
		suite.Equal("Focus", p.Name)
		suite.Equal("alice", p.OwnerName)
		suite.Require().NotNil(p.ImageURL)
		suite.Equal("https://img/1", *p.ImageURL)
	})
}

func (suite *RepositoryTestSuite) TestCreatePlaylist() {
	fields := entity.PlaceholderPlaylistFields("abc")

	suite.Run("conflict", func() {
		suite.mock.ExpectQuery(`INSERT INTO playlists`).
			WithArgs("abc", "Playlist abc", "Spotify User", nil, nil).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		p, err := suite.repo.CreatePlaylist(context.Background(), fields)

		suite.ErrorIs(err, entity.ErrConflict)
		suite.Nil(p)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`INSERT INTO playlists`).
			WithArgs("abc", "Playlist abc", "Spotify User", nil, nil).
			WillReturnError(suite.errUnknown)

		p, err := suite.repo.CreatePlaylist(context.Background(), fields)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(p)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.playlistColumns).
			AddRow(3, "abc", "Playlist abc", "Spotify User", nil, nil, time.Time{}, time.Time{})

		suite.mock.ExpectQuery(`INSERT INTO playlists`).
			WithArgs("abc", "Playlist abc", "Spotify User", nil, nil).
			WillReturnRows(rows)

		p, err := suite.repo.CreatePlaylist(context.Background(), fields)

		suite.NoError(err)
		suite.Equal(int64(3), p.ID)
		suite.Nil(p.ImageURL)
		suite.Nil(p.SnapshotID)
	})
}

func (suite *RepositoryTestSuite) TestUpdatePlaylist() {
	snap := "snap-2"
	fields := entity.PlaylistFields{SpotifyID: "abc", Name: "Focus", OwnerName: "alice", SnapshotID: &snap}

	suite.Run("playlist not found", func() {
		suite.mock.ExpectQuery(`UPDATE playlists`).
			WithArgs("Focus", "alice", nil, &snap, "abc").
			WillReturnError(sql.ErrNoRows)

		p, err := suite.repo.UpdatePlaylist(context.Background(), fields)

		suite.ErrorIs(err, entity.ErrPlaylistNotFound)
		suite.Nil(p)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.playlistColumns).
			AddRow(1, "abc", "Focus", "alice", nil, snap, time.Time{}, time.Time{})

		suite.mock.ExpectQuery(`UPDATE playlists`).
			WithArgs("Focus", "alice", nil, &snap, "abc").
			WillReturnRows(rows)

		p, err := suite.repo.UpdatePlaylist(context.Background(), fields)

		suite.NoError(err)
		suite.Require().NotNil(p.SnapshotID)
		suite.Equal("snap-2", *p.SnapshotID)
	})
}

func (suite *RepositoryTestSuite) TestCreateTrackingLink() {
	fields := entity.TrackingLinkFields{Slug: "aB3dE5gH", PlaylistID: 7}

	suite.Run("slug exists", func() {
		suite.mock.ExpectQuery(`INSERT INTO tracking_links`).
			WithArgs("aB3dE5gH", nil, 7).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		l, err := suite.repo.CreateTrackingLink(context.Background(), fields)

		suite.ErrorIs(err, entity.ErrSlugExists)
		suite.ErrorIs(err, entity.ErrConflict)
		suite.Nil(l)
	})

	suite.Run("playlist missing", func() {
		suite.mock.ExpectQuery(`INSERT INTO tracking_links`).
			WithArgs("aB3dE5gH", nil, 7).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		l, err := suite.repo.CreateTrackingLink(context.Background(), fields)

		suite.ErrorIs(err, entity.ErrPlaylistNotFound)
		suite.Nil(l)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`INSERT INTO tracking_links`).
			WithArgs("aB3dE5gH", nil, 7).
			WillReturnError(suite.errUnknown)

		l, err := suite.repo.CreateTrackingLink(context.Background(), fields)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(l)
	})

	suite.Run("success", func() {
		rows := suite.linkRow(sqlmock.NewRows(suite.linkColumns), 11, "aB3dE5gH", true, time.Time{})

		suite.mock.ExpectQuery(`INSERT INTO tracking_links`).
			WithArgs("aB3dE5gH", nil, 7).
			WillReturnRows(rows)

		l, err := suite.repo.CreateTrackingLink(context.Background(), fields)

		suite.NoError(err)
		suite.Equal(int64(11), l.ID)
		suite.True(l.IsActive)
		suite.Equal(int64(7), l.Playlist.ID)
		suite.Equal("Today's Top Hits", l.Playlist.Name)
	})
}

func (suite *RepositoryTestSuite) TestFindTrackingLinkBySlug() {
	suite.Run("link not found", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		l, err := suite.repo.FindTrackingLinkBySlug(context.Background(), "missing")

		suite.ErrorIs(err, entity.ErrLinkNotFound)
		suite.Nil(l)
	})

	suite.Run("success", func() {
		rows := suite.linkRow(sqlmock.NewRows(suite.linkColumns), 11, "aB3dE5gH", false, time.Time{})

		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links`).
			WithArgs("aB3dE5gH").
			WillReturnRows(rows)

		l, err := suite.repo.FindTrackingLinkBySlug(context.Background(), "aB3dE5gH")

		suite.NoError(err)
		suite.False(l.IsActive)
		suite.Equal("37i9dQZF1DXcBWIGoYBM5M", l.Playlist.SpotifyID)
	})
}

func (suite *RepositoryTestSuite) TestFindTrackingLinkByID() {
	suite.Run("link not found", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links (.+) WHERE l.id = \$1`).
			WithArgs(404).
			WillReturnError(sql.ErrNoRows)

		l, err := suite.repo.FindTrackingLinkByID(context.Background(), 404)

		suite.ErrorIs(err, entity.ErrLinkNotFound)
		suite.Nil(l)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links`).
			WithArgs(11).
			WillReturnError(suite.errUnknown)

		l, err := suite.repo.FindTrackingLinkByID(context.Background(), 11)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(l)
	})

	suite.Run("success", func() {
		rows := suite.linkRow(sqlmock.NewRows(suite.linkColumns), 11, "aB3dE5gH", true, time.Time{})

		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links (.+) WHERE l.id = \$1`).
			WithArgs(11).
			WillReturnRows(rows)

		l, err := suite.repo.FindTrackingLinkByID(context.Background(), 11)

		suite.NoError(err)
		suite.Equal(int64(11), l.ID)
		suite.Equal("aB3dE5gH", l.Slug)
	})
}

func (suite *RepositoryTestSuite) TestListActiveLinks() {
	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links`).
			WillReturnError(suite.errUnknown)

		links, err := suite.repo.ListActiveLinks(context.Background())

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(links)
	})

	suite.Run("success", func() {
		now := time.Now()
		rows := sqlmock.NewRows(suite.linkColumns)
		suite.linkRow(rows, 2, "second", true, now)
		suite.linkRow(rows, 1, "first", true, now.Add(-time.Hour))

		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links (.+) WHERE l.is_active`).
			WillReturnRows(rows)

		links, err := suite.repo.ListActiveLinks(context.Background())

		suite.NoError(err)
		suite.Len(links, 2)
		suite.Equal("second", links[0].Slug)
		suite.Equal("first", links[1].Slug)
	})
}

func (suite *RepositoryTestSuite) TestListLinksByIDs() {
	suite.Run("no ids", func() {
		links, err := suite.repo.ListLinksByIDs(context.Background(), nil)

		suite.NoError(err)
		suite.NotNil(links)
		suite.Empty(links)
	})

	suite.Run("success", func() {
		rows := suite.linkRow(sqlmock.NewRows(suite.linkColumns), 1, "first", true, time.Time{})

		suite.mock.ExpectQuery(`SELECT (.+) FROM tracking_links (.+) WHERE l.id = ANY\(\$1\)`).
			WithArgs([]int64{1, 2}).
			WillReturnRows(rows)

		links, err := suite.repo.ListLinksByIDs(context.Background(), []int64{1, 2})

		suite.NoError(err)
		suite.Len(links, 1)
	})
}

func (suite *RepositoryTestSuite) TestDeactivateLink() {
	suite.Run("unknown error", func() {
		suite.mock.ExpectExec(`UPDATE tracking_links`).
			WithArgs("abc").
			WillReturnError(suite.errUnknown)

		err := suite.repo.DeactivateLink(context.Background(), "abc")

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.ErrorIs(err, suite.errUnknown)
	})

	suite.Run("affected rows error", func() {
		suite.mock.ExpectExec(`UPDATE tracking_links`).
			WithArgs("abc").
			WillReturnResult(sqlmock.NewErrorResult(suite.errAffectedRows))

		err := suite.repo.DeactivateLink(context.Background(), "abc")

		suite.ErrorIs(err, suite.errAffectedRows)
	})

	suite.Run("link not found", func() {
		suite.mock.ExpectExec(`UPDATE tracking_links`).
			WithArgs("abc").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := suite.repo.DeactivateLink(context.Background(), "abc")

		suite.ErrorIs(err, entity.ErrLinkNotFound)
	})

	suite.Run("success", func() {
		suite.mock.ExpectExec(`UPDATE tracking_links SET is_active = FALSE`).
			WithArgs("abc").
			WillReturnResult(sqlmock.NewResult(0, 1))

		suite.NoError(suite.repo.DeactivateLink(context.Background(), "abc"))
	})
}

func (suite *RepositoryTestSuite) TestClicks() {
	suite.Run("create for missing link", func() {
		suite.mock.ExpectQuery(`INSERT INTO clicks`).
			WithArgs(5).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		c, err := suite.repo.CreateClick(context.Background(), 5)

		suite.ErrorIs(err, entity.ErrLinkNotFound)
		suite.Nil(c)
	})

	suite.Run("create", func() {
		suite.mock.ExpectQuery(`INSERT INTO clicks`).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "link_id", "created_at"}).AddRow(9, 5, time.Time{}))

		c, err := suite.repo.CreateClick(context.Background(), 5)

		suite.NoError(err)
		suite.Equal(int64(9), c.ID)
		suite.Equal(int64(5), c.LinkID)
	})

	suite.Run("count error", func() {
		suite.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clicks`).
			WithArgs(5).
			WillReturnError(suite.errUnknown)

		n, err := suite.repo.CountClicks(context.Background(), 5)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Zero(n)
	})

	suite.Run("count", func() {
		suite.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clicks`).
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

		n, err := suite.repo.CountClicks(context.Background(), 5)

		suite.NoError(err)
		suite.Equal(int64(42), n)
	})
}

func (suite *RepositoryTestSuite) TestListConnections() {
	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM connections`).
			WithArgs(1).
			WillReturnError(suite.errUnknown)

		conns, err := suite.repo.ListConnections(context.Background(), 1)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(conns)
	})

	suite.Run("empty", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM connections`).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows(suite.connColumns))

		conns, err := suite.repo.ListConnections(context.Background(), 1)

		suite.NoError(err)
		suite.NotNil(conns)
		suite.Empty(conns)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.connColumns).
			AddRow(2, 1, "listener-b", "Bob", time.Time{}).
			AddRow(1, 1, "listener-a", nil, time.Time{})

		suite.mock.ExpectQuery(`SELECT (.+) FROM connections`).
			WithArgs(1).
			WillReturnRows(rows)

		conns, err := suite.repo.ListConnections(context.Background(), 1)

		suite.NoError(err)
		suite.Len(conns, 2)
		suite.Require().NotNil(conns[0].DisplayName)
		suite.Equal("Bob", *conns[0].DisplayName)
		suite.Nil(conns[1].DisplayName)
	})
}

func (suite *RepositoryTestSuite) TestListPlayEvents() {
	suite.Run("no connections", func() {
		events, err := suite.repo.ListPlayEvents(context.Background(), []int64{})

		suite.NoError(err)
		suite.NotNil(events)
		suite.Empty(events)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM play_events`).
			WithArgs([]int64{1, 2}).
			WillReturnError(suite.errUnknown)

		events, err := suite.repo.ListPlayEvents(context.Background(), []int64{1, 2})

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(events)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.eventColumns).
			AddRow(1, 1, "t1", time.Time{}, 180000).
			AddRow(2, 2, "t2", time.Time{}, -5)

		suite.mock.ExpectQuery(`SELECT (.+) FROM play_events WHERE connection_id = ANY\(\$1\)`).
			WithArgs([]int64{1, 2}).
			WillReturnRows(rows)

		events, err := suite.repo.ListPlayEvents(context.Background(), []int64{1, 2})

		suite.NoError(err)
		suite.Len(events, 2)
		suite.Equal(int64(180000), events[0].DurationMs)
		suite.Equal(int64(-5), events[1].DurationMs)
	})

	suite.Run("many connections bound as one parameter", func() {
		ids := make([]int64, 70000)
		for i := range ids {
			ids[i] = int64(i + 1)
		}

		rows := sqlmock.NewRows(suite.eventColumns).
			AddRow(1, 70000, "t1", time.Time{}, 60000)

		suite.mock.ExpectQuery(`SELECT (.+) FROM play_events WHERE connection_id = ANY\(\$1\)`).
			WithArgs(ids).
			WillReturnRows(rows)

		events, err := suite.repo.ListPlayEvents(context.Background(), ids)

		suite.NoError(err)
		suite.Len(events, 1)
		suite.Equal(int64(70000), events[0].ConnectionID)
	})
}

func TestRepository(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
