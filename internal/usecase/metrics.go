package usecase

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/internal/metrics"
)

const (
	DefaultSuperListenerPlays   = 10
	DefaultSuperListenerMinutes = 30
)

// Thresholds classify a listener as a super listener. A connection qualifies
// when its play count or its minutes listened is strictly greater than the limit.
type Thresholds struct {
	Plays   int64
	Minutes float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Plays:   DefaultSuperListenerPlays,
		Minutes: DefaultSuperListenerMinutes,
	}
}

func (t Thresholds) qualifies(plays int64, minutes float64) bool {
	return plays > t.Plays || minutes > t.Minutes
}

type eventStore interface {
	ListConnections(ctx context.Context, linkID int64) ([]entity.Connection, error)
	ListPlayEvents(ctx context.Context, connectionIDs []int64) ([]entity.PlayEvent, error)
}

type MetricsUseCase struct {
	store      eventStore
	thresholds Thresholds
	now        func() time.Time
}

func NewMetricsUseCase(store eventStore, thresholds Thresholds) *MetricsUseCase {
	return &MetricsUseCase{
		store:      store,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// ComputeMetrics reduces the stored events of one link into its engagement metrics.
// The result reflects the store at call time and is never cached here.
func (uc *MetricsUseCase) ComputeMetrics(ctx context.Context, linkID int64) (_ *entity.LinkMetrics, err error) {
	const op = "usecase.MetricsUseCase.ComputeMetrics"

	start := time.Now()
	defer func() {
		metrics.AggregationDuration.Observe(time.Since(start).Seconds())
		if err != nil && ctx.Err() == nil {
			metrics.AggregationFailures.Inc()
		}
	}()

	now := uc.now()

	conns, err := uc.store.ListConnections(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list connections: %w", op, err)
	}

	if len(conns) == 0 {
		return entity.ZeroLinkMetrics(), nil
	}

	ids := make([]int64, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}

	plays, err := uc.store.ListPlayEvents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list play events: %w", op, err)
	}

	return Aggregate(now, conns, plays, uc.thresholds), nil
}

type listenerStats struct {
	plays         int64
	minutes       float64
	windowPlays   int64
	windowMinutes float64
}

// Aggregate computes link metrics at instant now. The trailing window is
// [now-entity.MetricsWindow, now], both ends inclusive. Play events of
// connections not present in conns are ignored.
func Aggregate(now time.Time, conns []entity.Connection, plays []entity.PlayEvent, th Thresholds) *entity.LinkMetrics {
	m := entity.ZeroLinkMetrics()
	if len(conns) == 0 {
		return m
	}

	windowStart := now.Add(-entity.MetricsWindow)
	inWindow := func(t time.Time) bool {
		return !t.Before(windowStart) && !t.After(now)
	}

	stats := make(map[int64]*listenerStats, len(conns))
	for _, c := range conns {
		if _, seen := stats[c.ID]; seen {
			continue
		}
		stats[c.ID] = &listenerStats{}

		if inWindow(c.CreatedAt) {
			m.Last7Days.NewConnections++
		}
	}

	for _, p := range plays {
		s, ok := stats[p.ConnectionID]
		if !ok {
			continue
		}

		minutes := float64(max(p.DurationMs, 0)) / float64(time.Minute/time.Millisecond)

		s.plays++
		s.minutes += minutes
		m.TotalTracksPlayed++
		m.TotalMinutesListened += minutes

		if inWindow(p.PlayedAt) {
			s.windowPlays++
			s.windowMinutes += minutes
			m.Last7Days.TracksPlayed++
		}
	}

	m.TotalConnections = int64(len(stats))

	for _, s := range stats {
		if s.plays > 0 {
			m.TotalActiveListeners++
		}
		if th.qualifies(s.plays, s.minutes) {
			m.TotalSuperListeners++
		}
		if s.windowPlays > 0 {
			m.Last7Days.ActiveListeners++
		}
		if th.qualifies(s.windowPlays, s.windowMinutes) {
			m.Last7Days.SuperListeners++
		}
	}

	m.RecentConnections = recentConnections(conns, entity.RecentConnectionsLimit)

	return m
}

func recentConnections(conns []entity.Connection, limit int) []entity.ConnectionSummary {
	sorted := slices.Clone(conns)
	slices.SortFunc(sorted, func(a, b entity.Connection) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	sorted = sorted[:min(len(sorted), limit)]

	recent := make([]entity.ConnectionSummary, 0, len(sorted))
	for _, c := range sorted {
		recent = append(recent, entity.ConnectionSummary{
			ID:          c.ID,
			ListenerID:  c.ListenerID,
			DisplayName: c.DisplayName,
			CreatedAt:   c.CreatedAt,
		})
	}

	return recent
}
