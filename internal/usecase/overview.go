package usecase

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const DefaultOverviewConcurrency = 8

type overviewStore interface {
	ListActiveLinks(ctx context.Context) ([]entity.TrackingLink, error)
	ListLinksByIDs(ctx context.Context, ids []int64) ([]entity.TrackingLink, error)
	CountClicks(ctx context.Context, linkID int64) (int64, error)
}

type metricsProvider interface {
	ComputeMetrics(ctx context.Context, linkID int64) (*entity.LinkMetrics, error)
}

type OverviewUseCase struct {
	store       overviewStore
	metrics     metricsProvider
	logger      *slog.Logger
	concurrency int
}

func NewOverviewUseCase(store overviewStore, metrics metricsProvider, logger *slog.Logger, concurrency int) *OverviewUseCase {
	if concurrency <= 0 {
		concurrency = DefaultOverviewConcurrency
	}

	return &OverviewUseCase{
		store:       store,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

// AssembleOverview returns the given links with their clicks and metrics,
// newest first. A link whose numbers cannot be computed is reported with zeros.
func (uc *OverviewUseCase) AssembleOverview(ctx context.Context, linkIDs []int64) ([]entity.LinkOverview, error) {
	const op = "usecase.OverviewUseCase.AssembleOverview"

	links, err := uc.store.ListLinksByIDs(ctx, linkIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load links: %w", op, err)
	}

	overview, err := uc.assemble(ctx, links)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return overview, nil
}

// ActiveOverview is AssembleOverview over every active link.
func (uc *OverviewUseCase) ActiveOverview(ctx context.Context) ([]entity.LinkOverview, error) {
	const op = "usecase.OverviewUseCase.ActiveOverview"

	links, err := uc.store.ListActiveLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load active links: %w", op, err)
	}

	overview, err := uc.assemble(ctx, links)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return overview, nil
}

func (uc *OverviewUseCase) assemble(ctx context.Context, links []entity.TrackingLink) ([]entity.LinkOverview, error) {
	links = slices.Clone(links)
	slices.SortFunc(links, func(a, b entity.TrackingLink) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	overview := make([]entity.LinkOverview, len(links))

	var g errgroup.Group
	g.SetLimit(uc.concurrency)

	for i, link := range links {
		g.Go(func() error {
			overview[i] = uc.linkOverview(ctx, link)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return overview, nil
}

func (uc *OverviewUseCase) linkOverview(ctx context.Context, link entity.TrackingLink) entity.LinkOverview {
	zero := entity.LinkOverview{Link: link, Metrics: *entity.ZeroLinkMetrics()}

	if ctx.Err() != nil {
		return zero
	}

	m, err := uc.metrics.ComputeMetrics(ctx, link.ID)
	if err != nil {
		uc.warn(ctx, link, "failed to compute link metrics", err)
		return zero
	}

	clicks, err := uc.store.CountClicks(ctx, link.ID)
	if err != nil {
		uc.warn(ctx, link, "failed to count link clicks", err)
		return zero
	}

	return entity.LinkOverview{Link: link, Clicks: clicks, Metrics: *m}
}

func (uc *OverviewUseCase) warn(ctx context.Context, link entity.TrackingLink, msg string, err error) {
	if ctx.Err() != nil {
		return
	}

	metrics.OverviewZeroedEntries.Inc()

	uc.logger.WarnContext(ctx, msg,
		slog.Int64("link_id", link.ID),
		slog.String("slug", link.Slug),
		slog.String("error", err.Error()),
	)
}
