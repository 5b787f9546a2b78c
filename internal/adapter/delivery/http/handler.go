package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

type linkUseCase interface {
	CreateLink(ctx context.Context, playlistRef string, title *string) (*entity.TrackingLink, error)
	ResolveLink(ctx context.Context, slug string) (*entity.TrackingLink, error)
	FindLink(ctx context.Context, id int64) (*entity.TrackingLink, error)
	DeactivateLink(ctx context.Context, slug string) error
	PreviewPlaylist(ctx context.Context, playlistRef string) (*entity.PlaylistPreview, error)
	ShortURL(slug string) string
}

type overviewUseCase interface {
	ActiveOverview(ctx context.Context) ([]entity.LinkOverview, error)
}

type metricsUseCase interface {
	ComputeMetrics(ctx context.Context, linkID int64) (*entity.LinkMetrics, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the dependencies of the HTTP handlers.
type Services struct {
	Links    linkUseCase
	Overview overviewUseCase
	Metrics  metricsUseCase
	Store    pinger
	// MissingConfig lists required settings that are not set; reported by the health check.
	MissingConfig []string
}

type handler struct {
	svc      Services
	validate *validator.Validate
	now      func() time.Time
}

func newHandler(svc Services, validate *validator.Validate) *handler {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &handler{
		svc:      svc,
		validate: validate,
		now:      time.Now,
	}
}

// serverError logs err on the request log entry and answers with a 500 response.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

	resp := serverErrorResponse
	if errors.Is(err, entity.ErrStoreUnavailable) {
		resp = storeUnavailableResponse
	}

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, resp)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    statusOK,
		Timestamp: h.now().UTC(),
		Checks: healthChecks{
			Database: "connected",
			Config:   "complete",
		},
		MissingConfig: h.svc.MissingConfig,
	}

	if len(h.svc.MissingConfig) > 0 {
		resp.Checks.Config = "incomplete"
	}

	status := http.StatusOK
	if err := h.svc.Store.Ping(r.Context()); err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		resp.Status = statusError
		resp.Checks.Database = statusError
		status = http.StatusInternalServerError
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func (h *handler) createLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	link, err := h.svc.Links.CreateLink(r.Context(), req.PlaylistURL, req.Title)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidPlaylistRef) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, invalidPlaylistResponse)
			return
		}

		serverError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, createLinkResponse{
		Link: toLinkResponse(link),
		URL:  h.svc.Links.ShortURL(link.Slug),
	})
}

func (h *handler) listLinks(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.Overview.ActiveOverview(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}

	resp := make([]overviewResponse, 0, len(overview))
	for i := range overview {
		o := &overview[i]
		resp = append(resp, overviewResponse{
			Link:    toLinkResponse(&o.Link),
			URL:     h.svc.Links.ShortURL(o.Link.Slug),
			Clicks:  o.Clicks,
			Metrics: toMetricsResponse(&o.Metrics),
		})
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func (h *handler) linkMetrics(w http.ResponseWriter, r *http.Request) {
	linkID, err := strconv.ParseInt(chi.URLParam(r, "linkID"), 10, 64)
	if err != nil || linkID <= 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidLinkIDResponse)
		return
	}

	if _, err := h.svc.Links.FindLink(r.Context(), linkID); err != nil {
		if errors.Is(err, entity.ErrLinkNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, linkNotFoundResponse)
			return
		}

		serverError(w, r, err)
		return
	}

	m, err := h.svc.Metrics.ComputeMetrics(r.Context(), linkID)
	if err != nil {
		serverError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toMetricsResponse(m))
}

func (h *handler) deactivateLink(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.svc.Links.DeactivateLink(r.Context(), slug); err != nil {
		if errors.Is(err, entity.ErrLinkNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, linkNotFoundResponse)
			return
		}

		serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) previewPlaylist(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("playlistId")
	if ref == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidPlaylistResponse)
		return
	}

	preview, err := h.svc.Links.PreviewPlaylist(r.Context(), ref)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidPlaylistRef) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, invalidPlaylistResponse)
			return
		}

		serverError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toPreviewResponse(preview))
}

func (h *handler) redirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	link, err := h.svc.Links.ResolveLink(r.Context(), slug)
	if err != nil {
		if errors.Is(err, entity.ErrLinkNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, linkNotFoundResponse)
			return
		}

		serverError(w, r, err)
		return
	}

	http.Redirect(w, r, link.Playlist.WebURL(), http.StatusFound)
}
