// Package recoverer turns handler panics into logged 500 responses.
package recoverer

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/render"
	"github.com/vadimbarashkov/playlist-tracker/pkg/middleware"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var serverErrorResponse = errorResponse{
	Status:  "error",
	Message: "server error occurred",
}

func New(logger *slog.Logger) middleware.Middleware {
	const op = "middleware.recoverer.New"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Aborting a response is signalled with this panic and must propagate.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(),
					"something went wrong, panic occurred",
					slog.Group(op,
						slog.String("err", fmt.Sprint(rec)),
						slog.String("stack", string(debug.Stack())),
					),
				)

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, serverErrorResponse)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
