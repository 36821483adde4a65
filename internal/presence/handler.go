package presence

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deskhive/deskhive/internal/platform/httpx"
	"github.com/deskhive/deskhive/internal/shared"
)

// Handler exposes the heartbeat and online listing.
type Handler struct {
	logger  *slog.Logger
	tracker *Tracker
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, tracker *Tracker) *Handler {
	return &Handler{logger: logger, tracker: tracker}
}

// MountRoutes registers presence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/heartbeat", h.heartbeat)
	r.Get("/online", h.online)
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if err := h.tracker.Heartbeat(r.Context(), identity.UserID); err != nil {
		h.logger.Error("heartbeat", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"online": true})
}

func (h *Handler) online(w http.ResponseWriter, r *http.Request) {
	ids, err := h.tracker.Online(r.Context())
	if err != nil {
		h.logger.Error("online listing", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"online": ids, "count": len(ids)})
}
