package dashboard

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	SiteSummary(ctx context.Context, actor user.Actor, siteID int64) (*SiteSummary, error)
	CategorySpend(ctx context.Context, actor user.Actor, siteID int64) ([]CategorySpend, error)
	InboxCount(ctx context.Context, actor user.Actor) (int, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	actorOf user.ActorResolver
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, actorOf user.ActorResolver) *Handler {
	return &Handler{BaseHandler: base, Service: svc, actorOf: actorOf}
}

func (h *Handler) GetSiteSummary(w http.ResponseWriter, r *http.Request) {
	actor, siteID, ok := h.siteRequest(w, r)
	if !ok {
		return
	}

	summary, err := h.Service.SiteSummary(r.Context(), actor, siteID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetCategorySpend(w http.ResponseWriter, r *http.Request) {
	actor, siteID, ok := h.siteRequest(w, r)
	if !ok {
		return
	}

	spend, err := h.Service.CategorySpend(r.Context(), actor, siteID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": spend})
}

func (h *Handler) GetInboxCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	count, err := h.Service.InboxCount(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]int{"pending": count})
}

func (h *Handler) siteRequest(w http.ResponseWriter, r *http.Request) (user.Actor, int64, bool) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return user.Actor{}, 0, false
	}

	siteID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid site ID")
		return user.Actor{}, 0, false
	}
	return actor, siteID, true
}
