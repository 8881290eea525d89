package site

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, actor user.Actor, dto CreateSiteDTO) (*Site, error)
	Update(ctx context.Context, actor user.Actor, id int64, dto UpdateSiteDTO) (*Site, error)
	Get(ctx context.Context, actor user.Actor, id int64) (*Site, error)
	List(ctx context.Context, actor user.Actor) ([]*Site, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	actorOf user.ActorResolver
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, actorOf user.ActorResolver) *Handler {
	return &Handler{BaseHandler: base, Service: svc, actorOf: actorOf}
}

func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	var dto CreateSiteDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, st)
}

func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid site ID")
		return
	}

	var dto UpdateSiteDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := h.Service.Update(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid site ID")
		return
	}

	st, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	sites, err := h.Service.List(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"sites": sites})
}
