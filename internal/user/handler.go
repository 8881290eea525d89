package user

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
	Create(ctx context.Context, actor Actor, dto CreateUserDTO) (*User, error)
	Update(ctx context.Context, actor Actor, userID int64, dto UpdateUserDTO) (*User, error)
	List(ctx context.Context, actor Actor, filter ListFilter) ([]*User, error)
}

// ActorResolver reads the authenticated actor from the request context.
type ActorResolver func(ctx context.Context) (Actor, bool)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	actorOf ActorResolver
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, actorOf ActorResolver) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
		actorOf:     actorOf,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	u, err := h.Service.GetByID(r.Context(), actor.ID)
	if err != nil {
		h.Logger.Error("GetCurrentUser: service GetByID failed", "user_id", actor.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u.ToView())
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	var dto CreateUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, u.ToView())
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var dto UpdateUserDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Service.Update(r.Context(), actor, userID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u.ToView())
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	filter := ListFilter{}
	q := r.URL.Query()
	if v := q.Get("site_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.SiteID = &id
		}
	}
	if v := q.Get("role"); v != "" {
		if role, ok := ParseRole(v); ok {
			filter.Roles = []Role{role}
		}
	}
	filter.Limit, filter.Offset = transport.Pagination(r)

	users, err := h.Service.List(r.Context(), actor, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	views := make([]UserView, len(users))
	for i, u := range users {
		views[i] = u.ToView()
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users":  views,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}
