package expense

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	CreateDraft(ctx context.Context, actor user.Actor, dto CreateDraftDTO) (*Expense, error)
	UpdateDraft(ctx context.Context, actor user.Actor, id int64, dto UpdateDraftDTO) (*Expense, error)
	DeleteDraft(ctx context.Context, actor user.Actor, id int64) error
	Get(ctx context.Context, actor user.Actor, id int64) (*Expense, error)
	List(ctx context.Context, actor user.Actor, filter ListFilter, mine bool) ([]*Expense, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	actorOf user.ActorResolver
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, actorOf user.ActorResolver) *Handler {
	return &Handler{BaseHandler: base, Service: svc, actorOf: actorOf}
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	var dto CreateDraftDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Warn("CreateExpense: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.Service.CreateDraft(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}

	var dto UpdateDraftDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.Service.UpdateDraft(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteDraft(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}

	e, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, e)
}

// ListExpenses handles GET /expenses?status=a,b&site_id=&mine=true
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	q := r.URL.Query()
	filter := ListFilter{}
	filter.Limit, filter.Offset = transport.Pagination(r)

	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			st := Status(strings.TrimSpace(s))
			if !st.Valid() {
				h.WriteError(w, http.StatusBadRequest, "unknown status "+string(st))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if v := q.Get("site_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid site_id")
			return
		}
		filter.SiteID = &id
	}
	mine, _ := strconv.ParseBool(q.Get("mine"))

	expenses, err := h.Service.List(r.Context(), actor, filter, mine)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return 0, false
	}
	return id, true
}
