package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/go-chi/chi"
)

type EngineAPI interface {
	Submit(ctx context.Context, actor user.Actor, expenseID int64) (*expense.Expense, error)
	Approve(ctx context.Context, actor user.Actor, expenseID int64, dto ApproveDTO) (*expense.Expense, error)
	Reject(ctx context.Context, actor user.Actor, expenseID int64, dto RejectDTO) (*expense.Expense, error)
	ProcessPayment(ctx context.Context, actor user.Actor, expenseID int64, dto PaymentDTO) (*expense.Expense, error)
	Cancel(ctx context.Context, actor user.Actor, expenseID int64, dto CancelDTO) (*expense.Expense, error)
	History(ctx context.Context, actor user.Actor, expenseID int64) ([]HistoryEntry, error)
	PendingApprovers(ctx context.Context, actor user.Actor, expenseID int64) ([]PendingApprover, error)
	Inbox(ctx context.Context, actor user.Actor, limit, offset int) ([]*expense.Expense, error)
}

type Handler struct {
	*transport.BaseHandler
	Engine  EngineAPI
	actorOf user.ActorResolver
}

func NewHandler(base *transport.BaseHandler, engine EngineAPI, actorOf user.ActorResolver) *Handler {
	return &Handler{BaseHandler: base, Engine: engine, actorOf: actorOf}
}

func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	e, err := h.Engine.Submit(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	var dto ApproveDTO
	if !h.decode(w, r, &dto) {
		return
	}

	e, err := h.Engine.Approve(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	var dto RejectDTO
	if !h.decode(w, r, &dto) {
		return
	}

	e, err := h.Engine.Reject(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	var dto PaymentDTO
	if !h.decodeOptional(w, r, &dto) {
		return
	}

	e, err := h.Engine.ProcessPayment(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) CancelExpense(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	var dto CancelDTO
	if !h.decode(w, r, &dto) {
		return
	}

	e, err := h.Engine.Cancel(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	entries, err := h.Engine.History(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func (h *Handler) GetPendingApprovers(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.request(w, r)
	if !ok {
		return
	}

	pending, err := h.Engine.PendingApprovers(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"pending_approvers": pending})
}

func (h *Handler) GetInbox(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	limit, offset := transport.Pagination(r)
	expenses, err := h.Engine.Inbox(r.Context(), actor, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) (user.Actor, int64, bool) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return user.Actor{}, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return user.Actor{}, 0, false
	}
	return actor, id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.Logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
