package payment

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	GetForExpense(ctx context.Context, actor user.Actor, expenseID int64) (*Payment, error)
	List(ctx context.Context, actor user.Actor, filter ListFilter) ([]*Payment, []Total, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	actorOf user.ActorResolver
	now     func() time.Time
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, actorOf user.ActorResolver) *Handler {
	return &Handler{BaseHandler: base, Service: svc, actorOf: actorOf, now: time.Now}
}

// GetExpensePayment handles GET /expenses/{id}/payment
func (h *Handler) GetExpensePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return
	}

	p, err := h.Service.GetForExpense(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// ListPayments handles GET /payments?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOf(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthenticated)
		return
	}

	filter, err := ParseListFilter(r.URL.Query(), h.now())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	filter.Limit, filter.Offset = transport.Pagination(r)

	payments, totals, err := h.Service.List(r.Context(), actor, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"totals":   totals,
		"from":     filter.From.Format(dateLayout),
		"to":       filter.To.AddDate(0, 0, -1).Format(dateLayout),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}
