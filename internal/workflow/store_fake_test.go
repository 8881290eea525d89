package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/site"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/frahmantamala/expense-approval/internal/workflow"
	"github.com/shopspring/decimal"
)

type memUser struct {
	ID     int64
	Role   user.Role
	SiteID int64
	Active bool
}

type memState struct {
	expenses  map[int64]expense.Expense
	sites     map[int64]site.Site
	pending   []workflow.PendingApprover
	history   []workflow.HistoryEntry
	payments  map[int64]workflow.Payment
	spend     map[int64]decimal.Decimal
	siteSpend map[int64]decimal.Decimal
	pendingID int64
}

func (s memState) clone() memState {
	c := memState{
		expenses:  make(map[int64]expense.Expense, len(s.expenses)),
		sites:     make(map[int64]site.Site, len(s.sites)),
		pending:   append([]workflow.PendingApprover(nil), s.pending...),
		history:   append([]workflow.HistoryEntry(nil), s.history...),
		payments:  make(map[int64]workflow.Payment, len(s.payments)),
		spend:     make(map[int64]decimal.Decimal, len(s.spend)),
		siteSpend: make(map[int64]decimal.Decimal, len(s.siteSpend)),
		pendingID: s.pendingID,
	}
	for k, v := range s.expenses {
		v.PolicyFlags = append([]string{}, v.PolicyFlags...)
		c.expenses[k] = v
	}
	for k, v := range s.sites {
		c.sites[k] = cloneSite(v)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.spend {
		c.spend[k] = v
	}
	for k, v := range s.siteSpend {
		c.siteSpend[k] = v
	}
	return c
}

func cloneSite(s site.Site) site.Site {
	if s.Stats.CategorySpend != nil {
		m := make(map[string]decimal.Decimal, len(s.Stats.CategorySpend))
		for k, v := range s.Stats.CategorySpend {
			m[k] = v
		}
		s.Stats.CategorySpend = m
	}
	return s
}

// memStore implements workflow.Store and workflow.Tx. WithinTx restores the
// previous state when fn fails.
type memStore struct {
	state memState
	users []memUser

	failCreatePending error
	conflictOnSave    bool
	lookupErr         error
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		expenses:  map[int64]expense.Expense{},
		sites:     map[int64]site.Site{},
		payments:  map[int64]workflow.Payment{},
		spend:     map[int64]decimal.Decimal{},
		siteSpend: map[int64]decimal.Decimal{},
	}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, m); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) GetExpense(_ context.Context, id int64) (*expense.Expense, error) {
	e, ok := m.state.expenses[id]
	if !ok {
		return nil, internal.ErrExpenseNotFound
	}
	e.PolicyFlags = append([]string{}, e.PolicyFlags...)
	return &e, nil
}

func (m *memStore) History(_ context.Context, expenseID int64) ([]workflow.HistoryEntry, error) {
	var out []workflow.HistoryEntry
	for _, h := range m.state.history {
		if h.ExpenseID == expenseID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) PendingApprovers(ctx context.Context, expenseID int64) ([]workflow.PendingApprover, error) {
	return m.ListPendingApprovers(ctx, expenseID, 0)
}

func (m *memStore) Inbox(ctx context.Context, approverID int64, _, _ int) ([]*expense.Expense, error) {
	seen := map[int64]bool{}
	var out []*expense.Expense
	for _, p := range m.state.pending {
		if p.ApproverID == approverID && p.Status.Active() && !seen[p.ExpenseID] {
			seen[p.ExpenseID] = true
			e, _ := m.GetExpense(ctx, p.ExpenseID)
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) GetExpenseForUpdate(ctx context.Context, id int64) (*expense.Expense, error) {
	return m.GetExpense(ctx, id)
}

func (m *memStore) SaveExpense(_ context.Context, e *expense.Expense) error {
	stored, ok := m.state.expenses[e.ID]
	if !ok {
		return internal.ErrExpenseNotFound
	}
	if m.conflictOnSave || stored.Version != e.Version {
		return internal.ErrConcurrentModification
	}
	e.Version++
	cp := *e
	cp.PolicyFlags = append([]string{}, e.PolicyFlags...)
	m.state.expenses[e.ID] = cp
	return nil
}

func (m *memStore) NumberTaken(_ context.Context, number string, excludeID int64) (bool, error) {
	for id, e := range m.state.expenses {
		if id != excludeID && e.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetSite(_ context.Context, siteID int64) (*site.Site, error) {
	s, ok := m.state.sites[siteID]
	if !ok {
		return nil, internal.ErrSiteNotFound
	}
	cp := cloneSite(s)
	return &cp, nil
}

func (m *memStore) ListPendingApprovers(_ context.Context, expenseID int64, level int) ([]workflow.PendingApprover, error) {
	var out []workflow.PendingApprover
	for _, p := range m.state.pending {
		if p.ExpenseID == expenseID && p.Status.Active() && (level == 0 || p.Level == level) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreatePendingApprovers(_ context.Context, expenseID int64, level int, approverIDs []int64, at time.Time) error {
	if m.failCreatePending != nil {
		return m.failCreatePending
	}
	for _, id := range approverIDs {
		m.state.pendingID++
		m.state.pending = append(m.state.pending, workflow.PendingApprover{
			ID:         m.state.pendingID,
			ExpenseID:  expenseID,
			Level:      level,
			ApproverID: id,
			Status:     workflow.PendingStatusPending,
			AssignedAt: at,
		})
	}
	return nil
}

func (m *memStore) RetirePendingApprovers(_ context.Context, expenseID int64, level int, actedBy *int64, at time.Time) error {
	for i, p := range m.state.pending {
		if p.ExpenseID != expenseID || !p.Status.Active() || (level != 0 && p.Level != level) {
			continue
		}
		resolved := at
		p.ResolvedAt = &resolved
		p.Status = workflow.PendingStatusCancelled
		if actedBy != nil && p.ApproverID == *actedBy {
			p.Status = workflow.PendingStatusCompleted
		}
		m.state.pending[i] = p
	}
	return nil
}

func (m *memStore) AppendHistory(_ context.Context, h *workflow.HistoryEntry) error {
	h.ID = int64(len(m.state.history) + 1)
	m.state.history = append(m.state.history, *h)
	return nil
}

func (m *memStore) ActiveApproversForSite(_ context.Context, siteID int64, level int) ([]int64, error) {
	role, _ := user.ApproverRole(level)
	var ids []int64
	for _, u := range m.users {
		if u.Active && u.Role == role && u.SiteID == siteID {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *memStore) ActiveL3Approvers(_ context.Context) ([]int64, error) {
	var ids []int64
	for _, u := range m.users {
		if u.Active && u.Role == user.RoleL3Approver {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *memStore) RecordPayment(_ context.Context, p workflow.Payment) (bool, error) {
	if _, ok := m.state.payments[p.ExpenseID]; ok {
		return false, nil
	}
	m.state.payments[p.ExpenseID] = p
	return true, nil
}

func (m *memStore) InsertSpendEntry(_ context.Context, expenseID, _ int64, _ string, amount decimal.Decimal, _ time.Time) (bool, error) {
	if _, ok := m.state.spend[expenseID]; ok {
		return false, nil
	}
	m.state.spend[expenseID] = amount
	return true, nil
}

func (m *memStore) AddSiteSpend(_ context.Context, siteID int64, category string, amount decimal.Decimal) error {
	m.state.siteSpend[siteID] = m.state.siteSpend[siteID].Add(amount)
	s := cloneSite(m.state.sites[siteID])
	s.Stats.MonthlySpend = s.Stats.MonthlySpend.Add(amount)
	s.Stats.YearlySpend = s.Stats.YearlySpend.Add(amount)
	if s.Stats.CategorySpend == nil {
		s.Stats.CategorySpend = map[string]decimal.Decimal{}
	}
	s.Stats.CategorySpend[category] = s.Stats.CategorySpend[category].Add(amount)
	m.state.sites[siteID] = s
	return nil
}

func (m *memStore) ReceiptHashExists(_ context.Context, hash string, excludeID int64) (bool, error) {
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	for id, e := range m.state.expenses {
		if id != excludeID && e.ReceiptHash != nil && *e.ReceiptHash == hash && e.Status != expense.StatusDraft {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) NormalizedKeyExists(_ context.Context, submitterID int64, key string, from, to time.Time, excludeID int64) (bool, error) {
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	for id, e := range m.state.expenses {
		if id == excludeID || e.SubmitterID != submitterID || e.NormalizedKey != key {
			continue
		}
		if !e.ExpenseDate.Before(from) && e.ExpenseDate.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

// activeApprovers returns the sorted approver ids of active rows at level.
func (m *memStore) activeApprovers(expenseID int64, level int) []int64 {
	var ids []int64
	for _, p := range m.state.pending {
		if p.ExpenseID == expenseID && p.Level == level && p.Status.Active() {
			ids = append(ids, p.ApproverID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *memStore) activeCount(expenseID int64) int {
	n := 0
	for _, p := range m.state.pending {
		if p.ExpenseID == expenseID && p.Status.Active() {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.EventType()
	}
	return out
}

func (n *recordingNotifier) last() events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return nil
	}
	return n.events[len(n.events)-1]
}

var errBoom = errors.New("boom")

// memDirectory serves the fake store's users to the notification dispatcher.
type memDirectory struct {
	store *memStore
}

func (d memDirectory) GetByIDs(_ context.Context, ids []int64) ([]*user.User, error) {
	var out []*user.User
	for _, id := range ids {
		for _, u := range d.store.users {
			if u.ID == id {
				out = append(out, d.toUser(u))
			}
		}
	}
	return out, nil
}

func (d memDirectory) ListWithCapability(_ context.Context, siteID int64, c user.Capability) ([]*user.User, error) {
	var out []*user.User
	for _, u := range d.store.users {
		if u.Active && u.Role.Can(c) && (u.Role.CrossSite() || u.SiteID == siteID) {
			out = append(out, d.toUser(u))
		}
	}
	return out, nil
}

func (memDirectory) toUser(u memUser) *user.User {
	out := &user.User{ID: u.ID, Email: fmt.Sprintf("user%d@example.com", u.ID), Role: u.Role, IsActive: u.Active}
	if u.SiteID != 0 {
		siteID := u.SiteID
		out.SiteID = &siteID
	}
	return out
}
