package user

import "strings"

type Role string

const (
	RoleSubmitter  Role = "submitter"
	RoleL1Approver Role = "l1_approver"
	RoleL2Approver Role = "l2_approver"
	RoleL3Approver Role = "l3_approver"
	RoleFinance    Role = "finance"
)

// MaxApprovalLevel is the top of the approval ladder.
const MaxApprovalLevel = 3

var roleLevels = map[Role]int{
	RoleSubmitter:  0,
	RoleL1Approver: 1,
	RoleL2Approver: 2,
	RoleL3Approver: 3,
	RoleFinance:    0,
}

var approverRoles = map[int]Role{
	1: RoleL1Approver,
	2: RoleL2Approver,
	3: RoleL3Approver,
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := roleLevels[r]
	return r, ok
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level is the single approval level the role may act at; 0 for roles that
// never approve.
func (r Role) Level() int {
	return roleLevels[r]
}

// CrossSite roles are not bound to a single site.
func (r Role) CrossSite() bool {
	return r == RoleL3Approver || r == RoleFinance
}

// ApproverRole returns the role that acts at level.
func ApproverRole(level int) (Role, bool) {
	r, ok := approverRoles[level]
	return r, ok
}

type Capability string

const (
	CapCreateExpense   Capability = "create_expense"
	CapApproveExpense  Capability = "approve_expense"
	CapProcessPayment  Capability = "process_payment"
	CapCancelAny       Capability = "cancel_any_expense"
	CapViewSiteExpense Capability = "view_site_expenses"
	CapViewAllExpense  Capability = "view_all_expenses"
	CapManageUsers     Capability = "manage_users"
	CapManageSites     Capability = "manage_sites"
	CapViewReports     Capability = "view_reports"
	CapManageBudgets   Capability = "manage_budgets"
)

// capabilities is resolved at check time and never persisted per user.
var capabilities = map[Role][]Capability{
	RoleSubmitter: {CapCreateExpense},
	RoleL1Approver: {
		CapCreateExpense, CapApproveExpense, CapViewSiteExpense,
	},
	RoleL2Approver: {
		CapCreateExpense, CapApproveExpense, CapViewSiteExpense, CapViewReports,
	},
	RoleL3Approver: {
		CapCreateExpense, CapApproveExpense, CapCancelAny, CapViewSiteExpense, CapViewAllExpense,
		CapViewReports, CapManageUsers, CapManageSites, CapManageBudgets,
	},
	RoleFinance: {
		CapProcessPayment, CapViewAllExpense, CapViewReports, CapManageBudgets,
	},
}

func (r Role) Capabilities() []Capability {
	caps := capabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

func (r Role) Can(c Capability) bool {
	for _, have := range capabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// RolesWith lists roles granted c.
func RolesWith(c Capability) []Role {
	var roles []Role
	for _, r := range []Role{RoleSubmitter, RoleL1Approver, RoleL2Approver, RoleL3Approver, RoleFinance} {
		if r.Can(c) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Actor is the authenticated caller, resolved before any domain call.
type Actor struct {
	ID     int64
	Role   Role
	SiteID *int64
}

func (a Actor) Can(c Capability) bool {
	return a.Role.Can(c)
}

// InSite reports whether the actor may act on records of siteID.
func (a Actor) InSite(siteID int64) bool {
	if a.Role.CrossSite() {
		return true
	}
	return a.SiteID != nil && *a.SiteID == siteID
}
