package category

import (
	"strings"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	categoryDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/category"
)

// Name is the closed set of expense categories.
type Name string

const (
	Travel         Name = "Travel"
	Food           Name = "Food"
	Accommodation  Name = "Accommodation"
	VehicleKM      Name = "Vehicle KM"
	Fuel           Name = "Fuel"
	Equipment      Name = "Equipment"
	Maintenance    Name = "Maintenance"
	OfficeSupplies Name = "Office Supplies"
	Miscellaneous  Name = "Miscellaneous"
)

var ErrUnknownCategory = internal.NewValidationError("unknown category", internal.ErrCodeInvalidCategory)

var catalogue = []struct {
	name        Name
	description string
}{
	{Travel, "Transport tickets, taxis and other travel costs"},
	{Food, "Meals and refreshments"},
	{Accommodation, "Hotel and lodging"},
	{VehicleKM, "Private vehicle mileage reimbursement"},
	{Fuel, "Fuel for company or rented vehicles"},
	{Equipment, "Tools and equipment purchases"},
	{Maintenance, "Repairs and maintenance"},
	{OfficeSupplies, "Stationery and office consumables"},
	{Miscellaneous, "Anything not covered by other categories"},
}

func All() []Name {
	names := make([]Name, len(catalogue))
	for i, c := range catalogue {
		names[i] = c.name
	}
	return names
}

// Parse accepts the display name case-insensitively, or the code form
// ("vehicle_km").
func Parse(s string) (Name, bool) {
	s = strings.TrimSpace(s)
	for _, c := range catalogue {
		if strings.EqualFold(string(c.name), s) || strings.EqualFold(c.name.Code(), s) {
			return c.name, true
		}
	}
	return "", false
}

func (n Name) Valid() bool {
	_, ok := Parse(string(n))
	return ok
}

// Code is the lower snake form used as a stable key.
func (n Name) Code() string {
	return strings.ToLower(strings.ReplaceAll(string(n), " ", "_"))
}

// FlagSuffix is the upper snake form used in policy flags (OVER_LIMIT_VEHICLE_KM).
func (n Name) FlagSuffix() string {
	return strings.ToUpper(n.Code())
}

type Category struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        Name      `json:"name"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Category) IsActiveCategory() bool {
	return c.IsActive && c.Name.Valid()
}

func (c *Category) ToResponse() CategoryResponse {
	return CategoryResponse{
		Code:        c.Code,
		Name:        string(c.Name),
		Description: c.Description,
	}
}

func ToDataModel(c *Category) *categoryDatamodel.ExpenseCategory {
	return &categoryDatamodel.ExpenseCategory{
		ID:          c.ID,
		Code:        c.Code,
		Name:        string(c.Name),
		Description: c.Description,
		SortOrder:   c.SortOrder,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func FromDataModel(c *categoryDatamodel.ExpenseCategory) *Category {
	return &Category{
		ID:          c.ID,
		Code:        c.Code,
		Name:        Name(c.Name),
		Description: c.Description,
		SortOrder:   c.SortOrder,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
