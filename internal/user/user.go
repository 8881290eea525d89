package user

import (
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	SiteID       *int64    `json:"site_id,omitempty"`
	Department   string    `json:"department,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, SiteID: u.SiteID}
}

func (u *User) Capabilities() []Capability {
	return u.Role.Capabilities()
}

var ErrNotFound = internal.ErrUserNotFound

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		SiteID:       u.SiteID,
		Department:   u.Department,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         Role(u.Role),
		SiteID:       u.SiteID,
		Department:   u.Department,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// UserView is the API shape of a user, capabilities included.
type UserView struct {
	*User
	Capabilities []Capability `json:"capabilities"`
}

func (u *User) ToView() UserView {
	return UserView{User: u, Capabilities: u.Capabilities()}
}
