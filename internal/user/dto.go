package user

import (
	"strings"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
)

type CreateUserDTO struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	SiteID     *int64 `json:"site_id,omitempty"`
	Department string `json:"department,omitempty"`
}

func (d CreateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(255).Custom(func(value interface{}) *internal.AppError {
		if s, _ := value.(string); s != "" && !strings.Contains(s, "@") {
			return internal.NewValidationFieldError("email", "email is invalid", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	v.Field("name", d.Name).Required().MaxLength(255)
	v.Field("password", d.Password).Required().MinLength(8)
	v.Field("role", d.Role).Required().Custom(func(value interface{}) *internal.AppError {
		if s, _ := value.(string); s != "" {
			if _, ok := ParseRole(s); !ok {
				return internal.NewValidationFieldError("role", "role is not recognised", internal.ErrCodeInvalidRole)
			}
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return err
	}

	role, _ := ParseRole(d.Role)
	if !role.CrossSite() && d.SiteID == nil {
		return internal.NewValidationFieldError("site_id", "site_id is required for site-scoped roles", internal.ErrCodeMissingSiteForSiteScoped)
	}
	return nil
}

type UpdateUserDTO struct {
	Role     *string `json:"role,omitempty"`
	SiteID   *int64  `json:"site_id,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}
