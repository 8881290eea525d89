package site

import "strings"

type CreateSiteDTO struct {
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	City       string     `json:"city,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Budget     Budget     `json:"budget"`
	Thresholds Thresholds `json:"thresholds"`
	Policy     Policy     `json:"policy"`
}

func (d CreateSiteDTO) toSite() *Site {
	return &Site{
		Code:       strings.ToUpper(strings.TrimSpace(d.Code)),
		Name:       strings.TrimSpace(d.Name),
		City:       d.City,
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		Budget:     d.Budget,
		Thresholds: d.Thresholds,
		Policy:     d.Policy,
		IsActive:   true,
	}
}

// UpdateSiteDTO replaces whole sections; nil sections are left untouched.
type UpdateSiteDTO struct {
	Name       *string     `json:"name,omitempty"`
	City       *string     `json:"city,omitempty"`
	Budget     *Budget     `json:"budget,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
	Policy     *Policy     `json:"policy,omitempty"`
	IsActive   *bool       `json:"is_active,omitempty"`
}

func (d UpdateSiteDTO) apply(s *Site) {
	if d.Name != nil {
		s.Name = strings.TrimSpace(*d.Name)
	}
	if d.City != nil {
		s.City = *d.City
	}
	if d.Budget != nil {
		s.Budget = *d.Budget
	}
	if d.Thresholds != nil {
		s.Thresholds = *d.Thresholds
	}
	if d.Policy != nil {
		s.Policy = *d.Policy
	}
	if d.IsActive != nil {
		s.IsActive = *d.IsActive
	}
}
