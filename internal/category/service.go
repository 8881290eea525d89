package category

import (
	"log/slog"

	categoryDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/category"
)

type RepositoryAPI interface {
	GetAll() ([]*categoryDatamodel.ExpenseCategory, error)
	GetByName(name string) (*categoryDatamodel.ExpenseCategory, error)
	Create(category *categoryDatamodel.ExpenseCategory) error
	Update(category *categoryDatamodel.ExpenseCategory) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetAllCategories lists the active catalogue rows. Rows whose name is not
// part of the closed set are ignored.
func (s *Service) GetAllCategories() ([]CategoryResponse, error) {
	dataCategories, err := s.repo.GetAll()
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, err
	}

	responses := make([]CategoryResponse, 0, len(dataCategories))
	for _, dataCategory := range dataCategories {
		domainCategory := FromDataModel(dataCategory)
		if domainCategory.IsActiveCategory() {
			responses = append(responses, domainCategory.ToResponse())
		}
	}

	s.logger.Info("retrieved categories", "count", len(responses))
	return responses, nil
}

// IsValidCategory reports whether name is in the closed set and has not been
// deactivated in the catalogue. A missing catalogue row counts as active.
func (s *Service) IsValidCategory(name string) bool {
	parsed, ok := Parse(name)
	if !ok {
		return false
	}

	row, err := s.repo.GetByName(string(parsed))
	if err != nil {
		s.logger.Warn("error checking category validity", "name", name, "error", err)
		return true
	}
	return row == nil || row.IsActive
}

// SyncCatalogue makes sure every category of the closed set has a row.
func (s *Service) SyncCatalogue() (int, error) {
	created := 0
	for i, c := range catalogue {
		row, err := s.repo.GetByName(string(c.name))
		if err != nil {
			return created, err
		}
		if row != nil {
			continue
		}
		if err := s.repo.Create(&categoryDatamodel.ExpenseCategory{
			Code:        c.name.Code(),
			Name:        string(c.name),
			Description: c.description,
			SortOrder:   i + 1,
			IsActive:    true,
		}); err != nil {
			return created, err
		}
		created++
	}

	s.logger.Info("category catalogue synced", "created", created)
	return created, nil
}

// SetActive toggles a catalogue row without touching the closed set.
func (s *Service) SetActive(name string, active bool) error {
	parsed, ok := Parse(name)
	if !ok {
		return ErrUnknownCategory
	}
	row, err := s.repo.GetByName(string(parsed))
	if err != nil {
		return err
	}
	if row == nil {
		return ErrUnknownCategory
	}
	row.IsActive = active
	return s.repo.Update(row)
}
