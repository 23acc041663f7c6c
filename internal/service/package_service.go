package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// PackageService handles admin management of data packages
type PackageService struct {
	packages PackageStore
}

// NewPackageService creates a new package service
func NewPackageService(packages PackageStore) *PackageService {
	return &PackageService{packages: packages}
}

// Create adds a new data package
func (s *PackageService) Create(ctx context.Context, name string, price float64, dataLimitMB int64, durationHours int) (*models.DataPackage, error) {
	if price <= 0 {
		return nil, apperrors.NewValidation("price must be positive")
	}
	if dataLimitMB <= 0 {
		return nil, apperrors.NewValidation("data_limit_mb must be positive")
	}
	if durationHours <= 0 {
		return nil, apperrors.NewValidation("duration_hours must be positive")
	}

	pkg := &models.DataPackage{
		ID:            uuid.New().String(),
		Name:          name,
		Price:         price,
		DataLimitMB:   dataLimitMB,
		DurationHours: durationHours,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}

	log.Printf("[Package] Created package %s (%s: %dMB / %dh @ %.2f)", pkg.ID, name, dataLimitMB, durationHours, price)
	return pkg, nil
}

// Update applies the non-zero fields of req to an existing package
func (s *PackageService) Update(ctx context.Context, id string, req *models.UpdatePackageRequest) (*models.DataPackage, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		pkg.Name = req.Name
	}
	if req.Price != 0 {
		if req.Price < 0 {
			return nil, apperrors.NewValidation("price must be positive")
		}
		pkg.Price = req.Price
	}
	if req.DataLimitMB != 0 {
		if req.DataLimitMB < 0 {
			return nil, apperrors.NewValidation("data_limit_mb must be positive")
		}
		pkg.DataLimitMB = req.DataLimitMB
	}
	if req.DurationHours != 0 {
		if req.DurationHours < 0 {
			return nil, apperrors.NewValidation("duration_hours must be positive")
		}
		pkg.DurationHours = req.DurationHours
	}

	if err := s.packages.Update(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Get retrieves a package by ID
func (s *PackageService) Get(ctx context.Context, id string) (*models.DataPackage, error) {
	return s.packages.GetByID(ctx, id)
}

// List returns all packages
func (s *PackageService) List(ctx context.Context) ([]*models.DataPackage, error) {
	return s.packages.List(ctx)
}

// Delete removes a package
func (s *PackageService) Delete(ctx context.Context, id string) error {
	if err := s.packages.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[Package] Deleted package %s", id)
	return nil
}
