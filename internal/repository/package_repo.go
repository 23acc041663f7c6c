package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

type PackageRepository struct {
	pool *pgxpool.Pool
}

func NewPackageRepository(pool *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{pool: pool}
}

// Create inserts a new data package
func (r *PackageRepository) Create(ctx context.Context, p *models.DataPackage) error {
	query := `
		INSERT INTO billing.data_packages (id, name, price, data_limit_mb, duration_hours)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.Price, p.DataLimitMB, p.DurationHours)
	if err != nil {
		if uniqueViolation(err, "uq_data_packages_name") {
			return apperrors.NewConflict("package with this name already exists")
		}
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

// GetByID retrieves a data package by ID
func (r *PackageRepository) GetByID(ctx context.Context, id string) (*models.DataPackage, error) {
	query := `
		SELECT id, name, price, data_limit_mb, duration_hours, created_at, updated_at
		FROM billing.data_packages
		WHERE id = $1
	`
	return r.scanPackage(r.pool.QueryRow(ctx, query, id))
}

// List returns all data packages ordered by price
func (r *PackageRepository) List(ctx context.Context) ([]*models.DataPackage, error) {
	query := `
		SELECT id, name, price, data_limit_mb, duration_hours, created_at, updated_at
		FROM billing.data_packages
		ORDER BY price ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.DataPackage
	for rows.Next() {
		p := &models.DataPackage{}
		err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DataLimitMB, &p.DurationHours, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan package row: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// Update updates a data package
func (r *PackageRepository) Update(ctx context.Context, p *models.DataPackage) error {
	query := `
		UPDATE billing.data_packages SET
			name = $1,
			price = $2,
			data_limit_mb = $3,
			duration_hours = $4,
			updated_at = now()
		WHERE id = $5
	`
	tag, err := r.pool.Exec(ctx, query, p.Name, p.Price, p.DataLimitMB, p.DurationHours, p.ID)
	if err != nil {
		if uniqueViolation(err, "uq_data_packages_name") {
			return apperrors.NewConflict("package with this name already exists")
		}
		return fmt.Errorf("update package: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFound("package not found")
	}
	return nil
}

// Delete removes a data package
func (r *PackageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM billing.data_packages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFound("package not found")
	}
	return nil
}

func (r *PackageRepository) scanPackage(row pgx.Row) (*models.DataPackage, error) {
	p := &models.DataPackage{}
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.DataLimitMB, &p.DurationHours, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("package not found")
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	return p, nil
}
