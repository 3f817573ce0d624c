// Package company reads and writes per-organization company records.
package company

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const selectColumns = "id, organization_id, name, domain, created_at, updated_at"

// Repository handles company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByOrganization returns an organization's companies.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.ListByOrganization")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("companies")
	sb.Where(sb.Equal("organization_id", organizationID))
	sb.OrderBy("name ASC")

	query, args := sb.Build()
	var companies []*models.Company
	if err := r.db.SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": organizationID}).Error("Failed to list companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}
	return companies, nil
}

// Create inserts a company into the destination organization.
func (r *Repository) Create(ctx context.Context, company *models.Company) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Create")
	defer span.End()

	if company.OrganizationID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "organization id is required")
	}
	if company.Name == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "company name is required")
	}

	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	company.CreatedAt = time.Now().UTC()
	company.UpdatedAt = company.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("companies")
	sb.Cols("id", "organization_id", "name", "domain", "created_at", "updated_at")
	sb.Values(company.ID, company.OrganizationID, company.Name, company.Domain, company.CreatedAt, company.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": company.OrganizationID}).Error("Failed to create company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create company")
	}

	return company, nil
}
