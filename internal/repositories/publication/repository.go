// Package publication reads and writes per-organization publication records.
package publication

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

// Repository handles publication persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new publication repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByOrganization returns an organization's publications.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Publication, error) {
	ctx, span := tracing.StartSpan(ctx, "publication.Repository.ListByOrganization")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("publications")
	sb.Where(sb.Equal("organization_id", organizationID))
	sb.OrderBy("name ASC")

	query, args := sb.Build()
	var publications []*models.Publication
	if err := r.db.SelectContext(ctx, &publications, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": organizationID}).Error("Failed to list publications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list publications")
	}
	return publications, nil
}

// Create inserts a publication into the destination organization.
func (r *Repository) Create(ctx context.Context, publication *models.Publication) (*models.Publication, error) {
	ctx, span := tracing.StartSpan(ctx, "publication.Repository.Create")
	defer span.End()

	if publication.OrganizationID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "organization id is required")
	}
	if publication.Name == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "publication name is required")
	}

	if publication.ID == "" {
		publication.ID = uuid.New().String()
	}
	publication.CreatedAt = time.Now().UTC()
	publication.UpdatedAt = publication.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("publications")
	sb.Cols("id", "organization_id", "name", "domain", "created_at", "updated_at")
	sb.Values(publication.ID, publication.OrganizationID, publication.Name, publication.Domain, publication.CreatedAt, publication.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": publication.OrganizationID}).Error("Failed to create publication")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create publication")
	}

	return publication, nil
}
