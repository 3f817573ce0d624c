// Package contact reads and writes per-organization contact records.
// Reads power the scan; writes only happen through the import paths.
package contact

import (
	"context"
	"fmt"
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

const selectColumns = "id, organization_id, display_name, emails, position, company_name, imported_from, created_at, updated_at, deleted_at"

// Repository handles contact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type contactRow struct {
	ID             string                    `db:"id"`
	OrganizationID string                    `db:"organization_id"`
	DisplayName    string                    `db:"display_name"`
	Emails         database.JSONB[[]string]  `db:"emails"`
	Position       string                    `db:"position"`
	CompanyName    string                    `db:"company_name"`
	ImportedFrom   *string                   `db:"imported_from"`
	CreatedAt      time.Time                 `db:"created_at"`
	UpdatedAt      time.Time                 `db:"updated_at"`
	DeletedAt      *time.Time                `db:"deleted_at"`
}

func (row *contactRow) toModel() *models.Contact {
	return &models.Contact{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		DisplayName:    row.DisplayName,
		Emails:         row.Emails.Data,
		Position:       row.Position,
		CompanyName:    row.CompanyName,
		ImportedFrom:   row.ImportedFrom,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		DeletedAt:      row.DeletedAt,
	}
}

// ListOrganizations returns the distinct organization IDs that own contacts.
func (r *Repository) ListOrganizations(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListOrganizations")
	defer span.End()

	var orgIDs []string
	query := "SELECT DISTINCT organization_id FROM contacts WHERE deleted_at IS NULL ORDER BY organization_id"
	if err := r.db.SelectContext(ctx, &orgIDs, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list organizations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list organizations")
	}
	return orgIDs, nil
}

// ListByOrganization returns an organization's live contacts, capped at limit.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListByOrganization")
	defer span.End()

	if limit < 1 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("contacts")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []contactRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": organizationID}).Error("Failed to list contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}

	contacts := make([]*models.Contact, 0, len(rows))
	for i := range rows {
		contacts = append(contacts, rows[i].toModel())
	}
	return contacts, nil
}

// ListChangedSince returns an organization's contacts updated after the given
// time, for incremental scans. A zero time returns everything.
func (r *Repository) ListChangedSince(ctx context.Context, organizationID string, since time.Time, limit int) ([]*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListChangedSince")
	defer span.End()

	if since.IsZero() {
		return r.ListByOrganization(ctx, organizationID, limit)
	}

	if limit < 1 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("contacts")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.IsNull("deleted_at"),
		sb.GreaterThan("updated_at", since),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []contactRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": organizationID}).Error("Failed to list changed contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list changed contacts")
	}

	contacts := make([]*models.Contact, 0, len(rows))
	for i := range rows {
		contacts = append(contacts, rows[i].toModel())
	}
	return contacts, nil
}

// GetByID retrieves a contact, including soft-deleted ones so callers can
// tell "gone" apart from "never existed".
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("contacts")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row contactRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contact")
	}

	return row.toModel(), nil
}

// FilterExisting returns the subset of ids that still reference a live
// contact. Used to detect stale candidates.
func (r *Repository) FilterExisting(ctx context.Context, ids []string) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FilterExisting")
	defer span.End()

	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("contacts")
	sb.Where(
		sb.In("id", anyIDs...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check contact existence")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check contact existence")
	}

	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

// Create inserts an imported contact into the destination organization.
func (r *Repository) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	if contact.OrganizationID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "organization id is required")
	}
	if contact.DisplayName == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "display name is required")
	}

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt
	if contact.Emails == nil {
		contact.Emails = []string{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("contacts")
	sb.Cols("id", "organization_id", "display_name", "emails", "position", "company_name", "imported_from", "created_at", "updated_at")
	sb.Values(contact.ID, contact.OrganizationID, contact.DisplayName, database.JSONB[[]string]{Data: contact.Emails}, contact.Position, contact.CompanyName, contact.ImportedFrom, contact.CreatedAt, contact.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": contact.OrganizationID}).Error("Failed to create contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contact")
	}

	return contact, nil
}
