package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Projector mirrors imported contacts and their company/publication links
// into the graph. The projection is best effort and always rebuildable from
// Postgres; failures are logged and never fail an import.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// Enabled reports whether a projector is wired to a graph client.
func (p *Projector) Enabled() bool {
	return p != nil && p.client != nil
}

// ProjectContact creates or updates a contact node, scoped to its
// organization so tenants never share nodes.
func (p *Projector) ProjectContact(ctx context.Context, contact *models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectContact")
	defer span.End()

	props := map[string]any{
		"id":              contact.ID,
		"organization_id": contact.OrganizationID,
		"display_name":    contact.DisplayName,
		"position":        contact.Position,
		"company_name":    contact.CompanyName,
		"updated_at":      contact.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if contact.ImportedFrom != nil {
		props["imported_from"] = *contact.ImportedFrom
	}

	cypher := `
		MERGE (c:Contact {id: $id, organization_id: $organization_id})
		SET c = $props
		RETURN c
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":              contact.ID,
			"organization_id": contact.OrganizationID,
			"props":           props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contact_id":      contact.ID,
			"organization_id": contact.OrganizationID,
		}).Error("Failed to project contact into graph")
		return fmt.Errorf("failed to project contact into graph: %w", err)
	}

	return nil
}

// LinkWorksAt merges the company node and the WORKS_AT edge from the contact.
func (p *Projector) LinkWorksAt(ctx context.Context, contact *models.Contact, company *models.Company) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.LinkWorksAt")
	defer span.End()

	return p.linkOrgNode(ctx, contact, "Company", "WORKS_AT", company.ID, company.Name, company.Domain)
}

// LinkWritesFor merges the publication node and the WRITES_FOR edge.
func (p *Projector) LinkWritesFor(ctx context.Context, contact *models.Contact, publication *models.Publication) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.LinkWritesFor")
	defer span.End()

	return p.linkOrgNode(ctx, contact, "Publication", "WRITES_FOR", publication.ID, publication.Name, publication.Domain)
}

func (p *Projector) linkOrgNode(ctx context.Context, contact *models.Contact, label, relType, targetID, name, domain string) error {
	cypher := fmt.Sprintf(`
		MATCH (c:Contact {id: $contact_id, organization_id: $organization_id})
		MERGE (t:%s {id: $target_id, organization_id: $organization_id})
		SET t.name = $name, t.domain = $domain
		MERGE (c)-[r:%s]->(t)
		RETURN r
	`, label, relType)

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"contact_id":      contact.ID,
			"organization_id": contact.OrganizationID,
			"target_id":       targetID,
			"name":            name,
			"domain":          domain,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contact_id": contact.ID,
			"rel_type":   relType,
			"target_id":  targetID,
		}).Error("Failed to project relationship into graph")
		return fmt.Errorf("failed to project relationship into graph: %w", err)
	}

	return nil
}

// LinkSharedIdentity connects two contacts resolved from the same candidate
// so cross-organization duplicates stay discoverable after import.
func (p *Projector) LinkSharedIdentity(ctx context.Context, candidateID string, contactA, contactB *models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.LinkSharedIdentity")
	defer span.End()

	cypher := `
		MATCH (a:Contact {id: $a_id, organization_id: $a_org})
		MATCH (b:Contact {id: $b_id, organization_id: $b_org})
		MERGE (a)-[r:SAME_PERSON {candidate_id: $candidate_id}]->(b)
		RETURN r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"a_id":         contactA.ID,
			"a_org":        contactA.OrganizationID,
			"b_id":         contactB.ID,
			"b_org":        contactB.OrganizationID,
			"candidate_id": candidateID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": candidateID,
		}).Error("Failed to project shared identity into graph")
		return fmt.Errorf("failed to project shared identity into graph: %w", err)
	}

	return nil
}
