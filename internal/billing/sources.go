package billing

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/snapshot"
)

// loadSources reads business, client and project one after another
// through src, which inside a unit of work is the transaction itself. A
// document without client yields a nil client source.
func loadSources(ctx context.Context, src SourceLoader, businessID int64, clientID *int64, projectID int64) (snapshot.Sources, error) {
	business, err := src.GetBusiness(ctx, businessID)
	if err != nil {
		return snapshot.Sources{}, fmt.Errorf("load business: %w", err)
	}
	var client *Client
	if clientID != nil {
		if client, err = src.GetClient(ctx, businessID, *clientID); err != nil {
			return snapshot.Sources{}, fmt.Errorf("load client: %w", err)
		}
	}
	project, err := src.GetProject(ctx, businessID, projectID)
	if err != nil {
		return snapshot.Sources{}, fmt.Errorf("load project: %w", err)
	}

	out := snapshot.Sources{ProjectDescription: project.Description}
	issuer := business.issuer()
	out.Issuer = &issuer
	if client != nil {
		c := client.clientSnapshot()
		out.Client = &c
	}
	return out, nil
}

// freeze fills whichever snapshot fields are still empty.
func (s *Service) freeze(ctx context.Context, tx SourceLoader, f *snapshot.Fields, businessID int64, clientID *int64, projectID int64) error {
	if f.Complete() {
		return nil
	}
	src, err := loadSources(ctx, tx, businessID, clientID, projectID)
	if err != nil {
		return fmt.Errorf("load snapshot sources: %w", err)
	}
	if _, err := s.snapshots.Fill(f, src); err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	return nil
}
