package allowlist

import (
	"context"

	"ratekeeper/internal/models"
)

// ServiceInterface is the key-type independent view of a Service used by the
// admin API.
type ServiceInterface interface {
	// List returns every persisted entry.
	List(ctx context.Context) (*models.ListAllowEntriesResponse, error)

	// Add persists an entry and exempts its key immediately.
	Add(ctx context.Context, req *models.AddAllowEntryRequest) (*models.AllowEntry, error)

	// Remove deletes an entry and subjects its key to limiting again.
	Remove(ctx context.Context, key string) error
}
