package taxonomy

import (
	"context"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
)

// NopResolver resolves nothing. Used when no taxonomy index is
// configured, e.g. dry runs; every lookup leaves the known IDs as-is.
type NopResolver struct{}

func (NopResolver) ResolveEntityIDsFromUTMs(_ context.Context, _, _, _, _ string, known domain.EntityIDs) domain.EntityIDs {
	return known
}
