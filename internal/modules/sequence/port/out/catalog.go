package out

import (
	"context"

	"studyrun/internal/modules/sequence/domain"
)

// CatalogProvider supplies the static task configuration.
type CatalogProvider interface {
	Catalog(ctx context.Context) (domain.Catalog, error)
}
