// Package importer implements the CSV bulk-import and entity-reconciliation
// pipeline: parsing spreadsheet rows into draft records, batched duplicate
// detection, fuzzy building suggestion reconciliation, and the sequential
// dependency-ordered import executor.
package importer

import (
	"context"

	"github.com/avergara/uniondb/internal/restclient"
)

// Store is the slice of the remote data store the pipeline depends on.
// *restclient.Client satisfies it; tests supply stubs.
type Store interface {
	GetRecords(ctx context.Context, collection string, filters restclient.Filters, opts ...restclient.QueryOption) ([]map[string]any, error)
	CreateRecord(ctx context.Context, collection string, payload map[string]any) (map[string]any, error)
	UpdateRecord(ctx context.Context, collection string, id int64, payload map[string]any) (map[string]any, error)
	GetBloqueSuggestions(ctx context.Context, queries []restclient.AddressQuery, threshold float64) ([]restclient.Suggestion, error)
}
