package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/drift"
)

// NewStatic builds a registry whose handlers serve a fixed inventory.
// Handlers read the map at call time, so callers may mutate the
// inventory between fetches to simulate provider-side changes. Region
// is ignored. Used by tests and credential-less local runs.
func NewStatic(inventory map[string][]drift.Record, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	for resourceType := range inventory {
		// Register only fails on empty type or nil handler; static
		// inventories produce neither.
		_ = r.Register(resourceType, func(ctx context.Context, region string) ([]drift.Record, error) {
			recs := inventory[resourceType]
			out := make([]drift.Record, len(recs))
			copy(out, recs)
			return out, nil
		})
	}
	return r
}

// LoadInventoryFile reads a JSON inventory file mapping resource type
// to record lists, suitable for NewStatic.
func LoadInventoryFile(path string) (map[string][]drift.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	var inventory map[string][]drift.Record
	if err := json.Unmarshal(data, &inventory); err != nil {
		return nil, fmt.Errorf("parsing inventory file %s: %w", path, err)
	}
	return inventory, nil
}
