package cloud

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/drift"
)

func instanceRecords() []drift.Record {
	return []drift.Record{
		{Type: "aws_instance", ID: "i-1", Attributes: map[string]any{"instance_type": "t2.micro"}},
		{Type: "aws_instance", ID: "i-2", Attributes: map[string]any{"instance_type": "t2.large"}},
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	assert.Error(t, r.Register("", func(ctx context.Context, region string) ([]drift.Record, error) { return nil, nil }))
	assert.ErrorIs(t, r.Register("aws_instance", nil), ErrNilHandler)

	require.NoError(t, r.Register("aws_instance", func(ctx context.Context, region string) ([]drift.Record, error) { return nil, nil }))
	assert.ErrorIs(t, r.Register("aws_instance", func(ctx context.Context, region string) ([]drift.Record, error) { return nil, nil }), ErrDuplicateHandler)
}

func TestSupportedSorted(t *testing.T) {
	r := NewStatic(map[string][]drift.Record{
		"aws_vpc":      nil,
		"aws_instance": nil,
		"aws_s3":       nil,
	}, nil)

	assert.Equal(t, []string{"aws_instance", "aws_s3", "aws_vpc"}, r.Supported())
}

func TestFetchAll(t *testing.T) {
	r := NewStatic(map[string][]drift.Record{
		"aws_instance": instanceRecords(),
		"aws_vpc":      {{Type: "aws_vpc", ID: "vpc-1"}},
	}, zap.NewNop())

	results, err := r.FetchAll(context.Background(), []string{"aws_instance", "aws_vpc"}, "us-east-1")
	require.NoError(t, err)

	assert.Len(t, results["aws_instance"], 2)
	assert.Len(t, results["aws_vpc"], 1)
}

func TestFetchAllSkipsUnsupported(t *testing.T) {
	r := NewStatic(map[string][]drift.Record{
		"aws_instance": instanceRecords(),
	}, zap.NewNop())

	results, err := r.FetchAll(context.Background(), []string{"aws_instance", "aws_quantum"}, "us-east-1")
	require.NoError(t, err)

	assert.Len(t, results, 1)
	_, present := results["aws_quantum"]
	assert.False(t, present)
}

func TestFetchAllSwallowsHandlerFailure(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register("aws_instance", func(ctx context.Context, region string) ([]drift.Record, error) {
		return instanceRecords(), nil
	}))
	require.NoError(t, r.Register("aws_rds", func(ctx context.Context, region string) ([]drift.Record, error) {
		return nil, errors.New("api throttled")
	}))

	results, err := r.FetchAll(context.Background(), []string{"aws_instance", "aws_rds"}, "us-east-1")
	require.NoError(t, err)

	// The failed type is present as an empty inventory, never missing
	// and never an error.
	assert.Len(t, results["aws_instance"], 2)
	records, present := results["aws_rds"]
	assert.True(t, present)
	assert.Empty(t, records)
}

func TestStaticSeesInventoryMutations(t *testing.T) {
	inventory := map[string][]drift.Record{
		"aws_instance": instanceRecords(),
	}
	r := NewStatic(inventory, zap.NewNop())

	results, err := r.FetchAll(context.Background(), []string{"aws_instance"}, "us-east-1")
	require.NoError(t, err)
	require.Len(t, results["aws_instance"], 2)

	// Handlers must read the map at call time so a mutated inventory
	// behaves like a changed provider on the next fetch.
	inventory["aws_instance"] = []drift.Record{
		{Type: "aws_instance", ID: "i-1", Attributes: map[string]any{"instance_type": "t2.small"}},
	}

	results, err = r.FetchAll(context.Background(), []string{"aws_instance"}, "us-east-1")
	require.NoError(t, err)
	require.Len(t, results["aws_instance"], 1)
	assert.Equal(t, "t2.small", results["aws_instance"][0].Attributes["instance_type"])
}

func TestFetchAllEmptyRequest(t *testing.T) {
	r := NewStatic(map[string][]drift.Record{"aws_instance": instanceRecords()}, nil)

	results, err := r.FetchAll(context.Background(), nil, "us-east-1")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLoadInventoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	payload := `{
		"aws_instance": [
			{"type": "aws_instance", "id": "i-1", "name": "web", "attributes": {"instance_type": "t2.micro"}}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	inventory, err := LoadInventoryFile(path)
	require.NoError(t, err)
	require.Len(t, inventory["aws_instance"], 1)
	assert.Equal(t, "i-1", inventory["aws_instance"][0].ID)
	assert.Equal(t, "web", inventory["aws_instance"][0].Name)

	_, err = LoadInventoryFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
