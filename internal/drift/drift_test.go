package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vpc(id string, attrs map[string]any) Record {
	return Record{Type: "aws_vpc", ID: id, Attributes: attrs}
}

func TestDetectIdenticalInventories(t *testing.T) {
	declared := []Record{
		vpc("vpc-1", map[string]any{"cidr": "10.0.0.0/16", "tags": map[string]any{"env": "prod"}}),
		vpc("vpc-2", map[string]any{"cidr": "10.1.0.0/16"}),
	}
	observed := []Record{
		vpc("vpc-1", map[string]any{"cidr": "10.0.0.0/16", "tags": map[string]any{"env": "prod"}}),
		vpc("vpc-2", map[string]any{"cidr": "10.1.0.0/16"}),
	}

	result := Detect(declared, observed, Options{})

	assert.False(t, result.DriftDetected)
	assert.Equal(t, 2, result.MatchedCount)
	assert.Empty(t, result.DeclaredOnly)
	assert.Empty(t, result.ObservedOnly)
	assert.Empty(t, result.Differing)
}

func TestDetectPartitionsInventories(t *testing.T) {
	declared := []Record{
		vpc("vpc-1", map[string]any{"cidr": "10.0.0.0/16"}),
		vpc("vpc-2", map[string]any{"cidr": "10.1.0.0/16"}),
		vpc("vpc-3", map[string]any{"cidr": "10.2.0.0/16"}),
	}
	observed := []Record{
		vpc("vpc-1", map[string]any{"cidr": "10.0.0.0/16"}),
		vpc("vpc-2", map[string]any{"cidr": "10.9.0.0/16"}),
		vpc("vpc-4", map[string]any{"cidr": "10.3.0.0/16"}),
	}

	result := Detect(declared, observed, Options{})

	assert.True(t, result.DriftDetected)
	assert.Equal(t, 1, result.MatchedCount)

	require.Len(t, result.DeclaredOnly, 1)
	assert.Equal(t, "vpc-3", result.DeclaredOnly[0].ID)

	require.Len(t, result.ObservedOnly, 1)
	assert.Equal(t, "vpc-4", result.ObservedOnly[0].ID)

	require.Len(t, result.Differing, 1)
	diff := result.Differing[0]
	assert.Equal(t, "vpc-2", diff.ResourceID)
	assert.Equal(t, "aws_vpc", diff.ResourceType)
	require.Len(t, diff.Differences, 1)
	assert.Equal(t, "cidr", diff.Differences[0].Key)
	assert.Equal(t, "10.1.0.0/16", diff.Differences[0].DeclaredValue)
	assert.Equal(t, "10.9.0.0/16", diff.Differences[0].ObservedValue)
}

// Diffs cover the symmetric union of keys: a key missing on one side
// is a difference with nil for the absent value.
func TestDetectSymmetricKeyUnion(t *testing.T) {
	declared := []Record{vpc("vpc-1", map[string]any{"cidr": "10.0.0.0/16", "declared_only": "x"})}
	observed := []Record{vpc("vpc-1", map[string]any{"cidr": "10.0.0.0/16", "observed_only": "y"})}

	result := Detect(declared, observed, Options{})

	require.Len(t, result.Differing, 1)
	diffs := result.Differing[0].Differences
	require.Len(t, diffs, 2)

	// Keys are sorted.
	assert.Equal(t, "declared_only", diffs[0].Key)
	assert.Equal(t, "x", diffs[0].DeclaredValue)
	assert.Nil(t, diffs[0].ObservedValue)

	assert.Equal(t, "observed_only", diffs[1].Key)
	assert.Nil(t, diffs[1].DeclaredValue)
	assert.Equal(t, "y", diffs[1].ObservedValue)
}

// Equality is structural with no coercion: numeric types and string
// forms of the same value do not match.
func TestDetectNoTypeCoercion(t *testing.T) {
	tests := []struct {
		name     string
		declared any
		observed any
		drift    bool
	}{
		{"int vs float64", 1, float64(1), true},
		{"bool vs string", true, "true", true},
		{"int vs int", 5, 5, false},
		{"nested map equal", map[string]any{"a": []any{1, 2}}, map[string]any{"a": []any{1, 2}}, false},
		{"nested map differs", map[string]any{"a": []any{1, 2}}, map[string]any{"a": []any{2, 1}}, true},
		{"nil vs empty string", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Detect(
				[]Record{vpc("r", map[string]any{"attr": tt.declared})},
				[]Record{vpc("r", map[string]any{"attr": tt.observed})},
				Options{},
			)
			assert.Equal(t, tt.drift, result.DriftDetected)
		})
	}
}

// The scope filter applies to both sides before comparison, so a
// scoped-out resource never shows up as declared-only or observed-only.
func TestDetectScoping(t *testing.T) {
	declared := []Record{
		vpc("vpc-1", map[string]any{"cidr": "a"}),
		{Type: "aws_subnet", ID: "sub-1", Attributes: map[string]any{"cidr": "b"}},
	}
	observed := []Record{
		{Type: "aws_subnet", ID: "sub-1", Attributes: map[string]any{"cidr": "changed"}},
	}

	byType := Detect(declared, observed, Options{ResourceType: "aws_subnet"})
	assert.True(t, byType.DriftDetected)
	assert.Empty(t, byType.DeclaredOnly, "vpc-1 is out of scope")
	require.Len(t, byType.Differing, 1)
	assert.Equal(t, "sub-1", byType.Differing[0].ResourceID)

	byID := Detect(declared, observed, Options{ResourceID: "vpc-1"})
	require.Len(t, byID.DeclaredOnly, 1)
	assert.Empty(t, byID.ObservedOnly)
	assert.Empty(t, byID.Differing)
}

func TestDetectEmptyInventories(t *testing.T) {
	result := Detect(nil, nil, Options{})
	assert.False(t, result.DriftDetected)
	assert.Equal(t, 0, result.MatchedCount)

	onlyDeclared := Detect([]Record{vpc("v", nil)}, nil, Options{})
	assert.True(t, onlyDeclared.DriftDetected)
	require.Len(t, onlyDeclared.DeclaredOnly, 1)

	onlyObserved := Detect(nil, []Record{vpc("v", nil)}, Options{})
	assert.True(t, onlyObserved.DriftDetected)
	require.Len(t, onlyObserved.ObservedOnly, 1)
}

func TestDetectPreservesInputOrder(t *testing.T) {
	declared := []Record{
		vpc("c", nil), vpc("a", nil), vpc("b", nil),
	}
	result := Detect(declared, nil, Options{})

	ids := make([]string, len(result.DeclaredOnly))
	for i, r := range result.DeclaredOnly {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}
