// Package drift compares declared infrastructure inventories against
// observed ones and reports the differences.
package drift

import (
	"reflect"
	"sort"
)

// Record is one resource in an inventory. Provenance is positional:
// the same type describes both declared (IaC state) and observed
// (live API) resources, and which side a record belongs to is decided
// by the argument it is passed in.
type Record struct {
	// Type is the resource type, e.g. "aws_vpc".
	Type string `json:"type"`

	// ID is the provider-assigned resource identifier.
	ID string `json:"id"`

	// Name is an optional human-readable name.
	Name string `json:"name,omitempty"`

	// Attributes is the resource's attribute map.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AttributeDiff is one attribute-level difference on a resource
// present in both inventories.
type AttributeDiff struct {
	// Key is the attribute name.
	Key string `json:"key"`

	// DeclaredValue is the attribute value on the declared side,
	// nil when the key is absent there.
	DeclaredValue any `json:"declared_value"`

	// ObservedValue is the attribute value on the observed side,
	// nil when the key is absent there.
	ObservedValue any `json:"observed_value"`
}

// ResourceDiff is a resource present in both inventories whose
// attributes differ.
type ResourceDiff struct {
	ResourceID   string          `json:"resource_id"`
	ResourceType string          `json:"resource_type"`
	Declared     map[string]any  `json:"declared"`
	Observed     map[string]any  `json:"observed"`
	Differences  []AttributeDiff `json:"differences"`
}

// Result is the outcome of a drift comparison.
type Result struct {
	// DeclaredOnly lists resources present only in the declared
	// inventory.
	DeclaredOnly []Record `json:"declared_only"`

	// ObservedOnly lists resources present only in the observed
	// inventory.
	ObservedOnly []Record `json:"observed_only"`

	// Differing lists resources present in both whose attributes
	// differ.
	Differing []ResourceDiff `json:"differing"`

	// MatchedCount counts resources present in both with structurally
	// equal attributes.
	MatchedCount int `json:"matched_count"`

	// DriftDetected is true exactly when any of DeclaredOnly,
	// ObservedOnly or Differing is non-empty.
	DriftDetected bool `json:"drift_detected"`
}

// Options scopes a comparison. Zero values mean no scoping. The filter
// applies uniformly to both inventories before any comparison.
type Options struct {
	// ResourceType restricts the comparison to records of this type.
	ResourceType string

	// ResourceID restricts the comparison to the record with this ID.
	ResourceID string
}

func (o Options) matches(r Record) bool {
	if o.ResourceType != "" && r.Type != o.ResourceType {
		return false
	}
	if o.ResourceID != "" && r.ID != o.ResourceID {
		return false
	}
	return true
}

// filterByID indexes an inventory by resource ID, applying the scope
// filter. Later duplicates of an ID replace earlier ones.
func filterByID(records []Record, opts Options) (map[string]Record, []string) {
	byID := make(map[string]Record, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if !opts.matches(r) {
			continue
		}
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}
	return byID, order
}

// equalValues is structural deep equality with no type coercion:
// int(1) and float64(1) differ, "true" and true differ.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// diffAttributes walks the symmetric union of attribute keys and
// collects per-key differences. A key present on one side only is a
// difference, with nil for the absent side. Keys are sorted for
// deterministic output.
func diffAttributes(declared, observed map[string]any) []AttributeDiff {
	keys := make(map[string]bool, len(declared)+len(observed))
	for k := range declared {
		keys[k] = true
	}
	for k := range observed {
		keys[k] = true
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var diffs []AttributeDiff
	for _, k := range sorted {
		dv, dok := declared[k]
		ov, ook := observed[k]
		if dok != ook || !equalValues(dv, ov) {
			diffs = append(diffs, AttributeDiff{
				Key:           k,
				DeclaredValue: dv,
				ObservedValue: ov,
			})
		}
	}
	return diffs
}

// Detect compares a declared inventory against an observed one.
//
// Records are matched by ID. The result partitions the scoped union:
// every declared record is either declared-only, differing, or
// matched; every observed record not matched by ID is observed-only.
// Output ordering follows first appearance in the respective input
// slices.
func Detect(declared, observed []Record, opts Options) Result {
	declaredByID, declaredOrder := filterByID(declared, opts)
	observedByID, observedOrder := filterByID(observed, opts)

	result := Result{
		DeclaredOnly: []Record{},
		ObservedOnly: []Record{},
		Differing:    []ResourceDiff{},
	}

	for _, id := range declaredOrder {
		dec := declaredByID[id]
		obs, ok := observedByID[id]
		if !ok {
			result.DeclaredOnly = append(result.DeclaredOnly, dec)
			continue
		}

		diffs := diffAttributes(dec.Attributes, obs.Attributes)
		if len(diffs) == 0 {
			result.MatchedCount++
			continue
		}
		result.Differing = append(result.Differing, ResourceDiff{
			ResourceID:   id,
			ResourceType: dec.Type,
			Declared:     dec.Attributes,
			Observed:     obs.Attributes,
			Differences:  diffs,
		})
	}

	for _, id := range observedOrder {
		if _, ok := declaredByID[id]; !ok {
			result.ObservedOnly = append(result.ObservedOnly, observedByID[id])
		}
	}

	result.DriftDetected = len(result.DeclaredOnly) > 0 ||
		len(result.ObservedOnly) > 0 ||
		len(result.Differing) > 0

	return result
}
