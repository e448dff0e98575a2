package vectorstore

import (
	"fmt"
	"strconv"
	"strings"
)

// ListSeparator joins list-valued metadata into a flat string.
// The join is lossy on purpose: stored metadata stays scalar, and
// filters match the joined form.
const ListSeparator = ","

// SanitizeMetadata flattens a metadata map into storable scalar
// values. The input map is not modified.
//
// Rules, applied per value:
//   - nil becomes the empty string
//   - lists and arrays of scalars become a single ListSeparator-joined
//     string ("a,b,c"); element order is preserved
//   - scalars (string, bool, ints, floats) pass through unchanged
//   - anything else (maps, structs, nested lists) is malformed and
//     fails the whole call with ErrMalformedMetadata
//
// A nil map sanitizes to an empty non-nil map so callers can always
// merge into the result.
func SanitizeMetadata(metadata map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		sanitized, err := sanitizeValue(key, value)
		if err != nil {
			return nil, err
		}
		out[key] = sanitized
	}
	return out, nil
}

func sanitizeValue(key string, value any) (any, error) {
	if value == nil {
		return "", nil
	}
	switch v := value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	case []string:
		return joinStrings(v), nil
	case []any:
		parts := make([]string, len(v))
		for i, elem := range v {
			s, err := scalarString(elem)
			if err != nil {
				return nil, fmt.Errorf("%w: key %q element %d: %v", ErrMalformedMetadata, key, i, err)
			}
			parts[i] = s
		}
		return joinStrings(parts), nil
	case []int:
		parts := make([]string, len(v))
		for i, elem := range v {
			parts[i] = strconv.Itoa(elem)
		}
		return joinStrings(parts), nil
	case []float64:
		parts := make([]string, len(v))
		for i, elem := range v {
			parts[i] = strconv.FormatFloat(elem, 'g', -1, 64)
		}
		return joinStrings(parts), nil
	default:
		return nil, fmt.Errorf("%w: key %q has unsupported type %T", ErrMalformedMetadata, key, value)
	}
}

// scalarString formats a scalar list element.
func scalarString(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	default:
		return "", fmt.Errorf("unsupported element type %T", value)
	}
}

func joinStrings(parts []string) string {
	return strings.Join(parts, ListSeparator)
}

// SplitList splits a joined list value back into its elements. The
// round trip is not guaranteed when original elements contained the
// separator; callers treating joined values as lists accept that loss.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ListSeparator)
}

// metadataToString converts sanitized metadata to the string map some
// backends require. Only call after SanitizeMetadata: values are
// guaranteed scalar here.
func metadataToString(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case bool:
			result[k] = strconv.FormatBool(val)
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case float64:
			result[k] = strconv.FormatFloat(val, 'g', -1, 64)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// metadataFromString converts a backend string map back to the generic
// metadata form used throughout infrad.
func metadataFromString(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
