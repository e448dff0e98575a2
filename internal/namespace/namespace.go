// Package namespace builds and parses canonical collection identifiers
// from tenancy attributes.
//
// Every addressable collection in infrad is named by joining tenancy
// fields with a reserved separator:
//
//	{group}__{subindex}__{user}[__{account}[__{project}]]
//
// Examples:
//   - terraform__semantic__usr123__acc456__proj789
//   - memory__session__usr123
//   - context__state__usr123__acc456
//
// Encoding is injective: two distinct addresses never produce the same
// string, and decoding recovers exactly the fields present at encode
// time. Fields containing the separator (or leading/trailing
// underscores, which would make the split ambiguous) are rejected as a
// configuration error before any store call.
package namespace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator joins address fields in encoded collection names.
// It is reserved: no individual field value may contain it.
const Separator = "__"

// Group identifies the top-level index a collection belongs to.
type Group string

const (
	GroupTerraform Group = "terraform"
	GroupMemory    Group = "memory"
	GroupContext   Group = "context"
	GroupSessions  Group = "sessions"
)

// Groups lists all valid index groups.
var Groups = []Group{GroupTerraform, GroupMemory, GroupContext, GroupSessions}

// Common errors.
var (
	ErrUnknownGroup      = errors.New("unknown index group")
	ErrMissingField      = errors.New("missing required address field")
	ErrReservedSeparator = errors.New("field value contains reserved separator")
	ErrNotWellFormed     = errors.New("collection name not well-formed")
)

// fieldPattern constrains individual field values. Leading/trailing
// underscores are disallowed so splitting on Separator stays unambiguous.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+(_[a-zA-Z0-9.-]+)*$`)

// Address is the ordered tenancy tuple behind a collection name.
// Group, SubIndex and UserID are required for a full address;
// AccountID and ProjectID are optional trailing fields. A ProjectID
// without an AccountID cannot be encoded positionally and is rejected.
type Address struct {
	Group     Group
	SubIndex  string
	UserID    string
	AccountID string
	ProjectID string
}

// validGroup reports whether g is one of the known index groups.
func validGroup(g Group) bool {
	switch g {
	case GroupTerraform, GroupMemory, GroupContext, GroupSessions:
		return true
	}
	return false
}

// validateField checks a single field value against the separator rule.
func validateField(name, value string) error {
	if strings.Contains(value, Separator) {
		return fmt.Errorf("%w: field %s=%q", ErrReservedSeparator, name, value)
	}
	if !fieldPattern.MatchString(value) {
		return fmt.Errorf("%w: field %s=%q must match %s", ErrReservedSeparator, name, value, fieldPattern.String())
	}
	return nil
}

// Encode returns the canonical collection name for a full address.
// Absent trailing fields are omitted, never encoded as placeholders.
func (a Address) Encode() (string, error) {
	if !validGroup(a.Group) {
		return "", fmt.Errorf("%w: %q", ErrUnknownGroup, a.Group)
	}
	if a.SubIndex == "" {
		return "", fmt.Errorf("%w: sub-index", ErrMissingField)
	}
	if a.UserID == "" {
		return "", fmt.Errorf("%w: user id", ErrMissingField)
	}
	if a.ProjectID != "" && a.AccountID == "" {
		return "", fmt.Errorf("%w: account id (required when project id is set)", ErrMissingField)
	}

	parts := []string{string(a.Group), a.SubIndex, a.UserID}
	if a.AccountID != "" {
		parts = append(parts, a.AccountID)
	}
	if a.ProjectID != "" {
		parts = append(parts, a.ProjectID)
	}

	names := []string{"group", "sub-index", "user id", "account id", "project id"}
	for i, p := range parts {
		if err := validateField(names[i], p); err != nil {
			return "", err
		}
	}

	return strings.Join(parts, Separator), nil
}

// MustEncode is Encode for addresses known valid at compile time.
// It panics on error and exists for test fixtures and static wiring.
func (a Address) MustEncode() string {
	s, err := a.Encode()
	if err != nil {
		panic(err)
	}
	return s
}

// Decode parses a collection name produced by Encode.
//
// Decode is only well-defined for Encode output; arbitrary external
// strings fail closed with ErrNotWellFormed rather than being guessed
// at.
func Decode(name string) (Address, error) {
	parts := strings.Split(name, Separator)
	if len(parts) < 3 || len(parts) > 5 {
		return Address{}, fmt.Errorf("%w: %q has %d fields, want 3-5", ErrNotWellFormed, name, len(parts))
	}
	for _, p := range parts {
		if !fieldPattern.MatchString(p) {
			return Address{}, fmt.Errorf("%w: %q", ErrNotWellFormed, name)
		}
	}
	if !validGroup(Group(parts[0])) {
		return Address{}, fmt.Errorf("%w: %q: %q", ErrNotWellFormed, name, parts[0])
	}

	addr := Address{
		Group:    Group(parts[0]),
		SubIndex: parts[1],
		UserID:   parts[2],
	}
	if len(parts) > 3 {
		addr.AccountID = parts[3]
	}
	if len(parts) > 4 {
		addr.ProjectID = parts[4]
	}
	return addr, nil
}

// Matches reports whether a full address is prefix-consistent with the
// partial receiver: every present field must match positionally, absent
// fields are wildcards.
func (a Address) Matches(full Address) bool {
	if a.Group != "" && a.Group != full.Group {
		return false
	}
	if a.SubIndex != "" && a.SubIndex != full.SubIndex {
		return false
	}
	if a.UserID != "" && a.UserID != full.UserID {
		return false
	}
	if a.AccountID != "" && a.AccountID != full.AccountID {
		return false
	}
	if a.ProjectID != "" && a.ProjectID != full.ProjectID {
		return false
	}
	return true
}

// Discover filters known collection names down to those whose decoded
// address is prefix-consistent with the partial address. Names that do
// not decode are skipped. Input order is preserved, which downstream
// merge logic relies on for tie-breaking.
func Discover(partial Address, known []string) []string {
	matched := make([]string, 0, len(known))
	for _, name := range known {
		addr, err := Decode(name)
		if err != nil {
			continue
		}
		if partial.Matches(addr) {
			matched = append(matched, name)
		}
	}
	return matched
}
