package vectorstore

import (
	"fmt"
	"regexp"
)

// Document represents a document to be stored in the vector store.
type Document struct {
	// ID is the unique identifier for the document. Empty IDs are
	// assigned a UUID by the store.
	ID string

	// Content is the text content of the document.
	Content string

	// Metadata contains additional key-value pairs for filtering.
	// Values are sanitized at the store boundary; see SanitizeMetadata.
	Metadata map[string]any
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the relevance score in [0, 1], higher is more similar.
	// For cosine-distance backends this is 1 - distance.
	Score float32

	// Metadata contains the document metadata as stored.
	Metadata map[string]any
}

// collectionNamePattern validates collection names.
// Lowercase letters, digits, underscores, dots and hyphens, 1-128 chars;
// wide enough for every name the namespace package can produce.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_.-]{1,128}$`)

// ValidateCollectionName validates a collection name against character
// rules. Rejects uppercase, path separators, spaces and empty names.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match %s, got %q", ErrInvalidCollectionName, collectionNamePattern.String(), name)
	}
	return nil
}
