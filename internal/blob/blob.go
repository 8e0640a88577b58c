// Package blob provides content-addressed-by-path storage for document
// artifacts: canonical markdown, extraction bundles, and connection
// backups. Paths are slash-separated keys like
// "{user}/{document}/content.md".
package blob

import "context"

// Well-known artifact names under a document's key prefix.
const (
	ContentName    = "content.md"
	ExtractionName = "extraction.json"
	SourceName     = "source.pdf"
)

// Store reads and writes immutable artifacts by key.
type Store interface {
	// Get returns the artifact bytes for key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the artifact bytes at key, creating parent prefixes as
	// needed. Existing artifacts are overwritten.
	Put(ctx context.Context, key string, data []byte) error
	// Exists reports whether an artifact is present at key.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the artifact at key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// DocumentKey builds the key prefix for a document's artifacts.
func DocumentKey(userID, documentID string) string {
	return userID + "/" + documentID
}
