// Package jobs runs background work claimed from the shared job table:
// a polling worker, a per-job lifecycle contract, and one handler per
// job kind.
package jobs

import (
	"fmt"
)

// Kind is the closed set of job types. Dispatch over kinds is
// exhaustive: adding a kind without a handler is a compile-visible
// change in runJob, not a silent no-op.
type Kind string

const (
	// KindIngestDocument turns an uploaded source file into canonical
	// markdown plus a persisted chunk set.
	KindIngestDocument Kind = "ingest_document"

	// KindReconcileDocument computes authoritative chunk offsets for a
	// document and verifies the content invariant.
	KindReconcileDocument Kind = "reconcile_document"

	// KindDetectConnections runs the detection engines over a document.
	KindDetectConnections Kind = "detect_connections"
)

// Kinds lists every job kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindIngestDocument, KindReconcileDocument, KindDetectConnections}
}

// ParseKind validates a stored job_type string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIngestDocument, KindReconcileDocument, KindDetectConnections:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown job kind %q", s)
	}
}
