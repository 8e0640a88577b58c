package reconcile

import (
	"fmt"

	"github.com/stitch-works/stitch/internal/store"
)

// Conflict describes a neighbor chunk whose range collides with a
// proposed one.
type Conflict struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Start      int    `json:"start_offset"`
	End        int    `json:"end_offset"`
}

// OverlapError carries the conflicting neighbor ranges so an
// interactive caller can pick a non-conflicting range instead of
// guessing.
type OverlapError struct {
	Conflicts []Conflict
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("proposed offsets overlap %d neighboring chunk(s)", len(e.Conflicts))
}

// checkNeighborOverlap tests a proposed [start,end) range against one
// neighbor under three conditions: the new start falls inside the
// neighbor, the new end falls inside the neighbor, or the new range
// completely contains the neighbor.
func checkNeighborOverlap(start, end int, n *store.Chunk) bool {
	if n == nil {
		return false
	}
	startInside := start >= n.StartOffset && start < n.EndOffset
	endInside := end > n.StartOffset && end <= n.EndOffset
	contains := start <= n.StartOffset && end >= n.EndOffset
	return startInside || endInside || contains
}

// DetectOverlaps returns the subset of neighbors a proposed range
// collides with. Nil neighbors (document edges) are skipped.
func DetectOverlaps(start, end int, neighbors ...*store.Chunk) []Conflict {
	var conflicts []Conflict
	for _, n := range neighbors {
		if checkNeighborOverlap(start, end, n) {
			conflicts = append(conflicts, Conflict{
				ChunkID:    n.ID,
				ChunkIndex: n.ChunkIndex,
				Start:      n.StartOffset,
				End:        n.EndOffset,
			})
		}
	}
	return conflicts
}
