package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/match"
)

// DocumentStatus tracks a document through its processing lifecycle.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is a processed source file with canonical markdown in the
// blob store. The markdown is immutable once the document is completed;
// chunk offsets index into it.
type Document struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	UserID      string         `gorm:"index;not null" json:"user_id"`
	Title       string         `json:"title"`
	StoragePath string         `gorm:"not null" json:"storage_path"`
	Status      DocumentStatus `gorm:"index;default:pending" json:"status"`
	PageCount   int            `json:"page_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	Chunks []Chunk `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// CorrectionEntry is one row of a chunk's manual-correction log.
type CorrectionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	OldStart  int       `json:"old_start"`
	OldEnd    int       `json:"old_end"`
	NewStart  int       `json:"new_start"`
	NewEnd    int       `json:"new_end"`
	Reason    string    `json:"reason"`
}

// MaxCorrectionHistory bounds the per-chunk correction log. Oldest
// entries drop first on overflow.
const MaxCorrectionHistory = 50

// Chunk is a contiguous slice of a document's canonical markdown.
//
// Invariant: after reconciliation, markdown[StartOffset:EndOffset] must
// equal Content for every chunk whose confidence is not synthetic or
// failed. A violation is a correctness bug, not a warning.
type Chunk struct {
	ID         string `gorm:"primaryKey" json:"id"`
	DocumentID string `gorm:"index;not null" json:"document_id"`
	ChunkIndex int    `gorm:"index;not null" json:"chunk_index"`

	Content     string `gorm:"not null" json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`

	PositionConfidence match.Confidence `gorm:"default:failed" json:"position_confidence"`
	PositionMethod     match.Method     `gorm:"default:none" json:"position_method"`
	PositionValidated  bool             `json:"position_validated"`
	PositionCorrected  bool             `json:"position_corrected"`
	CorrectionHistory  datatypes.JSON   `json:"correction_history,omitempty"`

	// IsCurrent supports soft replacement: reprocessing inserts a new
	// chunk generation and flips the old one off instead of deleting it.
	IsCurrent bool `gorm:"index;default:true" json:"is_current"`

	// Charspan hints from the upstream extraction pass, when available.
	CharspanStart *int `json:"charspan_start,omitempty"`
	CharspanEnd   *int `json:"charspan_end,omitempty"`
	TokenCount    int  `json:"token_count"`

	// Enrichment metadata produced externally; opaque to the core.
	Themes          datatypes.JSON `json:"themes,omitempty"`
	ImportanceScore float64        `json:"importance_score"`
	Summary         string         `json:"summary"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`

	ConnectionsDetected   bool       `json:"connections_detected"`
	ConnectionsDetectedAt *time.Time `json:"connections_detected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectionType enumerates the detection engines.
type ConnectionType string

const (
	ConnectionSemantic      ConnectionType = "semantic_similarity"
	ConnectionContradiction ConnectionType = "contradiction_detection"
	ConnectionBridge        ConnectionType = "thematic_bridge"
)

// ConnectionTypes lists every engine type in a stable order.
func ConnectionTypes() []ConnectionType {
	return []ConnectionType{ConnectionSemantic, ConnectionContradiction, ConnectionBridge}
}

// Connection is a directed, typed, scored edge between two chunks,
// possibly across documents.
type Connection struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	SourceChunkID string         `gorm:"index;not null" json:"source_chunk_id"`
	TargetChunkID string         `gorm:"index;not null" json:"target_chunk_id"`
	Type          ConnectionType `gorm:"column:connection_type;index" json:"connection_type"`
	Strength      float64        `json:"strength"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`

	// UserValidated is tri-state: nil = no feedback, true = validated,
	// false = rejected. Same for UserStarred.
	UserValidated *bool `json:"user_validated"`
	UserStarred   *bool `json:"user_starred"`

	DiscoveredAt time.Time `json:"discovered_at"`

	SourceChunk Chunk `gorm:"foreignKey:SourceChunkID;constraint:OnDelete:CASCADE" json:"-"`
	TargetChunk Chunk `gorm:"foreignKey:TargetChunkID;constraint:OnDelete:CASCADE" json:"-"`
}

// JobStatus tracks a background job's lifecycle.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// BackgroundJob is a generic unit of async work, claimed and driven by
// worker processes through atomic conditional updates.
type BackgroundJob struct {
	ID      string    `gorm:"primaryKey" json:"id"`
	JobType string    `gorm:"index;not null" json:"job_type"`
	Status  JobStatus `gorm:"index;default:pending" json:"status"`

	InputData  datatypes.JSON `json:"input_data,omitempty"`
	OutputData datatypes.JSON `json:"output_data,omitempty"`

	ProgressPercent int    `json:"progress_percent"`
	ProgressStage   string `json:"progress_stage"`
	ProgressDetails string `json:"progress_details"`

	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`

	// LastHeartbeat is bumped on every progress update. A processing job
	// whose heartbeat is older than the staleness window is reclaimable.
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	// CancelRequested is the cancellation sentinel handlers poll between
	// chunks/engines. A cancelled job is deleted, not failed.
	CancelRequested bool `json:"cancel_requested"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
