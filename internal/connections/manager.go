// Package connections orchestrates the multi-engine detection pass
// over a document's chunks, including the three reprocessing modes and
// backup-first preservation of user-validated results.
package connections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/engines"
	"github.com/stitch-works/stitch/internal/store"
)

// Mode selects the reprocessing strategy.
type Mode string

const (
	// ModeAll deletes every existing connection touching the document's
	// chunks, then runs all engines fresh.
	ModeAll Mode = "all"
	// ModeSmart preserves user-validated connections through the delete
	// and de-duplicates new results against them.
	ModeSmart Mode = "smart"
	// ModeAddNew runs engines only against documents created after the
	// target, leaving existing connections untouched.
	ModeAddNew Mode = "add_new"
)

// Options configures one detection pass.
type Options struct {
	Mode Mode

	// BackupFirst serializes validated connections to the blob store
	// before smart-mode deletion. Without it, the preserved set cannot
	// be recovered if something goes wrong mid-pass.
	BackupFirst bool

	// ChunkIDs restricts detection to a subset of the document's
	// current chunks. Empty means all of them.
	ChunkIDs []string

	// MinStrength is passed to every engine; zero uses engine defaults.
	MinStrength float64

	// MaxPairs bounds judgement-based engines; zero uses defaults.
	MaxPairs int
}

// Report aggregates one detection pass.
type Report struct {
	DocumentID string         `json:"document_id"`
	Mode       Mode           `json:"mode"`
	Before     int64          `json:"connections_before"`
	After      int64          `json:"connections_after"`
	Deleted    int64          `json:"deleted"`
	Preserved  int            `json:"preserved_validated"`
	BackupKey  string         `json:"backup_key,omitempty"`
	PerEngine  map[string]int `json:"per_engine"`
	Duplicates int            `json:"duplicates_dropped"`
}

// Progress receives stage updates during a pass. May be nil.
type Progress func(percent int, stage, details string)

// Manager runs detection engines and persists their results.
type Manager struct {
	store   *store.Store
	blobs   blob.Store
	engines []engines.Engine
	weights *WeightCache
	logger  *slog.Logger
}

// NewManager wires the connection detection manager.
func NewManager(st *store.Store, blobs blob.Store, engineSet []engines.Engine, weights *WeightCache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if weights == nil {
		weights = NewWeightCache(nil)
	}
	return &Manager{store: st, blobs: blobs, engines: engineSet, weights: weights, logger: logger}
}

// Detect runs the configured engines over a document per the options.
// Any engine failure aborts the whole pass; no partial engine results
// are persisted.
func (m *Manager) Detect(ctx context.Context, documentID string, opts Options, progress Progress) (*Report, error) {
	if progress == nil {
		progress = func(int, string, string) {}
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	switch opts.Mode {
	case ModeAll, ModeSmart, ModeAddNew:
	default:
		return nil, fmt.Errorf("%w: unknown reprocessing mode %q", store.ErrValidation, opts.Mode)
	}

	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &Report{DocumentID: documentID, Mode: opts.Mode, PerEngine: map[string]int{}}
	report.Before, err = m.store.CountConnectionsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	progress(5, "loading", "loading chunks")
	sources, err := m.loadSources(ctx, documentID, opts.ChunkIDs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		report.After = report.Before
		return report, nil
	}

	targets, err := m.loadTargets(ctx, doc, sources, opts.Mode)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		report.After = report.Before
		return report, nil
	}

	// Destructive prelude for all/smart. Deleted connections are not
	// restorable; smart mode offers the backup as the recovery path.
	var dedupe map[string]struct{}
	switch opts.Mode {
	case ModeAll:
		progress(15, "clearing", "removing existing connections")
		report.Deleted, err = m.store.DeleteConnectionsForDocument(ctx, documentID, false)
		if err != nil {
			return nil, err
		}

	case ModeSmart:
		validated, err := m.store.ValidatedConnectionsForDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		report.Preserved = len(validated)

		if opts.BackupFirst && len(validated) > 0 {
			progress(10, "backup", fmt.Sprintf("backing up %d validated connections", len(validated)))
			report.BackupKey, err = m.backupValidated(ctx, doc, validated)
			if err != nil {
				return nil, err
			}
		}

		progress(15, "clearing", "removing non-validated connections")
		report.Deleted, err = m.store.DeleteConnectionsForDocument(ctx, documentID, true)
		if err != nil {
			return nil, err
		}

		// De-duplicate fresh results against the preserved set.
		dedupe = make(map[string]struct{}, len(validated))
		for _, c := range validated {
			dedupe[store.ConnectionKey(c.SourceChunkID, c.TargetChunkID, c.Type)] = struct{}{}
		}
	}

	weights, err := m.weights.Get(ctx, doc.UserID)
	if err != nil {
		return nil, err
	}

	progress(25, "detecting", fmt.Sprintf("running %d engines", len(m.engines)))
	results, err := m.runEngines(ctx, engines.Request{
		Sources:     sources,
		Targets:     targets,
		MinStrength: opts.MinStrength,
		MaxPairs:    opts.MaxPairs,
	})
	if err != nil {
		return nil, err
	}

	progress(80, "persisting", "writing connections")
	conns := make([]*store.Connection, 0)
	now := time.Now().UTC()
	for engineType, candidates := range results {
		for _, cand := range candidates {
			strength := cand.Strength * weights.For(engineType)
			if strength <= 0 {
				continue
			}
			if strength > 1 {
				strength = 1
			}
			if dedupe != nil {
				key := store.ConnectionKey(cand.SourceChunkID, cand.TargetChunkID, engineType)
				if _, exists := dedupe[key]; exists {
					report.Duplicates++
					continue
				}
			}

			meta, err := json.Marshal(cand.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to encode connection metadata: %w", err)
			}
			conns = append(conns, &store.Connection{
				SourceChunkID: cand.SourceChunkID,
				TargetChunkID: cand.TargetChunkID,
				Type:          engineType,
				Strength:      strength,
				Metadata:      datatypes.JSON(meta),
				DiscoveredAt:  now,
			})
			report.PerEngine[string(engineType)]++
		}
	}

	if len(conns) > 0 {
		if err := m.store.CreateConnections(ctx, conns); err != nil {
			return nil, err
		}
	}

	chunkIDs := make([]string, 0, len(sources))
	for _, c := range sources {
		chunkIDs = append(chunkIDs, c.ID)
	}
	if err := m.store.MarkConnectionsDetected(ctx, chunkIDs, now); err != nil {
		return nil, err
	}

	report.After, err = m.store.CountConnectionsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("detection pass finished",
		"document_id", documentID,
		"mode", opts.Mode,
		"before", report.Before,
		"after", report.After,
		"preserved", report.Preserved,
		"duplicates_dropped", report.Duplicates)
	return report, nil
}

func (m *Manager) loadSources(ctx context.Context, documentID string, chunkIDs []string) ([]*store.Chunk, error) {
	if len(chunkIDs) > 0 {
		chunks, err := m.store.ChunksByIDs(ctx, chunkIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			if c.DocumentID != documentID {
				return nil, fmt.Errorf("%w: chunk %s is not part of document %s", store.ErrValidation, c.ID, documentID)
			}
		}
		return chunks, nil
	}
	return m.store.ChunksByDocument(ctx, documentID)
}

// loadTargets picks the candidate set per mode: the document's own
// chunks for all/smart, newer documents' chunks for add_new.
func (m *Manager) loadTargets(ctx context.Context, doc *store.Document, sources []*store.Chunk, mode Mode) ([]*store.Chunk, error) {
	if mode != ModeAddNew {
		return sources, nil
	}

	newer, err := m.store.DocumentsCreatedAfter(ctx, doc.UserID, doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	var targets []*store.Chunk
	for _, d := range newer {
		chunks, err := m.store.ChunksByDocument(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, chunks...)
	}
	return targets, nil
}

// runEngines executes all engines in parallel. They are independent
// read-only analyses, but all must succeed before anything persists.
func (m *Manager) runEngines(ctx context.Context, req engines.Request) (map[store.ConnectionType][]engines.Candidate, error) {
	results := make(map[store.ConnectionType][]engines.Candidate, len(m.engines))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, eng := range m.engines {
		g.Go(func() error {
			candidates, err := eng.Detect(gctx, req)
			if err != nil {
				return fmt.Errorf("engine %s failed: %w", eng.Type(), err)
			}
			mu.Lock()
			results[eng.Type()] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// backupValidated writes the preserved set to the blob store at
// {user}/{document}/validated-connections-{timestamp}.json.
func (m *Manager) backupValidated(ctx context.Context, doc *store.Document, validated []*store.Connection) (string, error) {
	data, err := json.MarshalIndent(validated, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode validated connections: %w", err)
	}
	key := fmt.Sprintf("%s/validated-connections-%s.json",
		blob.DocumentKey(doc.UserID, doc.ID),
		time.Now().UTC().Format("20060102T150405Z"))
	if err := m.blobs.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to write connection backup: %w", err)
	}
	return key, nil
}
