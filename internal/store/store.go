// Package store is the Queue/Lease Engine (spec §4.1): the single
// source of coordination truth for a fleet of stateless workers. Every
// mutation that matters for correctness — claim, heartbeat renewal,
// lease reclaim, dirty-detection upsert, scene-close checkpoint — goes
// through one of these methods as a single transaction.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mediasearch/mediasearch/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrSlugExists    = errors.New("store: slug already in use, including by a trashed library")
	ErrNoWork        = errors.New("store: no eligible work")
	ErrAlreadyActive = errors.New("store: library scan already in progress")
)

// ClaimParams selects the eligible pool for one claim attempt (spec §4.1
// point 1). AcceptedStatuses is the set of statuses a worker of this
// stage may pick up; Kind and LibrarySlug further narrow the pool;
// ModelID restricts AI-stage claims to assets whose *effective* model
// matches the worker's loaded model (spec §4.1 "Effective model
// resolution" / §9 "Claim predicate must use effective model").
type ClaimParams struct {
	AcceptedStatuses []model.AssetStatus
	Kind             model.MediaKind
	LibrarySlug      string // empty = unscoped ("--all")
	ModelID          *int64 // nil = no model filter (non-AI stages)
	WorkerID         string
	LeaseTTL         time.Duration
}

// UpsertTuple is one (rel_path, mtime, size, kind) fact discovered by the
// scanner for a single library (spec §4.3).
type UpsertTuple struct {
	RelPath string
	MTime   float64
	Size    int64
	Kind    model.MediaKind
}

// UpsertResult reports whether the scanner upsert actually changed
// anything, used by the dirty-idempotence property (spec §8).
type UpsertResult struct {
	Inserted bool
	Dirtied  bool
}

// SceneClose is the atomic payload committed when a video scene closes
// (spec §4.5.4): insert the scene row, upsert (or clear) the active
// checkpoint, and renew the asset's lease, all in one transaction.
type SceneClose struct {
	Asset           model.VideoScene
	NextActiveState *model.VideoActiveState // nil on end-of-stream
	LeaseTTL        time.Duration
}

// StatusCounts is the admin-visible summary (spec §7 "Admin-visible
// counts").
type StatusCounts map[model.AssetStatus]int

// Store is the Queue/Lease Engine's full contract. Both the Postgres
// backend (production, true SKIP LOCKED) and the sqlite backend
// (local/dev, serialized) implement it identically.
type Store interface {
	// --- Libraries (spec §3, §6.1) ---
	AddLibrary(ctx context.Context, slug, name, root string) (*model.Library, error)
	GetLibrary(ctx context.Context, slug string, includeDeleted bool) (*model.Library, error)
	ListLibraries(ctx context.Context, includeDeleted bool) ([]*model.Library, error)
	RemoveLibrary(ctx context.Context, slug string) error
	RestoreLibrary(ctx context.Context, slug string) error
	TrashEmpty(ctx context.Context, slug string, batchSize int) (deleted int, err error)

	// --- Scan claim (spec §4.3) ---
	ClaimLibraryForScan(ctx context.Context, slug string) (*model.Library, error)
	ReleaseLibraryScan(ctx context.Context, slug string, toState model.ScanState) error

	// --- Scanner reconciliation (spec §4.1 "Dirty detection", §4.3) ---
	UpsertAsset(ctx context.Context, librarySlug string, t UpsertTuple) (UpsertResult, error)

	// --- Queue/Lease Engine (spec §4.1) ---
	Claim(ctx context.Context, params ClaimParams) (*model.Asset, error)
	RenewLease(ctx context.Context, assetID int64, workerID string, ttl time.Duration) error
	ReclaimExpiredLeases(ctx context.Context, now time.Time) (reclaimed int, poisoned int, err error)
	MarkProxied(ctx context.Context, assetID int64, previewPath string, segVersion *string) error
	MarkAnalyzedLight(ctx context.Context, assetID int64, modelID int64) error
	MarkCompleted(ctx context.Context, assetID int64, modelID int64) error
	MarkFailed(ctx context.Context, assetID int64, errMsg string) (poisoned bool, err error)
	ReleaseBackToPriorStatus(ctx context.Context, assetID int64, priorStatus model.AssetStatus) error
	GetAsset(ctx context.Context, assetID int64) (*model.Asset, error)
	ListAssets(ctx context.Context, librarySlug string, status *model.AssetStatus, limit int) ([]*model.Asset, error)
	CountAssetsByStatus(ctx context.Context, librarySlug string) (StatusCounts, error)
	ResetAssetsToPending(ctx context.Context, assetIDs []int64) error
	RetryPoisoned(ctx context.Context, librarySlug string) (int, error)

	// UpdateAssetMetadata writes the image vision pass's merge result
	// (spec §4.5.6, applied to images rather than scenes): description
	// and tags are nil unless the light pass ran this call, ocrText nil
	// unless the full pass ran this call. Each non-nil field overwrites;
	// callers are responsible for the strict merge policy (re-read
	// before write, never let full mode clobber light mode's fields).
	UpdateAssetMetadata(ctx context.Context, assetID int64, description *string, tags []string, ocrText *string) error

	// --- Video scene engine persistence (spec §4.5.4) ---
	CloseScene(ctx context.Context, assetID int64, sc SceneClose) (sceneID int64, err error)
	GetActiveState(ctx context.Context, assetID int64) (*model.VideoActiveState, error)
	MaxSceneEndTS(ctx context.Context, assetID int64) (float64, error)
	ListScenes(ctx context.Context, assetID int64) ([]*model.VideoScene, error)
	InvalidateSegmentation(ctx context.Context, assetID int64) error
	UpdateSceneMetadata(ctx context.Context, sceneID int64, description *string, metadata map[string]any) error

	// --- Worker lifecycle (spec §4.2, §3) ---
	UpsertWorkerStatus(ctx context.Context, ws model.WorkerStatus) error
	GetPendingCommand(ctx context.Context, workerID string) (model.Command, error)
	ClearPendingCommand(ctx context.Context, workerID string) error
	SetWorkerCommand(ctx context.Context, workerID string, cmd model.Command) error
	PruneStaleWorkers(ctx context.Context, staleAfter time.Duration) (int, error)
	ListWorkerStatuses(ctx context.Context) ([]model.WorkerStatus, error)

	// --- AI models (spec §3, §4.1 "Effective model resolution") ---
	EnsureAIModel(ctx context.Context, name, version string) (*model.AIModel, error)
	EffectiveModelID(ctx context.Context, librarySlug string) (int64, error)
	SetDefaultAIModel(ctx context.Context, modelID int64) error
	SetLibraryTargetModel(ctx context.Context, librarySlug string, modelID *int64) error

	// --- System metadata ---
	GetSchemaVersion(ctx context.Context) (string, error)

	Close() error
}
