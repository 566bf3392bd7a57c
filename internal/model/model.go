// Package model defines the shared data model (spec §3): Library, Asset,
// VideoScene, VideoActiveState, WorkerStatus, AIModel, SystemMetadata,
// and the asset status state machine (spec §4.1).
package model

import "time"

// MediaKind distinguishes the two asset families the pipeline handles.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// AssetStatus is the pipeline progression state (spec §4.1).
type AssetStatus string

const (
	StatusPending       AssetStatus = "pending"
	StatusProcessing    AssetStatus = "processing"
	StatusProxied       AssetStatus = "proxied"
	StatusAnalyzedLight AssetStatus = "analyzed_light"
	StatusCompleted     AssetStatus = "completed"
	StatusFailed        AssetStatus = "failed"
	StatusPoisoned      AssetStatus = "poisoned"
)

// IsTerminal reports whether the state never transitions again on its own.
func (s AssetStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusPoisoned
}

// MaxRetries is the cap after which a failed asset is poisoned instead of
// re-picked (spec §4.1, §7).
const MaxRetries = 5

// ScanState is the per-library scan lifecycle (spec §3).
type ScanState string

const (
	ScanIdle      ScanState = "idle"
	ScanRequested ScanState = "scan_requested"
	ScanScanning  ScanState = "scanning"
)

// WorkerState is the per-worker-process lifecycle (spec §4.2).
type WorkerState string

const (
	WorkerIdle       WorkerState = "idle"
	WorkerProcessing WorkerState = "processing"
	WorkerPaused     WorkerState = "paused"
	WorkerOffline    WorkerState = "offline"
)

// Command is a pending operator instruction delivered through WorkerStatus.
type Command string

const (
	CommandNone          Command = "none"
	CommandPause         Command = "pause"
	CommandResume        Command = "resume"
	CommandShutdown      Command = "shutdown"
	CommandForensicDump  Command = "forensic_dump"
)

// CloseReason records why a video scene was closed (spec §4.5.2).
type CloseReason string

const (
	CloseReasonPHash    CloseReason = "phash"
	CloseReasonTemporal CloseReason = "temporal"
	CloseReasonForced   CloseReason = "forced"
)

// Library is a registered media source root (spec §3).
type Library struct {
	Slug            string
	Name            string
	SourceRoot      string
	Active          bool
	ScanState       ScanState
	TargetModelID   *int64
	DeletedAt       *time.Time
}

// IsDeleted reports whether the library is soft-deleted.
func (l Library) IsDeleted() bool { return l.DeletedAt != nil }

// Asset is one discovered media file with its pipeline state (spec §3).
type Asset struct {
	ID               int64
	LibrarySlug      string
	RelPath          string
	Kind             MediaKind
	MTime            float64
	Size             int64
	Status           AssetStatus
	TagsModelID      *int64
	AnalysisModelID  *int64
	ErrorMessage     string
	WorkerID         string
	LeaseExpiresAt   *time.Time
	RetryCount       int
	PreviewPath      string // video head-clip, relative to data_dir
	SegmentationVersion *string
	Description      *string  // image vision pass, light mode (spec §4.5.6)
	Tags             []string // image vision pass, light mode
	OCRText          *string  // image vision pass, full mode; never overwrites Description/Tags
}

// VideoScene is one closed scene of a video asset (spec §3).
type VideoScene struct {
	ID             int64
	AssetID        int64
	StartTS        float64
	EndTS          float64
	RepFramePath   string
	Sharpness      float64
	CloseReason    CloseReason
	Description    *string
	Metadata       map[string]any
}

// VideoActiveState is the in-progress checkpoint for a video currently
// being segmented (spec §3, §4.5.4).
type VideoActiveState struct {
	AssetID        int64
	AnchorPHash    uint64Slice
	SceneStartTS   float64
	BestFrameTS    float64
	BestSharpness  float64
}

// uint64Slice is a 256-bit perceptual hash represented as four uint64
// words; defined here (rather than imported from internal/video) to keep
// the model package free of a dependency on the video engine.
type uint64Slice [4]uint64

// WorkerStatus is the per-process heartbeat row (spec §3, §4.2).
type WorkerStatus struct {
	WorkerID        string
	Hostname        string
	LastHeartbeat   time.Time
	State           WorkerState
	PendingCommand  Command
	Stats           map[string]any
}

// AIModel identifies a (name, version) analyzer configuration (spec §3).
type AIModel struct {
	ID      int64
	Name    string
	Version string
}

// SystemMetadata keys recognized by the core (spec §3).
const (
	MetaSchemaVersion    = "schema_version"
	MetaDefaultAIModelID = "default_ai_model_id"
)

// CurrentSchemaVersion is the schema version this binary expects
// (spec §4.2 "schema-version check").
const CurrentSchemaVersion = "4"
