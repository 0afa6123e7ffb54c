package models

// Node is the shape shared by every level of the asset graph. Path is the
// canonical project-relative filesystem path derived from the chain of
// names.
type Node struct {
	ID           int64
	Name         string
	CreationUser string
	CreationTime int64
	ParentID     int64 // 0 for domains
	Path         string
}

// Stage priorities and states.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

const (
	StateTodo  = "todo"
	StateWIP   = "wip"
	StateDone  = "done"
	StateError = "error"
	StateRTK   = "rtk"
	StateWFA   = "wfa"
	StateOMT   = "omt"
)

// Stage extends Node with assignment fields. Every stage has exactly one
// assignee, priority and state.
type Stage struct {
	Node
	State            string
	Assignment       string // user name
	Priority         string
	EstimatedTime    int64 // seconds
	WorkTime         int64 // seconds
	DefaultVariantID int64
}

// WorkEnv extends Node with the software binding and the exclusive lock.
// LockID is the holder's user id, or 0 when free.
type WorkEnv struct {
	Node
	SoftwareID int64
	LockID     int64
	WorkTime   int64
}

// WorkVersion is a saved working file. Name is the zero-padded monotonic
// version string.
type WorkVersion struct {
	ID             int64
	Name           string
	CreationUser   string
	CreationTime   int64
	Comment        string
	WorkEnvID      int64
	FilePath       string
	ScreenshotPath string
	ThumbnailPath  string
}

// Export groups published versions under a stage. DefaultVersionID points
// at the pinned default export version, or 0.
type Export struct {
	Node
	VariantID        int64
	DefaultVersionID int64
}

// ExportVersion is a published artifact set.
type ExportVersion struct {
	ID            int64
	Name          string
	CreationUser  string
	CreationTime  int64
	Comment       string
	ExportID      int64
	WorkVersionID int64  // originating work version, 0 if merged manually
	Files         string // JSON list of file names within the version directory
	Path          string
}

// Video is a proxy encoded from an export version.
type Video struct {
	ID              int64
	Name            string
	CreationUser    string
	CreationTime    int64
	ExportVersionID int64
	FilePath        string
}

// Reference points a consumer work_env at an export. ExportVersionID is
// the pinned version, or 0 to follow the export default.
type Reference struct {
	ID              int64
	CreationUser    string
	CreationTime    int64
	WorkEnvID       int64
	ExportID        int64
	ExportVersionID int64
	Namespace       string
	AutoUpdate      bool
}

// Group is a named collection of references shareable between work_envs.
type Group struct {
	ID           int64
	Name         string
	CreationUser string
	CreationTime int64
	Color        string
}

// GroupedReference is a reference owned by a group instead of a work_env.
type GroupedReference struct {
	ID              int64
	CreationUser    string
	CreationTime    int64
	GroupID         int64
	ExportID        int64
	ExportVersionID int64
	Namespace       string
	AutoUpdate      bool
}

// ReferencedGroup subscribes a work_env to a group.
type ReferencedGroup struct {
	ID           int64
	CreationUser string
	CreationTime int64
	WorkEnvID    int64
	GroupID      int64
}

// Software is a per-project configured DCC.
type Software struct {
	ID                 int64
	Name               string
	Path               string
	AdditionnalEnv     string // JSON map
	AdditionnalScripts string // JSON list of dirs
	FileCommand        string // arg template with a %file% slot
	NoFileCommand      string
}

// Extension is the default save extension for a stage x software pair.
type Extension struct {
	ID         int64
	Stage      string
	SoftwareID int64
	Extension  string
}

// ShelfScript is a user-added script shown on the GUI shelf.
type ShelfScript struct {
	ID           int64
	CreationUser string
	CreationTime int64
	Name         string
	FilePath     string
	Help         string
	OnlySubprocess bool
	Icon         string
}

// Ticket lifecycle.
type Ticket struct {
	ID              int64
	CreationUser    string
	CreationTime    int64
	Title           string
	Message         string
	StageID         int64
	DestinationUser string // empty = everybody
	Files           string // JSON list
	Open            bool
}

// TicketMessage is a reply on a ticket thread.
type TicketMessage struct {
	ID           int64
	CreationUser string
	CreationTime int64
	TicketID     int64
	Message      string
	Files        string // JSON list
}

// Event is an activity wall row.
type Event struct {
	ID             int64
	CreationUser   string
	CreationTime   int64
	Type           string
	Title          string
	Message        string
	Data           string // JSON payload
}

// ProgressEvent is a periodic aggregate snapshot written by the stats
// scheduler.
type ProgressEvent struct {
	ID            int64
	CreationTime  int64
	StageID       int64
	State         string
	WorkTimeDelta int64
}

// TagGroup is a named set of user ids for @mentions.
type TagGroup struct {
	ID      int64
	Name    string
	UserIDs string // JSON list
}

// Playlist is a saved ordered collection of videos.
type Playlist struct {
	ID            int64
	Name          string
	CreationUser  string
	CreationTime  int64
	Data          string // JSON
	ThumbnailPath string
	LastSaveUser  string
	LastSaveTime  int64
}

// AssetPreview is the per-asset-stage preview image.
type AssetPreview struct {
	ID          int64
	AssetID     int64
	StageName   string
	PreviewPath string
	ManualPath  string
}

// RenderNode is a registered render machine.
type RenderNode struct {
	ID           int64
	Name         string
	CreationUser string
	CreationTime int64
	State        string
}

// Render is a render job row.
type Render struct {
	ID              int64
	Name            string
	CreationUser    string
	CreationTime    int64
	RenderNodeID    int64
	ExportVersionID int64
	State           string
}

// Setting is a project_settings row. XP formula constants and the
// bad-comment threshold live here.
type Setting struct {
	ID      int64
	Setting string
	Value   string
}
