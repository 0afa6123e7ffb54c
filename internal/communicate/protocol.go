// Package communicate is the local RPC channel between the workstation
// daemon and the plugins living inside launched DCCs. Each DCC instance
// gets its own listener on an ephemeral loopback port, advertised to
// that child through its environment; framing is shared with the team
// bus.
package communicate

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EnvPort is the environment variable carrying the port of the listener
// owned by the DCC instance a plugin lives in.
const EnvPort = "wizard_communicate_port"

// Request types. The server's dispatch switch is exhaustive over these;
// an unknown type is answered with an error, never ignored.
const (
	ReqAddVersion          = "add_version"
	ReqAddExportVersion    = "add_export_version"
	ReqGetReferences       = "get_references"
	ReqGetStringVariant    = "get_string_variant_from_work_env_id"
	ReqExportDir           = "request_export_dir"
	ReqScreenOver          = "screen_over_version"
	ReqAfterSaveHooks      = "after_save_hooks"
	ReqAfterExportHooks    = "after_export_hooks"
	ReqAfterReferenceHooks = "after_reference_hooks"
	// the double n is part of the protocol, plugins in the field send it
	ReqAfterOpenHooks = "after_scene_openning_hooks"
)

// Request is the envelope a plugin sends. Fields are populated per
// type; the zero values of the unused ones are ignored.
type Request struct {
	Type string `json:"type"`

	WorkEnvID     int64    `json:"work_env_id,omitempty"`
	VariantID     int64    `json:"variant_id,omitempty"`
	WorkVersionID int64    `json:"work_version_id,omitempty"`
	VersionID     int64    `json:"version_id,omitempty"`
	ExportName    string   `json:"export_name,omitempty"`
	Comment       string   `json:"comment,omitempty"`
	FromLast      bool     `json:"from_last,omitempty"`
	Files         []string `json:"files,omitempty"`

	ScreenshotPath string `json:"screenshot_path,omitempty"`
	ThumbnailPath  string `json:"thumbnail_path,omitempty"`
}

// Response is the envelope the daemon answers with. Data is the
// type-specific payload, already decoded JSON.
type Response struct {
	Status string              `json:"status"` // "ok" or "error"
	Error  string              `json:"error,omitempty"`
	Data   jsoniter.RawMessage `json:"data,omitempty"`
}

const (
	statusOK    = "ok"
	statusError = "error"
)

// VersionReply answers add_version.
type VersionReply struct {
	VersionID int64  `json:"version_id"`
	Name      string `json:"name"`
	FilePath  string `json:"file_path"` // absolute, ready to save into
}

// ExportReply answers add_export_version.
type ExportReply struct {
	ExportVersionID int64  `json:"export_version_id"`
	Name            string `json:"name"`
	Path            string `json:"path"` // absolute version directory
}

// ReferenceReply is one entry of the get_references answer.
type ReferenceReply struct {
	Namespace  string   `json:"namespace"`
	ExportName string   `json:"export_name"`
	Version    string   `json:"version"`
	Directory  string   `json:"directory"` // absolute
	Files      []string `json:"files"`
	AutoUpdate bool     `json:"auto_update"`
	Group      string   `json:"group,omitempty"`
}

// StringVariantReply answers get_string_variant_from_work_env_id.
type StringVariantReply struct {
	StringVariant string `json:"string_variant"`
	Stage         string `json:"stage"`
}

// ExportDirReply answers request_export_dir.
type ExportDirReply struct {
	Directory string `json:"directory"` // absolute
}

// HooksReply answers the after_*_hooks requests.
type HooksReply struct {
	Failed []string `json:"failed,omitempty"`
}
