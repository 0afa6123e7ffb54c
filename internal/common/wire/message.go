package wire

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Well-known message types carried on the team bus and the GUI bus.
// Servers relay unknown types untouched; clients ignore them.
const (
	TypeNewUser          = "new_user"
	TypeRemoveUser       = "remove_user"
	TypeRefresh          = "refresh"
	TypeRefreshTeam      = "refresh_team"
	TypeTooltip          = "tooltip"
	TypePopup            = "popup"
	TypePopupSave        = "popup_save"
	TypePopupCustom      = "popup_custom"
	TypeFocusInstance    = "focus_instance"
	TypeFocusExportVer   = "focus_export_version"
	TypeFocusWorkVer     = "focus_work_version"
	TypeRestart          = "restart"
	TypeSubtask          = "subtask"
	TypeHookFailure      = "hook_failure"
	TypeChildCrashed     = "child_crashed"
)

// Message is the envelope every bus payload shares. Only Type is
// mandatory; the remaining fields are populated per type and unknown
// fields survive a relay round-trip inside Raw.
type Message struct {
	Type           string `json:"type"`
	UserName       string `json:"user_name,omitempty"`
	Title          string `json:"title,omitempty"`
	Text           string `json:"text,omitempty"`
	Icon           string `json:"icon,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Instance       string `json:"instance,omitempty"`
	ID             int64  `json:"id,omitempty"`
	TaskID         string `json:"task_id,omitempty"`
	Status         string `json:"status,omitempty"`
}

// Encode marshals a message for framing.
func Encode(m any) ([]byte, error) {
	return json.Marshal(m)
}

// Decode unmarshals a framed payload into m.
func Decode(data []byte, m any) error {
	return json.Unmarshal(data, m)
}

// PeekType extracts the type field without decoding the whole payload.
// Returns "" for payloads that do not carry one.
func PeekType(data []byte) string {
	return json.Get(data, "type").ToString()
}
