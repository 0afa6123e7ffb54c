package guiserver

import (
	"github.com/wizardpipe/wizard/internal/common/wire"
)

// The helpers below are the vocabulary services use to talk to the GUI.

// RefreshUI asks the main window to refetch and repaint.
func RefreshUI(b *Bus) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypeRefresh})
}

// RestartUI asks the GUI to restart itself, after a settings change that
// cannot be applied live.
func RestartUI(b *Bus) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypeRestart})
}

// RefreshTeam mirrors a presence change onto the local team panel.
func RefreshTeam(b *Bus, userName string) {
	b.Publish(TopicTeam, wire.Message{Type: wire.TypeRefreshTeam, UserName: userName})
}

// Tooltip shows a transient toast.
func Tooltip(b *Bus, text string) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypeTooltip, Text: text})
}

// Popup shows a modal with a title and body.
func Popup(b *Bus, title, text string) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypePopup, Title: title, Text: text})
}

// CustomPopup shows a modal with an icon and profile picture, used for
// game notifications.
func CustomPopup(b *Bus, title, text, icon, profilePicture string) {
	b.Publish(TopicGUI, wire.Message{
		Type:           wire.TypePopupCustom,
		Title:          title,
		Text:           text,
		Icon:           icon,
		ProfilePicture: profilePicture,
	})
}

// FocusInstance asks the GUI to navigate to a tree instance, e.g.
// "stage:42".
func FocusInstance(b *Bus, instance string) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypeFocusInstance, Instance: instance})
}

// FocusWorkVersion asks the GUI to select a work version row.
func FocusWorkVersion(b *Bus, id int64) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypeFocusWorkVer, ID: id})
}

// FocusExportVersion asks the GUI to select an export version row.
func FocusExportVersion(b *Bus, id int64) {
	b.Publish(TopicGUI, wire.Message{Type: wire.TypeFocusExportVer, ID: id})
}
