// Package hooks runs studio-provided JavaScript hooks around pipeline
// operations. Hooks live inside the project, one directory per DCC plus
// a shared plugins tree, and are best effort: a crashing hook is logged
// and reported on the activity wall, never surfaced to the operation
// that triggered it.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"context"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/mugiliam/goja_nodejs/console"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/events"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Entry points hooks may export.
const (
	EntryAfterSave      = "after_save"
	EntryAfterExport    = "after_export"
	EntryAfterOpen      = "after_scene_opening"
	EntryAfterCreation  = "after_creation"
	EntryAfterReference = "after_reference"
)

// HooksDir is the project-relative root of the hook tree.
const HooksDir = "hooks"

// scriptBudget bounds one hook script. A stuck loop in a studio hook
// must not wedge a save.
const scriptBudget = 30 * time.Second

// Context is the payload handed to every hook invocation.
type Context struct {
	User          string         `json:"user"`
	Project       string         `json:"project"`
	StringVariant string         `json:"string_variant"`
	Stage         string         `json:"stage"`
	Entry         string         `json:"entry"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Run executes the hooks of one DCC for one entry point: every .js file
// under hooks/<software>/, in name order, then every
// hooks/plugins/<plugin>/ tree. Each file gets a fresh VM. Returns the
// files that failed; failures are already logged and on the wall.
func Run(ctx context.Context, sess *session.Session, software, entry string, hctx Context) []string {
	if sess.RequireProject() != nil {
		return nil
	}
	hctx.User = sess.UserName()
	hctx.Project = sess.Project.Name
	hctx.Entry = entry

	var scripts []string
	scripts = append(scripts, listScripts(assets.AbsPath(sess, filepath.ToSlash(filepath.Join(HooksDir, software))))...)
	scripts = append(scripts, listPluginScripts(assets.AbsPath(sess, filepath.ToSlash(filepath.Join(HooksDir, "plugins"))))...)

	var failed []string
	for _, script := range scripts {
		if err := runOne(script, entry, hctx); err != nil {
			failed = append(failed, filepath.Base(script))
			log.Ctx(ctx).Warn().Err(err).Str("hook", script).Str("entry", entry).
				Msg("hook failed")
			_ = events.Emit(ctx, sess, events.TypeHookFailure,
				"hook failed: "+filepath.Base(script), err.Error(), "{}")
			sess.NotifyGUI(wire.Message{
				Type:  wire.TypeHookFailure,
				Title: filepath.Base(script),
				Text:  err.Error(),
			})
		}
	}
	return failed
}

// listScripts returns the .js files directly inside dir, sorted.
func listScripts(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".js") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// listPluginScripts returns the .js files one level down, one directory
// per plugin.
func listPluginScripts(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, listScripts(filepath.Join(root, e.Name()))...)
		}
	}
	return out
}

// runOne loads a script into a fresh VM and, when the entry function is
// exported, calls it with the hook context. A script with no matching
// entry is not an error.
func runOne(script, entry string, hctx Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()

	src, rerr := os.ReadFile(script)
	if rerr != nil {
		return rerr
	}

	vm := goja.New()
	new(require.Registry).Enable(vm)
	console.Enable(vm)

	timer := time.AfterFunc(scriptBudget, func() {
		vm.Interrupt("hook exceeded time budget")
	})
	defer timer.Stop()

	if _, rerr := vm.RunScript(filepath.Base(script), string(src)); rerr != nil {
		return rerr
	}
	fn, ok := goja.AssertFunction(vm.Get(entry))
	if !ok {
		return nil
	}
	if _, cerr := fn(goja.Undefined(), vm.ToValue(map[string]any{
		"user":           hctx.User,
		"project":        hctx.Project,
		"string_variant": hctx.StringVariant,
		"stage":          hctx.Stage,
		"entry":          hctx.Entry,
		"extra":          hctx.Extra,
	})); cerr != nil {
		return cerr
	}
	return nil
}
