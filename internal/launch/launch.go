// Package launch starts DCC processes on work versions and supervises
// them: identity environment injection, exclusive work environment
// locking for the lifetime of the process, and lock release when the
// child exits, cleanly or not.
package launch

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/communicate"
	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
	"github.com/wizardpipe/wizard/internal/wizard/softwares"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrLaunch  apperrors.Error = apperrors.New("launch error").SetStatusCode(http.StatusInternalServerError)
	ErrRunning apperrors.Error = ErrLaunch.New("a process is already running on this work environment").SetStatusCode(http.StatusConflict)
)

// Identity variables injected into every launched DCC. Plugins read
// them back to find their place in the pipeline.
const (
	EnvUser          = "wizard_user"
	EnvProject       = "wizard_project"
	EnvProjectPath   = "wizard_project_path"
	EnvWorkEnvID     = "wizard_work_env_id"
	EnvVersionID     = "wizard_version_id"
	EnvDomainName    = "wizard_domain_name"
	EnvCategoryName  = "wizard_category_name"
	EnvAssetName     = "wizard_asset_name"
	EnvStageName     = "wizard_stage_name"
	EnvVariantName   = "wizard_variant_name"
	EnvStringVariant = "wizard_string_variant"
)

type process struct {
	cmd       *exec.Cmd
	versionID int64
	comm      *communicate.Server
}

// Launcher owns the table of running DCCs, one at most per work
// environment. Every launched DCC gets its own plugin listener, freshly
// bound at launch and torn down by the reaper.
type Launcher struct {
	sess           *session.Session
	ffmpegDir      string
	requestTimeout time.Duration

	mu      sync.Mutex
	running map[int64]*process
	wg      sync.WaitGroup
}

// NewLauncher binds a launcher to a session. requestTimeout bounds the
// plugin RPC requests served to children.
func NewLauncher(sess *session.Session, ffmpegDir string, requestTimeout time.Duration) *Launcher {
	return &Launcher{
		sess:           sess,
		ffmpegDir:      ffmpegDir,
		requestTimeout: requestTimeout,
		running:        make(map[int64]*process),
	}
}

// Running reports the work env ids with a live process.
func (l *Launcher) Running() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, 0, len(l.running))
	for id := range l.running {
		out = append(out, id)
	}
	return out
}

// IsRunning reports whether a DCC is open on the work environment.
func (l *Launcher) IsRunning(workEnvID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.running[workEnvID]
	return ok
}

// Launch opens the DCC of a work environment on one of its versions.
// The work environment lock is taken for the lifetime of the process;
// when someone else holds it the child is killed before it gets a
// chance to write anything.
func (l *Launcher) Launch(ctx context.Context, workEnvID, versionID int64) apperrors.Error {
	l.mu.Lock()
	if _, ok := l.running[workEnvID]; ok {
		l.mu.Unlock()
		return ErrRunning
	}
	l.mu.Unlock()

	tc, err := assets.ResolveWorkEnvContext(ctx, l.sess, workEnvID)
	if err != nil {
		return err
	}
	software, err := l.sess.Store.GetSoftware(ctx, tc.WorkEnv.SoftwareID)
	if err != nil {
		return err
	}
	if software.Path == "" {
		return ErrLaunch.Msg("no executable path configured for " + software.Name).SetStatusCode(http.StatusBadRequest)
	}
	version, err := l.sess.Store.GetWorkVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if version.WorkEnvID != workEnvID {
		return ErrLaunch.Msg("version does not belong to this work environment").SetStatusCode(http.StatusBadRequest)
	}

	argv := softwares.BuildCommand(software, assets.AbsPath(l.sess, version.FilePath))

	// one listener per child, bound fresh so each instance gets its own
	// port
	comm, cerr := communicate.NewServer(l.sess, l.requestTimeout)
	if cerr != nil {
		return ErrLaunch.Msg("failed to bind plugin listener").Err(cerr)
	}
	go comm.Serve(context.Background())

	env, err := l.buildEnv(tc, software, versionID, comm.Port())
	if err != nil {
		comm.Close()
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = assets.AbsPath(l.sess, tc.WorkEnv.Path)
	if serr := cmd.Start(); serr != nil {
		comm.Close()
		return ErrLaunch.Msg("failed to start " + software.Name).Err(serr)
	}

	// lock after spawn: a conflict means someone else got there first,
	// and the child must die before touching the scene
	if err := assets.AcquireLock(ctx, l.sess, workEnvID); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		comm.Close()
		return err
	}

	p := &process{cmd: cmd, versionID: versionID, comm: comm}
	l.mu.Lock()
	l.running[workEnvID] = p
	l.mu.Unlock()

	log.Ctx(ctx).Info().
		Str("software", software.Name).
		Int64("work_env_id", workEnvID).
		Int("pid", cmd.Process.Pid).
		Int("communicate_port", comm.Port()).
		Msg("DCC started")

	l.wg.Add(1)
	go l.reap(workEnvID, p)
	return nil
}

// reap waits for one child and cleans up after it: table entry, plugin
// listener, lock, team notification, crash popup.
func (l *Launcher) reap(workEnvID int64, p *process) {
	defer l.wg.Done()
	err := p.cmd.Wait()

	l.mu.Lock()
	delete(l.running, workEnvID)
	l.mu.Unlock()
	p.comm.Close()

	ctx := context.Background()
	if uerr := assets.ReleaseLock(ctx, l.sess, workEnvID, false); uerr != nil {
		log.Warn().Err(uerr).Int64("work_env_id", workEnvID).Msg("failed to release lock after exit")
	}
	l.sess.PublishTeam(wire.Message{Type: wire.TypeRefreshTeam, UserName: l.sess.UserName()})
	if err != nil {
		log.Warn().Err(err).Int64("work_env_id", workEnvID).Msg("DCC exited abnormally")
		l.sess.NotifyGUI(wire.Message{
			Type:  wire.TypeChildCrashed,
			ID:    workEnvID,
			Title: "DCC crashed",
			Text:  err.Error(),
		})
	} else {
		l.sess.NotifyGUI(wire.Message{Type: wire.TypeRefresh})
	}
}

// Kill terminates the process of one work environment. The reaper does
// the lock and table cleanup.
func (l *Launcher) Kill(workEnvID int64) bool {
	l.mu.Lock()
	p, ok := l.running[workEnvID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	_ = p.cmd.Process.Kill()
	return true
}

// KillAll terminates every running DCC and waits for the reapers.
func (l *Launcher) KillAll() {
	l.mu.Lock()
	procs := make([]*process, 0, len(l.running))
	for _, p := range l.running {
		procs = append(procs, p)
	}
	l.mu.Unlock()
	for _, p := range procs {
		_ = p.cmd.Process.Kill()
	}
	l.wg.Wait()
}

// buildEnv assembles the child environment: the parent's, the identity
// variables, this instance's plugin port, the software's own additions,
// its script directories on the plugin search path, and ffmpeg on PATH
// when configured.
func (l *Launcher) buildEnv(tc *assets.TreeContext, software *models.Software, versionID int64, port int) ([]string, apperrors.Error) {
	env := os.Environ()
	env = append(env,
		EnvUser+"="+l.sess.UserName(),
		EnvProject+"="+l.sess.Project.Name,
		EnvProjectPath+"="+l.sess.Project.Path,
		EnvWorkEnvID+"="+strconv.FormatInt(tc.WorkEnv.ID, 10),
		EnvVersionID+"="+strconv.FormatInt(versionID, 10),
		EnvDomainName+"="+tc.Domain.Name,
		EnvCategoryName+"="+tc.Category.Name,
		EnvAssetName+"="+tc.Asset.Name,
		EnvStageName+"="+tc.Stage.Name,
		EnvVariantName+"="+tc.Variant.Name,
		EnvStringVariant+"="+tc.String(),
		communicate.EnvPort+"="+strconv.Itoa(port),
	)
	if l.ffmpegDir != "" {
		env = append(env, "PATH="+l.ffmpegDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	var scripts []string
	if software.AdditionnalScripts != "" {
		if uerr := json.UnmarshalFromString(software.AdditionnalScripts, &scripts); uerr != nil {
			return nil, ErrLaunch.Msg("corrupt additionnal_scripts on software").Err(uerr)
		}
	}
	if len(scripts) > 0 {
		sep := string(os.PathListSeparator)
		env = append(env, "PYTHONPATH="+strings.Join(scripts, sep)+sep+os.Getenv("PYTHONPATH"))
	}
	var extra map[string]string
	if software.AdditionnalEnv != "" {
		if uerr := json.UnmarshalFromString(software.AdditionnalEnv, &extra); uerr != nil {
			return nil, ErrLaunch.Msg("corrupt additionnal_env on software").Err(uerr)
		}
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env, nil
}
