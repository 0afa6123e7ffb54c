package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wizardpipe/wizard/internal/common/logtrace"
	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/guiserver"
	"github.com/wizardpipe/wizard/internal/launch"
	"github.com/wizardpipe/wizard/internal/stats"
	"github.com/wizardpipe/wizard/internal/subtask"
	"github.com/wizardpipe/wizard/internal/teambus"
	"github.com/wizardpipe/wizard/internal/wizard/config"
	"github.com/wizardpipe/wizard/internal/wizard/db/dberror"
	"github.com/wizardpipe/wizard/internal/wizard/db/dbmanager"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
	"github.com/wizardpipe/wizard/internal/wizard/projects"
	"github.com/wizardpipe/wizard/internal/wizard/session"
	"github.com/wizardpipe/wizard/internal/wizard/users"
)

func init() {
	logtrace.InitLogger()
}

type options struct {
	configFile      string
	user            string
	password        string
	project         string
	projectPassword string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("daemon failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opt options
	cmd := &cobra.Command{
		Use:   "wizardd",
		Short: "Workstation pipeline daemon",
		Long: `wizardd is the per-workstation daemon. It owns the state store
connection, supervises launched DCCs and their work environment locks,
runs background subtasks, relays team messages and answers the plugins
living inside the DCCs.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opt)
		},
	}
	cmd.Flags().StringVar(&opt.configFile, "config", config.DefaultConfigFile, "path to the config file")
	cmd.Flags().StringVar(&opt.user, "user", "", "log this user in, replacing the machine binding")
	cmd.Flags().StringVar(&opt.password, "password", "", "password for --user")
	cmd.Flags().StringVar(&opt.project, "project", "", "open this project instead of the remembered one")
	cmd.Flags().StringVar(&opt.projectPassword, "project-password", "", "password for --project")
	return cmd
}

func run(ctx context.Context, opt options) error {
	slog := log.With().Str("state", "init").Logger()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info().Str("config_file", opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(opt.configFile); err != nil {
		return err
	}
	if err := config.LoadRuntimeConfig(); err != nil {
		return fmt.Errorf("loading machine identity: %w", err)
	}
	cfg := config.Config()

	repoPool, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening repository database: %w", err)
	}
	defer repoPool.Close()
	repo := postgresql.NewRepositoryStore(repoPool)
	if serr := repo.EnsureRepositorySchema(ctx); serr != nil {
		return fmt.Errorf("preparing repository schema: %w", serr)
	}

	sess, rememberedProjectID, err := bindUser(ctx, repo, opt)
	if err != nil {
		return err
	}

	var projectPool *dbmanager.Pool
	switch {
	case opt.project != "":
		sess, projectPool, err = projects.Open(ctx, sess, cfg.Database.DSN, opt.project, opt.projectPassword)
	case rememberedProjectID != 0:
		sess, projectPool, err = projects.Resume(ctx, sess, cfg.Database.DSN, rememberedProjectID)
	}
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	if projectPool != nil {
		defer projectPool.Close()
	}

	bus := guiserver.NewBus(cfg.BusWriteTimeout())
	defer bus.Shutdown()
	sess.GUI = bus

	team := teambus.NewClient(cfg.BusAddr(), sess.UserName(), func(m wire.Message) {
		bus.Publish(guiserver.TopicTeam, m)
	})
	go team.Run(ctx)
	defer team.Stop()
	sess.Team = team

	launcher := launch.NewLauncher(sess, cfg.FFmpegDir, cfg.RequestTimeout())
	defer launcher.KillAll()

	pool := subtask.NewPool(cfg.PoolSize(), bus, cfg.SubtaskLogDir())
	pool.Start(ctx)
	defer pool.Stop()

	go stats.NewScheduler(sess, launcher, cfg.StatsInterval()).Run(ctx)

	gui := guiserver.NewServer(bus, cfg.GUIAddr())
	gui.MountCommands(launcher, taskRunner{pool})
	guiAddr, gerr := gui.Start()
	if gerr != nil {
		return fmt.Errorf("starting gui surface: %w", gerr)
	}

	slog.Info().
		Str("user", sess.UserName()).
		Str("gui_addr", guiAddr).
		Msg("daemon started")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := gui.Stop(shutdownCtx); err != nil {
		slog.Error().Err(err).Msg("could not stop gui surface gracefully")
	}
	slog.Info().Msg("daemon stopped")
	return nil
}

// openRepository opens the shared database, provisioning it on a fresh
// install.
func openRepository(ctx context.Context, cfg *config.ConfigParam) (*dbmanager.Pool, error) {
	pool, err := dbmanager.Open(cfg.Database.DSN, cfg.Database.RepositoryName)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, dberror.ErrDatabaseMissing) {
		return nil, err
	}
	log.Info().Str("database", cfg.Database.RepositoryName).Msg("repository database missing, creating it")
	admin, aerr := dbmanager.Open(cfg.Database.DSN, "postgres")
	if aerr != nil {
		return nil, aerr
	}
	defer admin.Close()
	if cerr := admin.CreateDatabase(ctx, cfg.Database.RepositoryName); cerr != nil && !errors.Is(cerr, dberror.ErrAlreadyExists) {
		return nil, cerr
	}
	pool, err = dbmanager.Open(cfg.Database.DSN, cfg.Database.RepositoryName)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// bindUser resumes the machine binding or logs in with the flags.
func bindUser(ctx context.Context, repo *postgresql.RepositoryStore, opt options) (*session.Session, int64, error) {
	if opt.user != "" {
		sess, err := users.Login(ctx, repo, opt.user, opt.password)
		if err != nil {
			return nil, 0, err
		}
		return sess, 0, nil
	}
	u, projectID, err := users.ResumeSession(ctx, repo)
	if err != nil {
		return nil, 0, err
	}
	if u == nil {
		return nil, 0, errors.New("no user bound to this machine, pass --user and --password")
	}
	log.Info().Str("user", u.UserName).Msg("resumed session from machine binding")
	return &session.Session{User: u, Repo: repo}, projectID, nil
}

// taskRunner adapts the subtask pool to the GUI command surface.
type taskRunner struct {
	pool *subtask.Pool
}

func (t taskRunner) Submit(name string, command, env []string, dir string) (string, error) {
	task, err := t.pool.Submit(name, command, env, dir)
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

func (t taskRunner) Cancel(id string) bool {
	return t.pool.Cancel(id)
}

func (t taskRunner) ReadLog(id string) ([]byte, error) {
	out, err := t.pool.ReadLog(id)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
