package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wizardpipe/wizard/internal/common/logtrace"
	"github.com/wizardpipe/wizard/internal/teambus"
)

func init() {
	logtrace.InitLogger()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("bus failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string
	var writeTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "wizardbus",
		Short: "Studio-wide team bus relay",
		Long: `wizardbus relays team messages between every workstation of the
studio. One instance runs per site; workstations reconnect on their own
when it restarts.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), addr, writeTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":11112", "listen address")
	cmd.Flags().DurationVar(&writeTimeout, "write-timeout", teambus.DefaultWriteTimeout,
		"per-subscriber write deadline before teardown")
	return cmd
}

func run(ctx context.Context, addr string, writeTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := teambus.NewServer(addr, writeTimeout)
	if err != nil {
		return fmt.Errorf("binding bus listener: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr()).Msg("team bus started")
		serverErrors <- srv.Serve(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
		<-serverErrors
	}
	log.Info().Msg("team bus stopped")
	return nil
}
