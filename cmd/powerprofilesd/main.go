package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/powerprofilesd/powerprofilesd/internal/server/bus"
	"github.com/powerprofilesd/powerprofilesd/internal/server/config"
	"github.com/powerprofilesd/powerprofilesd/internal/server/manager"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

// version is overridden at build time with -ldflags.
var version = "unknown"

type cmdGlobal struct {
	flagVerbose bool
	flagReplace bool
}

func (c *cmdGlobal) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "powerprofilesd"
	cmd.Short = "Power profile management daemon"
	cmd.Long = `Description:
  Power profile management daemon

  This daemon discovers the CPU and platform drivers viable on the
  running host, exposes the active power profile over the system
  message bus, and applies profile changes by writing the
  corresponding kernel and firmware controls.
`
	cmd.SilenceUsage = true
	cmd.RunE = c.run

	cmd.PersistentFlags().BoolVar(&c.flagVerbose, "verbose", false, "Show all information messages")
	cmd.PersistentFlags().BoolVar(&c.flagReplace, "replace", false, "Replace an existing instance of the daemon")

	return cmd
}

func (c *cmdGlobal) run(cmd *cobra.Command, _ []string) error {
	logger.InitLogger(c.flagVerbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to the system bus: %w", err)
	}

	mgr := manager.New(config.New(), nil, version)

	srv, err := bus.New(conn, mgr)
	if err != nil {
		conn.Close()
		return fmt.Errorf("exporting the bus surface: %w", err)
	}
	defer srv.Close()

	mgr.SetPublisher(srv)

	if err := srv.AcquireNames(c.flagReplace); err != nil {
		return fmt.Errorf("acquiring bus name: %w", err)
	}

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting profile manager: %w", err)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debugf("sd_notify failed: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(runDone)
	}()

	select {
	case <-ctx.Done():
	case <-srv.NameLost():
		logger.Error("lost ownership of the primary bus name")
		stop()
	}

	<-runDone

	return nil
}

func main() {
	global := &cmdGlobal{}
	cmd := global.command()

	if err := cmd.Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
