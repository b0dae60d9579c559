package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overlayd/overlayd/internal/config"
	"github.com/overlayd/overlayd/internal/daemon"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/logging"
)

// newServeCmd creates the 'serve' command, which runs the daemon in the
// foreground until Ctrl+C/SIGTERM.
func newServeCmd(factory ProtocolFactory) *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the overlay daemon in the foreground",
		Long: `Starts the daemon: connects to the overlay network, serves shared
files to peers, accepts agent connections, and opens the control
socket other "overlayd" subcommands talk to.

Press Ctrl+C to stop gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if factory == nil {
				return fmt.Errorf("no overlay peer-protocol implementation linked into this build (§6: the protocol library is supplied by the caller)")
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			bus := events.NewBus(256)
			log := logging.New(bus)
			if verbose {
				logging.SetGlobalLevel(-1) // zerolog.DebugLevel
			}

			protocol, err := factory(cfg)
			if err != nil {
				return fmt.Errorf("build peer-protocol implementation: %w", err)
			}

			d, err := daemon.New(cfg, protocol, log, daemon.Dirs{StateDir: stateDir})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}

			ctx := GetContext()
			if err := d.Start(ctx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			log.Infof("overlayd %s started", Version)
			<-ctx.Done()

			log.Infof("shutting down")
			d.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory for daemon state (default: "+daemon.DefaultStateDir()+")")

	return cmd
}
