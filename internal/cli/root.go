// Package cli provides the command-line interface for overlayd.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/overlayd/overlayd/internal/config"
	"github.com/overlayd/overlayd/internal/controlsock"
	"github.com/overlayd/overlayd/internal/overlay"
)

var (
	// Global flags
	cfgFile    string
	socketPath string
	verbose    bool

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Version information; set by main package at startup.
var (
	Version   = "v0.1.0-dev"
	BuildTime = "2026-07-31"
)

// ProtocolFactory builds the overlay peer-protocol implementation for a
// loaded ConfigSnapshot. The protocol library itself lives outside this
// repository (§6), so main supplies the concrete constructor; `serve`
// fails with a clear error if none was linked in.
type ProtocolFactory func(cfg config.ConfigSnapshot) (overlay.PeerProtocol, error)

// NewRootCmd creates the root command. factory is used only by `serve`.
// Resets the package-level flag-bound variables first so repeated calls
// (as in tests, one process invoking this more than once) don't leak a
// flag value from a prior invocation that didn't pass it explicitly.
func NewRootCmd(factory ProtocolFactory) *cobra.Command {
	cfgFile, socketPath, verbose = "", "", false

	rootCmd := &cobra.Command{
		Use:   "overlayd",
		Short: "Self-hosted overlay file-sharing daemon",
		Long: `overlayd ` + Version + ` - Built: ` + BuildTime + `

A self-hosted daemon that joins a peer-to-peer file-sharing overlay,
shares configured directories, and serves transfers to peers and
registered agents.

Run "overlayd serve" to start the daemon, then use the other
subcommands from another terminal to inspect or control the running
instance over its control socket.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to daemon.conf (default: "+"~/.config/overlayd/daemon.conf"+")")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (default: "+controlsock.DefaultSocketPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug-level logging)")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newServeCmd(factory))
	rootCmd.AddCommand(newSharesCmd())
	rootCmd.AddCommand(newTransfersCmd())
	rootCmd.AddCommand(newAgentsCmd())
	rootCmd.AddCommand(newLogsCmd())

	return rootCmd
}

// Execute runs the CLI, wiring Ctrl+C/SIGTERM into a cancellable context
// available to subcommands via GetContext.
func Execute(factory ProtocolFactory) error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nreceived signal %v, shutting down...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd(factory)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// GetContext returns the CLI's signal-cancellable context, falling back to
// context.Background() if called before Execute (e.g. from a test).
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// newClient builds a controlsock.Client targeting --socket, or the default
// path if unset.
func newClient() *controlsock.Client {
	if socketPath == "" {
		return controlsock.NewClient()
	}
	return controlsock.NewClientWithPath(socketPath)
}
