// overlayd - self-hosted overlay file-sharing daemon
package main

import (
	"os"

	"github.com/overlayd/overlayd/internal/cli"
)

// Version information
var (
	Version   = "v0.1.0-dev"
	BuildTime = "2026-07-31"
)

// newPeerProtocol, if non-nil, builds the overlay peer-protocol
// implementation overlayd's core drives (§6: "implemented outside this
// repository"). This build links none in, so `overlayd serve` reports a
// clear error instead of silently doing nothing; a distribution that
// bundles a real implementation sets this to a non-nil factory before
// calling cli.Execute.
var newPeerProtocol cli.ProtocolFactory

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(newPeerProtocol); err != nil {
		os.Exit(1)
	}
}
