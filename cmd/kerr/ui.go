package main

import (
	"flag"
	"fmt"
)

// uiCmd is the launch point for the web UI gateway named in §6's CLI
// surface. The gateway itself (browser front-end plus its HTTP/WebSocket
// bridge) is an out-of-scope external collaborator per spec.md §1: it is
// a thin consumer of the core with no algorithmic work of its own, so
// this subcommand only validates its flags and explains where the
// gateway would attach rather than embedding a front-end build.
func uiCmd(args []string) error {
	fs := flag.NewFlagSet("ui", flag.ExitOnError)
	port := fs.Int("port", 8443, "port the web UI gateway would listen on")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}

	return fmt.Errorf("the web UI gateway is a separate, out-of-scope component; connect it to this endpoint's admin surface on the configured port (%d) instead of running it from kerr", *port)
}
