// Command kerr is the launcher of §6: a single binary exposing the
// serve/connect/send/pull/browse/relay/ping/ui subcommands, each a thin
// wrapper around one internal/session package plus the shared
// identity/token/kquic/config/observability plumbing.
package main

import (
	"fmt"
	"os"
)

// Exit codes per §6.
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitUnreachable = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = serveCmd(args)
	case "connect":
		err = connectCmd(args)
	case "send":
		err = sendCmd(args)
	case "pull":
		err = pullCmd(args)
	case "browse":
		err = browseCmd(args)
	case "relay":
		err = relayCmd(args)
	case "ping":
		err = pingCmd(args)
	case "ui":
		err = uiCmd(args)
	case "-h", "--help", "help":
		printUsage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "kerr: unknown command %q\n", cmd)
		printUsage()
		os.Exit(exitUsage)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "kerr %s: %v\n", cmd, err)
		os.Exit(exitCodeFor(err))
	}
}

func printUsage() {
	fmt.Println("kerr - peer-to-peer remote access over QUIC")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  kerr serve [flags]                         start an endpoint and print its connection token")
	fmt.Println("  kerr connect <token>                       attach an interactive shell")
	fmt.Println("  kerr send <token> <local> <remote> [flags] upload a file")
	fmt.Println("  kerr pull <token> <remote> <local>         download a file")
	fmt.Println("  kerr browse <token>                        browse the peer's filesystem")
	fmt.Println("  kerr relay <token> <local_port> <remote_port>  forward a TCP port through the peer")
	fmt.Println("  kerr ping <token>                          run the round-trip size ladder")
	fmt.Println("  kerr ui [<token>] [flags]                  launch the web UI gateway")
	fmt.Println()
	fmt.Println("Run 'kerr <command> -h' for command-specific flags.")
}
