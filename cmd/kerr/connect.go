package main

import (
	"context"
	"flag"
	"os"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/session/shell"
)

// connectCmd attaches an interactive shell to the peer named by token.
func connectCmd(args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("usage: kerr connect <token>")
	}

	ctx := context.Background()
	id, err := identity.Ephemeral()
	if err != nil {
		return err
	}
	conn, err := dial(ctx, id, fs.Arg(0))
	if err != nil {
		return err
	}
	defer conn.Close()

	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return err
	}
	return shell.Attach(ctx, "", stream, os.Stdin, os.Stdout)
}
