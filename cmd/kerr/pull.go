package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/session/filetransfer"
)

// pullCmd downloads a remote file from the peer named by token.
func pullCmd(args []string) error {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 3 {
		return usageErrorf("usage: kerr pull <token> <remote> <local>")
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

	progress := func(transferred, total int64) {
		fmt.Fprintf(os.Stderr, "\r%s", filetransfer.Rendered(transferred, total))
	}
	result, err := filetransfer.Pull("", stream, fs.Arg(1), fs.Arg(2), progress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("received %d bytes, digest %s\n", result.BytesTransferred, result.Digest)
	return nil
}
