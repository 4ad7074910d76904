package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/session/filetransfer"
)

// sendCmd uploads a single local file to the peer named by token.
// Directories are not supported: reading one fails after the upload has
// been accepted.
func sendCmd(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing remote file")
	chunkSize := fs.Int("chunk-size", filetransfer.DefaultChunkSize, "chunk size in bytes")
	fecData := fs.Uint("fec-data", 0, "FEC data shards per stripe (0 disables FEC)")
	fecParity := fs.Uint("fec-parity", 0, "FEC parity shards per stripe")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 3 {
		return usageErrorf("usage: kerr send <token> <local> <remote>")
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
	result, err := filetransfer.Upload("", stream, fs.Arg(1), fs.Arg(2), *force, *chunkSize, uint8(*fecData), uint8(*fecParity), progress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("sent %d bytes, digest %s\n", result.BytesTransferred, result.Digest)
	return nil
}
