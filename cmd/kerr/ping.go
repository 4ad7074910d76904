package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/session/ping"
)

// pingCmd runs the round-trip size ladder against the peer named by
// token and prints one line per sample.
func pingCmd(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	echo := fs.Bool("echo", false, "echo the payload back instead of zero-filling the reply")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("usage: kerr ping <token>")
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
	if err := ping.Open("", stream); err != nil {
		return err
	}

	samples, err := ping.Walk("", stream, ping.DefaultSizeLadder, *echo)
	for _, s := range samples {
		fmt.Printf("size=%-8d rtt=%s\n", s.PayloadSize, s.RTT)
	}
	return err
}
