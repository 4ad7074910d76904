package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/session/tcprelay"
)

// relayCmd forwards a local TCP port through the peer named by token to
// one of its own listening ports.
func relayCmd(args []string) error {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 3 {
		return usageErrorf("usage: kerr relay <token> <local_port> <remote_port>")
	}
	localPort, err := parsePort(fs.Arg(1))
	if err != nil {
		return usageErrorf("invalid local_port: %v", err)
	}
	remotePort, err := parsePort(fs.Arg(2))
	if err != nil {
		return usageErrorf("invalid remote_port: %v", err)
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

	counters := &tcprelay.Counters{}
	r, err := tcprelay.Dial(ctx, "", stream, counters)
	if err != nil {
		return err
	}
	fmt.Printf("relaying 127.0.0.1:%d -> peer:%d\n", localPort, remotePort)
	return r.Forward(ctx, localPort, remotePort)
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
