package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/session/browser"
)

// browseCmd opens an interactive filesystem-browser session against the
// peer named by token: a line-oriented REPL over List/Read/Write/Delete/
// Metadata/Exists, since a full TUI is out of scope (SPEC_FULL.md).
func browseCmd(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if fs.NArg() != 1 {
		return usageErrorf("usage: kerr browse <token>")
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
	if err := browser.Open("", stream); err != nil {
		return err
	}

	fmt.Println("connected. commands: ls <path>, cat <path>, put <local> <remote>, rm [-r] <path>, stat <path>, exists <path>, quit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return sc.Err()
		}
		if err := runBrowseCommand(stream, sc.Text()); err != nil {
			if err == errBrowseQuit {
				return nil
			}
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

var errBrowseQuit = fmt.Errorf("quit")

func runBrowseCommand(stream browser.Stream, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "quit", "exit":
		return errBrowseQuit
	case "ls":
		if len(fields) != 2 {
			return fmt.Errorf("usage: ls <path>")
		}
		entries, err := browser.List("", stream, fields[1])
		if err != nil {
			return err
		}
		for _, e := range entries {
			kind := "file"
			if e.IsDir {
				kind = "dir"
			}
			fmt.Printf("%-5s %10d  %s\n", kind, e.Size, e.Name)
		}
	case "cat":
		if len(fields) != 2 {
			return fmt.Errorf("usage: cat <path>")
		}
		data, err := browser.Read("", stream, fields[1])
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	case "put":
		if len(fields) != 3 {
			return fmt.Errorf("usage: put <local> <remote>")
		}
		data, err := os.ReadFile(fields[1])
		if err != nil {
			return err
		}
		return browser.Write("", stream, fields[2], data)
	case "rm":
		recursive := false
		rest := fields[1:]
		if len(rest) > 0 && rest[0] == "-r" {
			recursive = true
			rest = rest[1:]
		}
		if len(rest) != 1 {
			return fmt.Errorf("usage: rm [-r] <path>")
		}
		return browser.Delete("", stream, rest[0], recursive)
	case "stat":
		if len(fields) != 2 {
			return fmt.Errorf("usage: stat <path>")
		}
		meta, err := browser.Metadata("", stream, fields[1])
		if err != nil {
			return err
		}
		modified := "unknown"
		if meta.HasModified {
			modified = time.Unix(meta.Modified, 0).Format(time.RFC3339)
		}
		fmt.Printf("size=%d dir=%v modified=%s\n", meta.Size, meta.IsDir, modified)
	case "exists":
		if len(fields) != 2 {
			return fmt.Errorf("usage: exists <path>")
		}
		ok, err := browser.Exists("", stream, fields[1])
		if err != nil {
			return err
		}
		fmt.Println(strconv.FormatBool(ok))
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}
