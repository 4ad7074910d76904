// Package pty is the platform PTY adapter of §9: open_pty, spawn_child,
// resize and close, wrapping github.com/creack/pty so the shell session
// handler never touches platform ioctls directly.
package pty

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// DefaultCols and DefaultRows are the initial PTY size per §4.5.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// PTY owns a spawned child process and its master file descriptor.
// Closing it releases both.
type PTY struct {
	master *os.File
	cmd    *exec.Cmd
}

// Start spawns shell attached to a freshly allocated PTY sized cols x
// rows. shell defaults to the user's $SHELL, falling back to /bin/sh.
func Start(shell string, cols, rows uint16) (*PTY, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, err
	}
	return &PTY{master: master, cmd: cmd}, nil
}

// Read reads raw output bytes from the PTY master.
func (p *PTY) Read(b []byte) (int, error) { return p.master.Read(b) }

// Write sends raw input bytes to the PTY master.
func (p *PTY) Write(b []byte) (int, error) { return p.master.Write(b) }

// Resize applies a new terminal size. On unix this also delivers
// SIGWINCH to the child's foreground process group, satisfying §4.5's
// "inform the child via SIGWINCH semantics" requirement without the
// session handler needing to send the signal itself.
func (p *PTY) Resize(cols, rows uint16) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: rows, Cols: cols})
}

// Wait blocks until the child exits and returns its exit error, if any.
func (p *PTY) Wait() error { return p.cmd.Wait() }

// Exited reports whether the child has already exited.
func (p *PTY) Exited() bool {
	return p.cmd.ProcessState != nil
}

// GracefulClose implements §4.5's Disconnect handling: it waits up to
// timeout for the child to exit on its own, then sends SIGHUP, then
// releases the master fd regardless of outcome.
func (p *PTY) GracefulClose(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		p.master.Close()
		return err
	case <-time.After(timeout):
	}

	if p.cmd.Process != nil {
		p.cmd.Process.Signal(syscall.SIGHUP)
	}
	err := <-done
	p.master.Close()
	return err
}

// Close releases the PTY master immediately without waiting for the
// child; used on the hard-exit path when the stream itself has ended.
func (p *PTY) Close() error {
	if p.cmd.Process != nil {
		p.cmd.Process.Signal(syscall.SIGHUP)
	}
	return p.master.Close()
}
