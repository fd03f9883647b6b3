// Package daemon renders spec.md §4.5's "optional daemonization" as a
// re-exec rather than a literal double-fork: a live multi-goroutine Go
// runtime cannot safely fork() the way the source's single-threaded
// pre-accept-loop process can (SPEC_FULL.md §4.5, a REDESIGN FLAG
// resolution). The parent binds the listening socket first — so bind
// errors still surface to the foreground exactly as spec.md requires —
// then hands the already-bound fd to a re-exec'd, session-leader child via
// os/exec.Cmd.ExtraFiles, grounded on jacobsa-fuse's mount_darwin.go
// fd-passing idiom.
package daemon

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
)

// listenerFile is satisfied by *net.TCPListener.
type listenerFile interface {
	File() (*os.File, error)
}

// envInherited is the marker environment variable the child process checks
// to know it was re-exec'd with an inherited listener rather than started
// directly (spec.md's "-d" flag still selects daemon mode for the parent;
// this variable only ever appears in the re-exec'd child's environment).
const envInherited = "AESDLOGD_INHERITED_FD=3"

// Daemonize re-execs the current binary as a detached session leader,
// passing ln's underlying file descriptor as fd 3 in the child. It must be
// called only after ln has successfully bound, per spec.md §4.5/§6. It
// returns nil once the child has started; it does not exit the calling
// (parent) process.
func Daemonize(ln net.Listener, args []string) error {
	lf, ok := ln.(listenerFile)
	if !ok {
		return fmt.Errorf("daemon: listener type %T does not support File()", ln)
	}
	f, err := lf.File()
	if err != nil {
		return fmt.Errorf("daemon: dup listener fd: %w", err)
	}
	defer f.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemon: resolve executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Dir = "/"
	cmd.Env = append(os.Environ(), envInherited)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.ExtraFiles = []*os.File{f}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: start child: %w", err)
	}
	return nil
}

// IsChild reports whether the current process was re-exec'd by Daemonize
// and should adopt the inherited listener instead of binding its own.
func IsChild() bool {
	for _, e := range os.Environ() {
		if e == envInherited {
			return true
		}
	}
	return false
}

// InheritedListener reconstructs a net.Listener over fd 3, the descriptor
// Daemonize's parent passed via ExtraFiles.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(3, "aesdlogd-listener")
	if f == nil {
		return nil, fmt.Errorf("daemon: fd 3 not available")
	}
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("daemon: reconstruct listener: %w", err)
	}
	_ = f.Close()
	return ln, nil
}
