//go:build !windows

package transcode

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// terminateUnix sends SIGTERM to a timed-out job's child process; the
// caller marks the job failed once the process exits. Uses
// golang.org/x/sys/unix directly rather than the stdlib syscall
// package, consistent with this repo's existing use of x/sys.
func terminateUnix(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(cmd.Process.Pid, unix.SIGTERM)
}
