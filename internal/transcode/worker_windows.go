//go:build windows

package transcode

import "os/exec"

// terminateUnix is a no-op on Windows; killProcess already dispatches
// to taskkill /F directly for this GOOS.
func terminateUnix(cmd *exec.Cmd) {}
