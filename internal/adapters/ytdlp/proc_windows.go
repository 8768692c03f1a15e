//go:build windows

package ytdlp

import "os/exec"

// killProcessGroup leaves the default cancellation in place. Descendants
// that outlive yt-dlp are cut off by WaitDelay closing the pipes.
func killProcessGroup(cmd *exec.Cmd) {}
