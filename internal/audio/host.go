package audio

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// HostDevice probes the local machine's capture stack through an external
// recorder utility. It is used by the CLI driver; servers inject their own
// Device implementation.
type HostDevice struct {
	// Recorder overrides auto-detection when set (binary name or path).
	Recorder string
}

// recorderCandidates are tried in order per platform.
func recorderCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"rec", "sox", "ffmpeg"}
	case "linux":
		return []string{"arecord", "rec", "sox", "ffmpeg"}
	default:
		return []string{"ffmpeg", "sox"}
	}
}

func (d *HostDevice) recorder() (string, bool) {
	if d.Recorder != "" {
		if path, err := exec.LookPath(d.Recorder); err == nil {
			return path, true
		}
		return "", false
	}
	for _, name := range recorderCandidates() {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func (d *HostDevice) Supported() bool {
	_, ok := d.recorder()
	return ok
}

// SecureContext is always true for a local process; the secure-transport
// restriction applies to embedded/browser contexts only.
func (d *HostDevice) SecureContext() bool { return true }

// QueryPermission cannot inspect OS-level microphone permission portably,
// so it reports "prompt": the acquisition below is the authoritative check.
func (d *HostDevice) QueryPermission(ctx context.Context) (PermissionState, error) {
	return PermissionPrompt, nil
}

func (d *HostDevice) Acquire(ctx context.Context) (Capture, error) {
	path, ok := d.recorder()
	if !ok {
		return nil, ErrDeviceNotFound
	}

	cmd := exec.CommandContext(ctx, path, recorderArgs(path)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %s: %w", path, err)
	}
	return &hostCapture{cmd: cmd}, nil
}

// recorderArgs produce a capture-to-null invocation for the given utility.
func recorderArgs(path string) []string {
	switch base(path) {
	case "arecord":
		return []string{"-q", "-f", "S16_LE", "-r", "16000", "-d", "1", "/dev/null"}
	case "rec", "sox":
		return []string{"-q", "-d", "-n", "trim", "0", "1"}
	case "ffmpeg":
		return []string{"-hide_banner", "-loglevel", "error", "-f", "pulse", "-i", "default", "-t", "1", "-f", "null", "-"}
	default:
		return nil
	}
}

func base(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

type hostCapture struct {
	cmd *exec.Cmd
}

func (c *hostCapture) Close() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	// Reap the process so the probe never leaks a zombie.
	_ = c.cmd.Wait()
	return nil
}
