package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// xvfbReadyTimeout bounds the wait for the display socket to appear.
const xvfbReadyTimeout = 5 * time.Second

// displayEnv is the environment Chrome is launched with in headful mode:
// the launcher's own entries and ours, with DISPLAY pointed at the virtual
// display. Setting the launcher env replaces Chrome's whole environment,
// so every entry must be a full KEY=VALUE pair.
func (m *Manager) displayEnv(base []string) []string {
	var env []string
	for _, src := range [][]string{base, os.Environ()} {
		for _, kv := range src {
			if !strings.HasPrefix(kv, "DISPLAY=") {
				env = append(env, kv)
			}
		}
	}
	return append(env, "DISPLAY="+m.cfg.XvfbDisplay)
}

// displaySocket returns the X11 socket path of display ":N", or "" when
// display names a remote or malformed server.
func displaySocket(display string) string {
	n, ok := strings.CutPrefix(display, ":")
	if !ok || n == "" {
		return ""
	}
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return filepath.Join("/tmp/.X11-unix", "X"+n)
}

// startXvfb launches the virtual display for headful mode and waits until
// it accepts clients.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	if sock := displaySocket(display); sock != "" {
		deadline := time.Now().Add(xvfbReadyTimeout)
		for {
			if _, err := os.Stat(sock); err == nil {
				break
			}
			if time.Now().After(deadline) {
				m.stopXvfb()
				return fmt.Errorf("xvfb display %s not ready after %s", display, xvfbReadyTimeout)
			}
			time.Sleep(100 * time.Millisecond)
		}
	} else {
		time.Sleep(500 * time.Millisecond)
	}

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb kills the virtual display if running.
func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
}
