// Package osctl is the boundary to the operating system: screenshots, window mode and
// notifications. The kiosk only awaits success or failure.
package osctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured means no command is set up for the requested capability.
var ErrNotConfigured = errors.New("osctl: capability not configured")

// Geometry is the window rectangle applied when switching modes.
type Geometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Info describes the host operating system.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capability is what the kiosk needs from the OS.
type Capability interface {
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	OSInfo(ctx context.Context) (Info, error)
	SetWindowMode(ctx context.Context, kiosk bool, geometry Geometry) error
	ShowNotification(ctx context.Context, text string) error
}

// Commands are shell command lines run for each capability. Geometry and message text reach
// them through KIOSK_X, KIOSK_Y, KIOSK_WIDTH, KIOSK_HEIGHT and KIOSK_MESSAGE.
type Commands struct {
	Screenshot string `yaml:"screenshot"`
	Lock       string `yaml:"lock"`
	Unlock     string `yaml:"unlock"`
	Notify     string `yaml:"notify"`
	Version    string `yaml:"version"`
}

// CommandCapability runs configured commands through the platform shell.
type CommandCapability struct {
	commands Commands
	timeout  time.Duration
	logger   *zap.Logger

	once sync.Once
	info Info
}

// NewCommandCapability builds a capability; timeout bounds every command.
func NewCommandCapability(commands Commands, timeout time.Duration, logger *zap.Logger) *CommandCapability {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CommandCapability{commands: commands, timeout: timeout, logger: logger}
}

// CaptureScreenshot runs the screenshot command and returns its stdout as the image.
func (c *CommandCapability) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	out, err := c.run(ctx, c.commands.Screenshot, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("osctl: screenshot command produced no image")
	}
	return out, nil
}

// OSInfo reports the platform name and the output of the version command (cached).
func (c *CommandCapability) OSInfo(ctx context.Context) (Info, error) {
	var err error
	c.once.Do(func() {
		c.info = Info{Name: runtime.GOOS}
		if c.commands.Version == "" {
			return
		}
		var out []byte
		out, err = c.run(ctx, c.commands.Version, nil)
		c.info.Version = strings.TrimSpace(string(out))
	})
	return c.info, err
}

// SetWindowMode runs the lock or unlock command with the geometry in the environment.
func (c *CommandCapability) SetWindowMode(ctx context.Context, kiosk bool, g Geometry) error {
	command := c.commands.Unlock
	if kiosk {
		command = c.commands.Lock
	}
	env := []string{
		"KIOSK_MODE=" + strconv.FormatBool(kiosk),
		"KIOSK_X=" + strconv.Itoa(g.X),
		"KIOSK_Y=" + strconv.Itoa(g.Y),
		"KIOSK_WIDTH=" + strconv.Itoa(g.Width),
		"KIOSK_HEIGHT=" + strconv.Itoa(g.Height),
	}
	_, err := c.run(ctx, command, env)
	return err
}

// ShowNotification runs the notify command with the text in KIOSK_MESSAGE.
func (c *CommandCapability) ShowNotification(ctx context.Context, text string) error {
	_, err := c.run(ctx, c.commands.Notify, []string{"KIOSK_MESSAGE=" + text})
	return err
}

func (c *CommandCapability) run(ctx context.Context, command string, env []string) ([]byte, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.logger.Warn("os command failed",
			zap.String("command", command),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err),
		)
		return nil, fmt.Errorf("osctl: %w", err)
	}
	return stdout.Bytes(), nil
}

// Nop is a Capability for headless terminals. Window and notification calls succeed,
// screenshots report ErrNotConfigured.
type Nop struct{}

func (Nop) CaptureScreenshot(context.Context) ([]byte, error) { return nil, ErrNotConfigured }

func (Nop) OSInfo(context.Context) (Info, error) { return Info{Name: runtime.GOOS}, nil }

func (Nop) SetWindowMode(context.Context, bool, Geometry) error { return nil }

func (Nop) ShowNotification(context.Context, string) error { return nil }
