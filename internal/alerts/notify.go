package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// ErrNotificationsUnsupported is returned once when no desktop notifier is
// available. Later calls stay silent.
var ErrNotificationsUnsupported = errors.New("desktop notifications unavailable")

// Notifier delivers the sound and desktop notification for an alert.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// DesktopNotifier rings the terminal bell and shows a desktop notification
// through the platform tool (notify-send or osascript).
type DesktopNotifier struct {
	Bell io.Writer

	mu       sync.Mutex
	disabled bool
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewDesktopNotifier returns a notifier writing the bell to bell.
func NewDesktopNotifier(bell io.Writer) *DesktopNotifier {
	return &DesktopNotifier{
		Bell:     bell,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Notify implements Notifier.
func (n *DesktopNotifier) Notify(ctx context.Context, a Alert) error {
	if n.Bell != nil {
		_, _ = n.Bell.Write([]byte{'\a'})
	}

	n.mu.Lock()
	if n.disabled {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	title := "AgroVision alert"
	if a.CameraID != "" {
		title = fmt.Sprintf("AgroVision alert (camera %s)", a.CameraID)
	}

	name, args := n.command(title, a.Message)
	if name == "" {
		return n.disable()
	}
	if _, err := n.lookPath(name); err != nil {
		return n.disable()
	}
	if err := n.run(ctx, name, args...); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (n *DesktopNotifier) disable() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disabled = true
	return ErrNotificationsUnsupported
}

func (n *DesktopNotifier) command(title, body string) (string, []string) {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--urgency=critical", title, body}
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q sound name \"Ping\"", body, title)
		return "osascript", []string{"-e", script}
	}
	return "", nil
}
